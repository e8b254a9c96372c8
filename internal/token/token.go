// Package token generates and encodes the bearer tokens that bind a web client
// to a Telegram chat, and the per-process webhook secret.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Size is the length in bytes of a bearer token and of the webhook secret.
const Size = 32

var (
	// ErrDecode is returned when a client-supplied token is not valid base64.
	ErrDecode = errors.New("malformed token encoding")
	// ErrRandomSource is returned when the secure random source cannot be read.
	ErrRandomSource = errors.New("secure random source unavailable")
)

// Source draws bytes from a cryptographically secure random reader.
// Construct it once at startup with NewSource and share it.
type Source struct {
	r io.Reader
}

// NewSource returns a Source backed by crypto/rand. It performs one probe read
// so an unusable random source fails startup instead of the first /start.
func NewSource() (*Source, error) {
	return NewSourceFromReader(rand.Reader)
}

// NewSourceFromReader wraps r. Tests use it to inject deterministic or failing readers.
func NewSourceFromReader(r io.Reader) (*Source, error) {
	s := &Source{r: r}
	probe := make([]byte, Size)
	if err := s.fill(probe); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) fill(buf []byte) error {
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	return nil
}

// NewToken returns a fresh random bearer token.
func (s *Source) NewToken() ([]byte, error) {
	buf := make([]byte, Size)
	if err := s.fill(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// NewWebhookSecret returns a random secret using only the characters Telegram
// accepts in secret_token (A-Z, a-z, 0-9, '_' and '-').
func (s *Source) NewWebhookSecret() (string, error) {
	buf := make([]byte, Size)
	if err := s.fill(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Encode renders a token the way it is shown to chat users: standard base64
// without padding.
func Encode(tok []byte) string {
	return base64.RawStdEncoding.EncodeToString(tok)
}

// Decode parses a client-supplied token. Padding is optional.
func Decode(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if s == "" {
		return nil, ErrDecode
	}
	tok, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return tok, nil
}
