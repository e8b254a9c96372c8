// Package session persists the binding between bearer tokens and Telegram
// chats using SQLite.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no session matches a lookup.
var ErrNotFound = errors.New("session not found")

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Session binds a bearer token to a chat. Sessions are never updated in
// place: they are created, replaced or deleted.
type Session struct {
	Token     []byte    `json:"-"`
	ChatID    int64     `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages session persistence in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database at the given path with at
// most maxConns simultaneous connections.
func NewStore(dbPath string, maxConns int) (*Store, error) {
	if maxConns < 1 {
		maxConns = 1
	}

	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(OFF)")
	// Writers take the lock at BEGIN so concurrent replacements queue on
	// busy_timeout instead of failing on a stale snapshot.
	q.Set("_txlock", "immediate")
	dsn := "file:" + dbPath + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			token      BLOB NOT NULL PRIMARY KEY,
			chat_id    INTEGER NOT NULL,
			created_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_chat_id
			ON sessions(chat_id);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession replaces any session of chatID with a new one for token.
// The delete and insert run in one transaction, so readers never observe a
// chat without a session in the middle of a replacement.
func (s *Store) CreateSession(ctx context.Context, token []byte, chatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE chat_id = ?`, chatID,
	); err != nil {
		return &StorageError{Op: "replace session", Err: err}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (token, chat_id, created_at) VALUES (?, ?, ?)`,
		token, chatID, time.Now().Unix(),
	); err != nil {
		return &StorageError{Op: "insert session", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit", Err: err}
	}
	return nil
}

// DeleteSession removes the session of chatID. Deleting a missing session is
// not an error.
func (s *Store) DeleteSession(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE chat_id = ?`, chatID,
	); err != nil {
		return &StorageError{Op: "delete session", Err: err}
	}
	return nil
}

// FindChatByToken returns the chat bound to token, or ErrNotFound.
func (s *Store) FindChatByToken(ctx context.Context, token []byte) (int64, error) {
	var chatID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id FROM sessions WHERE token = ?`, token,
	).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, &StorageError{Op: "find chat", Err: err}
	}
	return chatID, nil
}

// FindTokenByChat returns the token of chatID's session, or ErrNotFound.
func (s *Store) FindTokenByChat(ctx context.Context, chatID int64) ([]byte, error) {
	var token []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM sessions WHERE chat_id = ?`, chatID,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "find token", Err: err}
	}
	return token, nil
}

// ListSessions returns all sessions ordered by creation time (newest first).
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, chat_id, created_at FROM sessions ORDER BY created_at DESC, chat_id`,
	)
	if err != nil {
		return nil, &StorageError{Op: "list sessions", Err: err}
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var (
			sess    Session
			created int64
		)
		if err := rows.Scan(&sess.Token, &sess.ChatID, &created); err != nil {
			return nil, &StorageError{Op: "scan session", Err: err}
		}
		sess.CreatedAt = time.Unix(created, 0).UTC()
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list sessions", Err: err}
	}
	return sessions, nil
}
