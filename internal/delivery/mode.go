// Package delivery decides how Telegram updates reach the bot: pushed to the
// webhook or pulled with getUpdates.
//
// The Coordinator owns the current Mode. In pull mode a single Poller runs in
// the background until it sees enough empty polls, then hands control back to
// push. The Ingress accepts webhook deliveries and may request pull mode.
package delivery

// Mode is the current update delivery path.
type Mode int

const (
	ModeUnspecified Mode = iota
	ModePull
	ModePush
)

func (m Mode) String() string {
	switch m {
	case ModePull:
		return "pull"
	case ModePush:
		return "push"
	default:
		return "unspecified"
	}
}
