// Package adapter wraps the external messaging network's client primitive
// for a single tenant. The session supervisor only sees the Client interface
// and the event types below; the whatsmeow implementation lives alongside.
package adapter

import "context"

// Event is delivered to a client's handler as the connection changes state
// or messages arrive. Events for one client are delivered sequentially.
type Event interface {
	isEvent()
}

// PairingCode carries a fresh scannable pairing payload. The network may
// emit several before one is scanned.
type PairingCode struct {
	Code string
}

// Connected fires when the handshake is confirmed and the account identity
// is known.
type Connected struct {
	Identity string // resolved account identifier (phone number)
}

// Disconnected fires on a recoverable link loss. The stored credentials
// remain valid; a later Connect resumes the session.
type Disconnected struct {
	Err error
}

// LoggedOut fires when the network invalidated the pairing (the tenant
// unlinked the device, or the credentials were rejected). Terminal: the
// tenant must pair again from scratch.
type LoggedOut struct {
	Reason string
}

// Message is an inbound message.
type Message struct {
	Sender   string // sender's account identifier
	Chat     string // chat the message arrived in
	Text     string // extracted plain text; empty if none could be extracted
	FromSelf bool   // sent by the tenant's own account
}

func (PairingCode) isEvent()  {}
func (Connected) isEvent()    {}
func (Disconnected) isEvent() {}
func (LoggedOut) isEvent()    {}
func (Message) isEvent()      {}

// Handler receives a client's events.
type Handler func(Event)

// Client is one tenant's connection to the external network.
type Client interface {
	// Connect begins the open/authenticate sequence. If credentials are
	// stored the session resumes from them; otherwise pairing codes are
	// emitted to the handler. Progress is reported via events, not the
	// return value.
	Connect(ctx context.Context) error

	// Disconnect drops the link but keeps credentials; Connect may be
	// called again to resume.
	Disconnect()

	// Logout invalidates the pairing network-side. Best effort.
	Logout(ctx context.Context) error

	// Close releases the client's resources. The client is unusable after.
	Close() error

	// SendText sends a plain text message and returns the message id.
	SendText(ctx context.Context, to, text string) (string, error)

	// HasCredentials reports whether stored credentials exist, i.e. whether
	// Connect will resume rather than start pairing.
	HasCredentials() bool
}

// Factory produces one Client per tenant. The handler is fixed at
// construction so there is no window where a client exists without its
// observers.
type Factory interface {
	NewClient(tenantID string, handler Handler) (Client, error)
}
