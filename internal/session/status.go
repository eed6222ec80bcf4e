package session

import "errors"

// Status is a session's externally visible state.
type Status string

const (
	// StatusDisconnected is the initial and terminal state: no live link,
	// no pairing in progress.
	StatusDisconnected Status = "disconnected"

	// StatusQRPending means a pairing code has been requested and is
	// awaiting scan, or stored credentials exist but the handshake is not
	// yet confirmed.
	StatusQRPending Status = "qr_pending"

	// StatusConnected means the handshake is confirmed and the account
	// identity is known.
	StatusConnected Status = "connected"
)

// Sentinel errors surfaced to the gateway API.
var (
	// ErrAlreadyConnected is returned by RequestPairing for a tenant that
	// already has a confirmed connection.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNotConnected is returned by Send when the tenant has no confirmed
	// connection.
	ErrNotConnected = errors.New("not connected")

	// ErrPairingTimeout is returned when a pairing request produced neither
	// a code nor a confirmed connection within the bounded wait.
	ErrPairingTimeout = errors.New("pairing timed out")

	// ErrPairingFailed is returned when the network rejected the pairing
	// attempt.
	ErrPairingFailed = errors.New("pairing failed")
)

// StatusRecord is the shape mirrored to the system-of-record.
type StatusRecord struct {
	TenantID string
	Status   Status
	Identity string // set only when Status == StatusConnected
}
