package session

import (
	"sync"
	"time"

	"github.com/sellerdesk/walink/internal/adapter"
)

// pairingWait is a coalesced in-flight pairing request. All concurrent
// RequestPairing callers for one tenant wait on the same instance; it
// resolves exactly once, either with a scannable code, with a confirmed
// connection, or with an error.
type pairingWait struct {
	done      chan struct{}
	code      string
	connected bool
	err       error
	resolved  bool
}

func newPairingWait() *pairingWait {
	return &pairingWait{done: make(chan struct{})}
}

// resolve settles the wait. Subsequent calls are no-ops; callers must hold
// the owning session's mutex.
func (w *pairingWait) resolve(code string, connected bool, err error) {
	if w.resolved {
		return
	}
	w.resolved = true
	w.code = code
	w.connected = connected
	w.err = err
	close(w.done)
}

// Session is one tenant's live (or pending) connection. All fields are
// guarded by mu; transitions for one tenant are strictly ordered.
type Session struct {
	tenantID string

	mu          sync.Mutex
	status      Status
	identity    string
	connectedAt time.Time

	// client is present only while qr_pending or connected. Adapter events
	// are matched against this pointer so a torn-down client's stragglers
	// are ignored.
	client adapter.Client

	// lastCode is the most recent unscanned pairing code, returned to
	// repeat RequestPairing callers while qr_pending.
	lastCode string

	pending   *pairingWait
	pairTimer *time.Timer

	reconnectTimer   *time.Timer
	reconnectPending bool
	backoff          *backoff
}

func newSession(tenantID string) *Session {
	return &Session{
		tenantID: tenantID,
		status:   StatusDisconnected,
		backoff:  newBackoff(),
	}
}

// snapshot returns the tenant's status record.
func (s *Session) snapshot() StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusRecord{
		TenantID: s.tenantID,
		Status:   s.status,
		Identity: s.identity,
	}
}

// stopTimersLocked stops any scheduled pairing timeout or reconnect attempt.
// Caller holds s.mu.
func (s *Session) stopTimersLocked() {
	if s.pairTimer != nil {
		s.pairTimer.Stop()
		s.pairTimer = nil
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.reconnectPending = false
}
