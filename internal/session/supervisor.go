// Package session implements the per-tenant session state machine and the
// supervisor that owns every tenant's connection to the messaging network.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sellerdesk/walink/internal/adapter"
	. "github.com/sellerdesk/walink/internal/logging"
)

// Publisher mirrors status transitions to the system-of-record. Publish must
// not block: it is called while a session transition is being applied.
type Publisher interface {
	Publish(rec StatusRecord)
}

// CredentialStore is the durable per-tenant credential directory.
type CredentialStore interface {
	Exists(tenantID string) bool
	ListKnownTenants() ([]string, error)
	Delete(tenantID string) error
}

// ReplyFunc sends a message out through the session an inbound message
// arrived on.
type ReplyFunc func(ctx context.Context, to, text string) (string, error)

// InboundHandler receives inbound messages. Calls for one tenant arrive in
// delivery order; a slow handler delays only that tenant.
type InboundHandler interface {
	HandleInbound(tenantID, selfIdentity string, msg adapter.Message, reply ReplyFunc)
}

// Options tune session lifecycle timing. Zero values fall back to defaults.
type Options struct {
	PairingTimeout     time.Duration // bound on the whole qr_pending phase
	PairingWait        time.Duration // bound on one RequestPairing call
	RestoreConcurrency int           // in-flight restores during RestoreAll
	RestoreStagger     time.Duration // delay between restore launches
}

func (o Options) withDefaults() Options {
	if o.PairingTimeout <= 0 {
		o.PairingTimeout = 3 * time.Minute
	}
	if o.PairingWait <= 0 {
		o.PairingWait = 30 * time.Second
	}
	if o.RestoreConcurrency <= 0 {
		o.RestoreConcurrency = 4
	}
	if o.RestoreStagger < 0 {
		o.RestoreStagger = 0
	}
	return o
}

// Supervisor owns the registry of all tenant sessions and enforces
// at-most-one live connection per tenant. Constructed once at startup and
// handed to the API and relay; never ambient global state.
type Supervisor struct {
	factory   adapter.Factory
	creds     CredentialStore
	publisher Publisher
	inbound   InboundHandler
	opts      Options

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// New creates a supervisor. publisher and inbound may be nil (status changes
// are then only logged, messages dropped), useful in tests and tooling.
func New(factory adapter.Factory, creds CredentialStore, publisher Publisher, inbound InboundHandler, opts Options) *Supervisor {
	return &Supervisor{
		factory:   factory,
		creds:     creds,
		publisher: publisher,
		inbound:   inbound,
		opts:      opts.withDefaults(),
		sessions:  make(map[string]*Session),
	}
}

// get returns the tenant's session, creating a disconnected one if needed.
func (sup *Supervisor) get(tenantID string) (*Session, error) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	if sup.closed {
		return nil, errors.New("supervisor is shutting down")
	}
	s, ok := sup.sessions[tenantID]
	if !ok {
		s = newSession(tenantID)
		sup.sessions[tenantID] = s
	}
	return s, nil
}

// acquire returns the tenant's registered session with its mutex held.
// Registration is re-checked after locking: a session torn down and removed
// from the registry between the map read and the lock must not be revived,
// or two live adapters could exist for one tenant.
func (sup *Supervisor) acquire(tenantID string) (*Session, error) {
	for {
		s, err := sup.get(tenantID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if sup.lookup(tenantID) == s {
			return s, nil
		}
		s.mu.Unlock()
	}
}

// lookup returns the tenant's session or nil, never creating one.
func (sup *Supervisor) lookup(tenantID string) *Session {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	return sup.sessions[tenantID]
}

// remove drops a fully disconnected session from the registry.
func (sup *Supervisor) remove(s *Session) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	if cur, ok := sup.sessions[s.tenantID]; ok && cur == s {
		delete(sup.sessions, s.tenantID)
	}
}

func (sup *Supervisor) publish(rec StatusRecord) {
	if sup.publisher != nil {
		sup.publisher.Publish(rec)
	}
}

// RequestPairing starts (or joins) a pairing attempt for the tenant and
// waits, bounded by Options.PairingWait and ctx, for the first scannable
// code or a confirmed connection. Concurrent calls for one tenant are
// coalesced onto a single attempt; a tenant that is already connected fails
// fast with ErrAlreadyConnected.
func (sup *Supervisor) RequestPairing(ctx context.Context, tenantID string) (string, error) {
	s, err := sup.acquire(tenantID)
	if err != nil {
		return "", err
	}

	switch s.status {
	case StatusConnected:
		s.mu.Unlock()
		return "", ErrAlreadyConnected

	case StatusQRPending:
		// Idempotent: hand back the in-flight code, or join the wait for
		// the first one.
		if s.lastCode != "" {
			code := s.lastCode
			s.mu.Unlock()
			return code, nil
		}
		if s.pending == nil {
			s.pending = newPairingWait()
		}
		w := s.pending
		s.mu.Unlock()
		return sup.awaitPairing(ctx, w)
	}

	// Disconnected: start a fresh attempt.
	w := newPairingWait()
	s.pending = w
	if err := sup.startLocked(s); err != nil {
		s.pending = nil
		s.mu.Unlock()
		return "", err
	}
	s.mu.Unlock()

	L_info("session: pairing started", "tenant", tenantID)
	return sup.awaitPairing(ctx, w)
}

// awaitPairing waits for a coalesced pairing result.
func (sup *Supervisor) awaitPairing(ctx context.Context, w *pairingWait) (string, error) {
	timer := time.NewTimer(sup.opts.PairingWait)
	defer timer.Stop()

	select {
	case <-w.done:
		if w.err != nil {
			return "", w.err
		}
		if w.connected {
			return "", ErrAlreadyConnected
		}
		return w.code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", ErrPairingTimeout
	}
}

// startLocked allocates the tenant's adapter client and begins the
// open/authenticate sequence. Caller holds s.mu and has verified the session
// is disconnected. This is the only place a client is created, which is what
// makes the at-most-one-connection invariant hold.
func (sup *Supervisor) startLocked(s *Session) error {
	var client adapter.Client
	client, err := sup.factory.NewClient(s.tenantID, func(evt adapter.Event) {
		sup.handleEvent(s, client, evt)
	})
	if err != nil {
		return fmt.Errorf("failed to create adapter for %s: %w", s.tenantID, err)
	}

	s.client = client
	s.status = StatusQRPending
	s.identity = ""
	s.lastCode = ""
	s.pairTimer = time.AfterFunc(sup.opts.PairingTimeout, func() {
		sup.onPairTimeout(s, client)
	})

	// Connect outside the lock: events may fire during the handshake and
	// need s.mu themselves.
	go sup.connect(s, client)

	sup.publish(StatusRecord{TenantID: s.tenantID, Status: StatusQRPending})
	return nil
}

// connect runs the adapter's open sequence; an immediate failure is folded
// into the normal link-loss path rather than handled specially.
func (sup *Supervisor) connect(s *Session, client adapter.Client) {
	if err := client.Connect(context.Background()); err != nil {
		sup.handleEvent(s, client, adapter.Disconnected{Err: err})
	}
}

// handleEvent applies one adapter event to the session. Events carry the
// client they came from; anything from a client the session no longer owns
// is dropped.
func (sup *Supervisor) handleEvent(s *Session, client adapter.Client, evt adapter.Event) {
	switch e := evt.(type) {
	case adapter.PairingCode:
		sup.onPairingCode(s, client, e)
	case adapter.Connected:
		sup.onConnected(s, client, e)
	case adapter.Disconnected:
		sup.onLinkLost(s, client, e.Err)
	case adapter.LoggedOut:
		sup.onLoggedOut(s, client, e.Reason)
	case adapter.Message:
		sup.onMessage(s, client, e)
	}
}

func (sup *Supervisor) onPairingCode(s *Session, client adapter.Client, e adapter.PairingCode) {
	s.mu.Lock()
	if s.client != client || s.status != StatusQRPending {
		s.mu.Unlock()
		return
	}
	// Self-loop: a new code replaces the old one, status unchanged
	s.lastCode = e.Code
	if s.pending != nil {
		s.pending.resolve(e.Code, false, nil)
		s.pending = nil
	}
	s.mu.Unlock()

	L_info("session: pairing code issued", "tenant", s.tenantID)
}

func (sup *Supervisor) onConnected(s *Session, client adapter.Client, e adapter.Connected) {
	s.mu.Lock()
	if s.client != client {
		s.mu.Unlock()
		return
	}
	s.status = StatusConnected
	s.identity = e.Identity
	s.connectedAt = time.Now()
	s.lastCode = ""
	if s.pairTimer != nil {
		s.pairTimer.Stop()
		s.pairTimer = nil
	}
	s.reconnectPending = false
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.pending != nil {
		s.pending.resolve("", true, nil)
		s.pending = nil
	}
	rec := StatusRecord{TenantID: s.tenantID, Status: StatusConnected, Identity: s.identity}
	s.mu.Unlock()

	L_info("session: connected", "tenant", s.tenantID, "identity", e.Identity)
	sup.publish(rec)
}

// onLinkLost handles a recoverable loss: schedule exactly one reconnect
// attempt per loss event, after the backoff delay. A loss before pairing
// ever completed has nothing to resume and is a definite pairing failure.
func (sup *Supervisor) onLinkLost(s *Session, client adapter.Client, cause error) {
	s.mu.Lock()
	if s.client != client || s.status == StatusDisconnected {
		s.mu.Unlock()
		return
	}

	if !client.HasCredentials() {
		// Pairing attempt died before the handshake; no partial state left
		if cause == nil {
			cause = ErrPairingFailed
		}
		old := sup.teardownLocked(s, cause)
		s.mu.Unlock()
		if old != nil {
			old.Close()
		}
		sup.remove(s)
		L_warn("session: pairing failed", "tenant", s.tenantID, "error", cause)
		sup.publish(StatusRecord{TenantID: s.tenantID, Status: StatusDisconnected})
		return
	}

	if s.reconnectPending {
		s.mu.Unlock()
		return
	}

	// A connection that stayed up long enough clears accumulated backoff.
	// Only the first loss after that stretch counts: connectedAt is zeroed
	// so follow-up failures from the retry chain escalate instead of
	// resetting back to the initial delay.
	if s.status == StatusConnected && !s.connectedAt.IsZero() &&
		time.Since(s.connectedAt) > backoffResetThreshold {
		s.backoff.Reset()
	}
	s.connectedAt = time.Time{}

	delay := s.backoff.Next()
	s.reconnectPending = true
	s.reconnectTimer = time.AfterFunc(delay, func() {
		sup.attemptReconnect(s, client)
	})
	s.mu.Unlock()

	L_warn("session: link lost, reconnect scheduled",
		"tenant", s.tenantID, "delay", delay, "error", cause)
}

// attemptReconnect resumes the session from stored credentials. A failure
// surfaces as another link loss and gets scheduled again, never a
// synchronous retry loop.
func (sup *Supervisor) attemptReconnect(s *Session, client adapter.Client) {
	s.mu.Lock()
	if s.client != client || s.status == StatusDisconnected {
		s.mu.Unlock()
		return
	}
	s.reconnectPending = false
	s.reconnectTimer = nil
	s.mu.Unlock()

	L_debug("session: reconnect attempt", "tenant", s.tenantID)
	if err := client.Connect(context.Background()); err != nil {
		sup.handleEvent(s, client, adapter.Disconnected{Err: err})
	}
}

// onLoggedOut handles the terminal unlink: credentials are gone network-side
// and must be deleted locally; the tenant re-pairs from scratch.
func (sup *Supervisor) onLoggedOut(s *Session, client adapter.Client, reason string) {
	s.mu.Lock()
	if s.client != client {
		s.mu.Unlock()
		return
	}
	old := sup.teardownLocked(s, fmt.Errorf("logged out: %s", reason))
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	sup.remove(s)

	if err := sup.creds.Delete(s.tenantID); err != nil {
		L_error("session: failed to delete credentials after logout",
			"tenant", s.tenantID, "error", err)
	}

	L_warn("session: logged out, re-pairing required", "tenant", s.tenantID, "reason", reason)
	sup.publish(StatusRecord{TenantID: s.tenantID, Status: StatusDisconnected})
}

// onPairTimeout fires when the qr_pending phase exceeds its bound. A stalled
// resume (credentials exist) is recoverable; a stalled pairing is not.
func (sup *Supervisor) onPairTimeout(s *Session, client adapter.Client) {
	s.mu.Lock()
	if s.client != client || s.status != StatusQRPending {
		s.mu.Unlock()
		return
	}
	s.pairTimer = nil

	if client.HasCredentials() {
		s.mu.Unlock()
		sup.onLinkLost(s, client, errors.New("resume timed out"))
		return
	}

	old := sup.teardownLocked(s, ErrPairingTimeout)
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	sup.remove(s)

	L_warn("session: pairing timed out", "tenant", s.tenantID)
	sup.publish(StatusRecord{TenantID: s.tenantID, Status: StatusDisconnected})
}

// teardownLocked returns the session to disconnected, settling any pending
// pairing request with cause. Caller holds s.mu; the returned client must be
// closed outside the lock.
func (sup *Supervisor) teardownLocked(s *Session, cause error) adapter.Client {
	if s.pending != nil {
		s.pending.resolve("", false, cause)
		s.pending = nil
	}
	s.stopTimersLocked()
	client := s.client
	s.client = nil
	s.status = StatusDisconnected
	s.identity = ""
	s.lastCode = ""
	return client
}

// onMessage forwards an inbound message to the relay, with a reply function
// bound to this tenant's session.
func (sup *Supervisor) onMessage(s *Session, client adapter.Client, msg adapter.Message) {
	s.mu.Lock()
	if s.client != client {
		s.mu.Unlock()
		return
	}
	identity := s.identity
	s.mu.Unlock()

	if sup.inbound == nil {
		return
	}

	reply := func(ctx context.Context, to, text string) (string, error) {
		return sup.Send(ctx, s.tenantID, to, text)
	}
	sup.inbound.HandleInbound(s.tenantID, identity, msg, reply)
}

// Send delivers a text message through the tenant's connected session.
func (sup *Supervisor) Send(ctx context.Context, tenantID, to, text string) (string, error) {
	s := sup.lookup(tenantID)
	if s == nil {
		return "", ErrNotConnected
	}

	s.mu.Lock()
	if s.status != StatusConnected || s.client == nil {
		s.mu.Unlock()
		return "", ErrNotConnected
	}
	client := s.client
	s.mu.Unlock()

	return client.SendText(ctx, to, text)
}

// Status returns the tenant's status record. Unknown tenants are simply
// disconnected, never an error.
func (sup *Supervisor) Status(tenantID string) StatusRecord {
	s := sup.lookup(tenantID)
	if s == nil {
		return StatusRecord{TenantID: tenantID, Status: StatusDisconnected}
	}
	return s.snapshot()
}

// Snapshot returns status records for every live session.
func (sup *Supervisor) Snapshot() []StatusRecord {
	sup.mu.Lock()
	sessions := make([]*Session, 0, len(sup.sessions))
	for _, s := range sup.sessions {
		sessions = append(sessions, s)
	}
	sup.mu.Unlock()

	recs := make([]StatusRecord, 0, len(sessions))
	for _, s := range sessions {
		recs = append(recs, s.snapshot())
	}
	return recs
}

// Disconnect is the tenant-initiated teardown: unlink network-side (best
// effort), drop the adapter, delete stored credentials. Disconnecting an
// already-disconnected tenant is a no-op success.
func (sup *Supervisor) Disconnect(ctx context.Context, tenantID string) error {
	s := sup.lookup(tenantID)
	if s != nil {
		s.mu.Lock()
		old := sup.teardownLocked(s, errors.New("disconnected by request"))
		s.mu.Unlock()

		if old != nil {
			if err := old.Logout(ctx); err != nil {
				L_warn("session: network-side logout failed", "tenant", tenantID, "error", err)
			}
			old.Close()
			sup.publish(StatusRecord{TenantID: tenantID, Status: StatusDisconnected})
		}
		sup.remove(s)
	}

	if err := sup.creds.Delete(tenantID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}

	L_info("session: disconnected", "tenant", tenantID)
	return nil
}

// Resume starts the qr_pending-equivalent resume path for a tenant with
// stored credentials, without issuing a human-facing pairing code. A tenant
// that already has a live session is left alone.
func (sup *Supervisor) Resume(tenantID string) error {
	s, err := sup.acquire(tenantID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.status != StatusDisconnected {
		return nil
	}
	return sup.startLocked(s)
}

// RestoreAll resumes every tenant with stored credentials, bounding the
// number of simultaneously-initializing tenants and staggering launches so
// a process restart does not open every connection at once. One tenant's
// failure never blocks another's; the first listing error is returned.
func (sup *Supervisor) RestoreAll(ctx context.Context) error {
	tenants, err := sup.creds.ListKnownTenants()
	if err != nil {
		return fmt.Errorf("failed to list known tenants: %w", err)
	}

	L_info("session: restoring tenants", "count", len(tenants))

	sem := make(chan struct{}, sup.opts.RestoreConcurrency)
	var wg sync.WaitGroup
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := sup.Resume(id); err != nil {
				L_warn("session: restore failed", "tenant", id, "error", err)
			}
		}(tenantID)

		if sup.opts.RestoreStagger > 0 {
			time.Sleep(sup.opts.RestoreStagger)
		}
	}
	wg.Wait()
	return nil
}

// Shutdown drops every live connection without touching stored credentials,
// so sessions resume on the next start.
func (sup *Supervisor) Shutdown() {
	sup.mu.Lock()
	sup.closed = true
	sessions := make([]*Session, 0, len(sup.sessions))
	for _, s := range sup.sessions {
		sessions = append(sessions, s)
	}
	sup.sessions = make(map[string]*Session)
	sup.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		old := sup.teardownLocked(s, errors.New("supervisor shutting down"))
		s.mu.Unlock()
		if old != nil {
			old.Close()
		}
	}

	L_info("session: supervisor stopped", "sessions", len(sessions))
}
