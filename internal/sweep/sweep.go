// Package sweep runs the periodic reconcile job: it re-announces every
// tenant's current status and nudges credentialed tenants that fell
// disconnected back toward a resume attempt.
package sweep

import (
	"time"

	cronlib "github.com/robfig/cron/v3"

	. "github.com/sellerdesk/walink/internal/logging"
	"github.com/sellerdesk/walink/internal/session"
)

// Sessions is the slice of the supervisor the sweeper needs.
type Sessions interface {
	Snapshot() []session.StatusRecord
	Resume(tenantID string) error
}

// Credentials reports which tenants have stored credentials on disk.
type Credentials interface {
	Exists(tenantID string) bool
	ListKnownTenants() ([]string, error)
}

// Publisher re-announces status records downstream.
type Publisher interface {
	Publish(rec session.StatusRecord)
}

// Sweeper schedules and runs the reconcile pass.
type Sweeper struct {
	sessions  Sessions
	creds     Credentials
	publisher Publisher
	cron      *cronlib.Cron
}

// New creates a sweeper. Call Start to begin scheduling.
func New(sessions Sessions, creds Credentials, publisher Publisher) *Sweeper {
	return &Sweeper{
		sessions:  sessions,
		creds:     creds,
		publisher: publisher,
		cron:      cronlib.New(),
	}
}

// Start registers the sweep on the given schedule ("@every 10m" or a
// standard 5-field cron expression) and starts the scheduler.
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.Run); err != nil {
		return err
	}
	s.cron.Start()
	L_info("sweep: scheduled", "schedule", schedule)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Run executes one reconcile pass. Safe to call directly.
func (s *Sweeper) Run() {
	start := time.Now()

	live := make(map[string]session.StatusRecord)
	for _, rec := range s.sessions.Snapshot() {
		live[rec.TenantID] = rec
		s.publisher.Publish(rec)
	}

	// Credentialed tenants with no live session lost their supervisor
	// state somewhere (crash, restore failure). Kick off a resume.
	known, err := s.creds.ListKnownTenants()
	if err != nil {
		L_error("sweep: failed to list tenants", "error", err)
		return
	}

	resumed := 0
	for _, tenantID := range known {
		if rec, ok := live[tenantID]; ok && rec.Status != session.StatusDisconnected {
			continue
		}
		if !s.creds.Exists(tenantID) {
			continue
		}
		if err := s.sessions.Resume(tenantID); err != nil {
			L_warn("sweep: resume failed", "tenant", tenantID, "error", err)
			continue
		}
		resumed++
	}

	L_debug("sweep: pass complete",
		"sessions", len(live),
		"known", len(known),
		"resumed", resumed,
		"duration", time.Since(start))
}
