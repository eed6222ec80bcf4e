// Package notify mirrors session status transitions to the system-of-record
// over a webhook. Best-effort: failures are logged, never retried, and a
// slow endpoint never blocks a session transition.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	. "github.com/sellerdesk/walink/internal/logging"
	"github.com/sellerdesk/walink/internal/session"
)

const queueSize = 256

// Publisher posts status records to the system-of-record. Publish enqueues
// and returns immediately; a single worker drains the queue.
type Publisher struct {
	url    string
	client *http.Client
	queue  chan payload
	done   chan struct{}
}

type payload struct {
	TenantID    string `json:"tenant_id"`
	Status      string `json:"status"`
	Identity    string `json:"identity,omitempty"`
	ConnectedAt string `json:"connected_at,omitempty"`
}

// New creates a publisher posting to url. An empty url yields a publisher
// that only logs transitions, for development setups without a backend.
func New(url string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	p := &Publisher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		queue:  make(chan payload, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues a status transition. Never blocks: if the queue is full
// the record is dropped with a warning (the reconcile sweep re-publishes
// snapshots later).
func (p *Publisher) Publish(rec session.StatusRecord) {
	pl := payload{
		TenantID: rec.TenantID,
		Status:   string(rec.Status),
		Identity: rec.Identity,
	}
	if rec.Status == session.StatusConnected {
		pl.ConnectedAt = time.Now().UTC().Format(time.RFC3339)
	}

	select {
	case p.queue <- pl:
	case <-p.done:
	default:
		L_warn("notify: queue full, dropping status update",
			"tenant", rec.TenantID, "status", rec.Status)
	}
}

// Close stops the worker after draining what it can.
func (p *Publisher) Close() {
	close(p.done)
}

func (p *Publisher) run() {
	for {
		select {
		case pl := <-p.queue:
			p.post(pl)
		case <-p.done:
			return
		}
	}
}

func (p *Publisher) post(pl payload) {
	if p.url == "" {
		L_info("notify: status changed", "tenant", pl.TenantID, "status", pl.Status, "identity", pl.Identity)
		return
	}

	body, err := json.Marshal(pl)
	if err != nil {
		L_error("notify: failed to marshal status", "tenant", pl.TenantID, "error", err)
		return
	}

	resp, err := p.client.Post(p.url, "application/json", bytes.NewReader(body))
	if err != nil {
		L_warn("notify: status webhook failed", "tenant", pl.TenantID, "status", pl.Status, "error", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		L_warn("notify: status webhook rejected", "tenant", pl.TenantID, "code", resp.StatusCode)
	}
}
