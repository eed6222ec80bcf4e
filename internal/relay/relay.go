// Package relay bridges inbound messages to the external responder and
// sends replies back out through the session they arrived on.
package relay

import (
	"context"
	"time"

	"github.com/sellerdesk/walink/internal/adapter"
	. "github.com/sellerdesk/walink/internal/logging"
	"github.com/sellerdesk/walink/internal/session"
)

// Responder produces reply text for an inbound message. An empty reply
// means no response should be sent. This is the external AI assistant; its
// conversational logic lives elsewhere.
type Responder interface {
	Reply(ctx context.Context, tenantID, sender, text string) (string, error)
}

// Relay implements session.InboundHandler for all tenants. A failing or
// slow responder call affects only the tenant whose message triggered it.
type Relay struct {
	responder Responder
	timeout   time.Duration
}

// New creates a relay that gives the responder up to timeout per message.
func New(responder Responder, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Relay{responder: responder, timeout: timeout}
}

// HandleInbound processes one inbound message: suppress echoes, drop
// messages with no extractable text, ask the responder, send any reply back
// to the sender. Errors are logged per tenant and absorbed.
func (r *Relay) HandleInbound(tenantID, selfIdentity string, msg adapter.Message, reply session.ReplyFunc) {
	// Echo suppression: the tenant's own outbound traffic loops back as
	// message events
	if msg.FromSelf || (selfIdentity != "" && msg.Sender == selfIdentity) {
		return
	}

	if msg.Text == "" {
		L_debug("relay: no extractable text, dropping", "tenant", tenantID, "sender", msg.Sender)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	answer, err := r.responder.Reply(ctx, tenantID, msg.Sender, msg.Text)
	if err != nil {
		L_error("relay: responder failed", "tenant", tenantID, "sender", msg.Sender, "error", err)
		return
	}
	if answer == "" {
		return
	}

	if _, err := reply(ctx, msg.Sender, answer); err != nil {
		L_error("relay: failed to send reply", "tenant", tenantID, "sender", msg.Sender, "error", err)
	}
}
