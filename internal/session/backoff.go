package session

import "time"

const (
	initialReconnectDelay = 2 * time.Second
	maxReconnectDelay     = 5 * time.Minute
	// A connection that survives this long counts as healthy and clears
	// the accumulated backoff.
	backoffResetThreshold = 5 * time.Minute
)

// backoff produces the delay before the next reconnect attempt, doubling on
// each consecutive loss and capped at maxReconnectDelay.
type backoff struct {
	next time.Duration
}

func newBackoff() *backoff {
	return &backoff{next: initialReconnectDelay}
}

// Next returns the delay to wait before the next attempt and advances the
// sequence.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > maxReconnectDelay {
		b.next = maxReconnectDelay
	}
	return d
}

// Reset returns the sequence to the initial delay.
func (b *backoff) Reset() {
	b.next = initialReconnectDelay
}
