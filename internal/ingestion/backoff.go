package ingestion

import (
	"context"
	"time"
)

const (
	defaultReconnectMin = time.Second
	defaultReconnectMax = 30 * time.Second
)

// backoff doubles a reconnect delay between min and max.
type backoff struct {
	min, max time.Duration
	next     time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	if min <= 0 {
		min = defaultReconnectMin
	}
	if max < min {
		max = defaultReconnectMax
		if max < min {
			max = min
		}
	}
	return &backoff{min: min, max: max, next: min}
}

// Next returns the delay to wait now and doubles the following one.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Reset restarts from min after a successful connection.
func (b *backoff) Reset() {
	b.next = b.min
}

// sleepCtx waits for d or ctx cancellation and reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
