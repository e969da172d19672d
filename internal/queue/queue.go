// Package queue provides the bounded multi-producer / single-consumer queue
// that carries candidates and trade updates from sources to the scorer.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"solana-token-radar/internal/domain"
)

// DefaultCapacity matches the discovery max_queue default.
const DefaultCapacity = 2000

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("queue closed")

// Kind distinguishes message payloads.
type Kind uint8

const (
	KindCandidate Kind = iota + 1
	KindTrade
)

// Message is a single queue item. Exactly one payload is set, matching Kind.
type Message struct {
	Kind      Kind
	Candidate *domain.Candidate
	Trade     *domain.TradeUpdate
}

// CandidateMessage wraps c.
func CandidateMessage(c *domain.Candidate) Message {
	return Message{Kind: KindCandidate, Candidate: c}
}

// TradeMessage wraps t.
func TradeMessage(t domain.TradeUpdate) Message {
	return Message{Kind: KindTrade, Trade: &t}
}

// Sink is the producer side handed to sources.
type Sink interface {
	// PushCandidate enqueues c. Returns false when an older item was dropped.
	PushCandidate(c *domain.Candidate) bool
	// PushTrade enqueues t. Returns false when an older item was dropped.
	PushTrade(t domain.TradeUpdate) bool
}

// Queue is a bounded queue with a drop-oldest overflow policy.
// Push never blocks; Receive blocks until a message, ctx cancellation or Close.
type Queue struct {
	ch      chan Message
	pushMu  sync.Mutex // serializes producers so drop+enqueue is atomic
	dropped atomic.Uint64
	pushed  atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}

	onDrop func()
}

// Option configures Queue.
type Option func(*Queue)

// WithDropHook registers a callback invoked for every dropped message.
func WithDropHook(fn func()) Option {
	return func(q *Queue) {
		q.onDrop = fn
	}
}

// New creates a queue holding at most capacity messages.
func New(capacity int, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{
		ch:     make(chan Message, capacity),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push enqueues m. When the queue is full the oldest message is discarded
// first. Returns false when a message was dropped to make room.
func (q *Queue) Push(m Message) bool {
	select {
	case <-q.closed:
		return false
	default:
	}

	q.pushMu.Lock()
	defer q.pushMu.Unlock()

	q.pushed.Add(1)
	select {
	case q.ch <- m:
		return true
	default:
	}

	// Full: the consumer may drain concurrently, so the eviction is best effort.
	evicted := false
	select {
	case <-q.ch:
		evicted = true
	default:
	}
	if evicted {
		q.recordDrop()
	}

	select {
	case q.ch <- m:
	default:
		// Only reachable if the consumer is absent and capacity is zero.
		q.recordDrop()
		return false
	}
	return !evicted
}

// PushCandidate implements Sink.
func (q *Queue) PushCandidate(c *domain.Candidate) bool {
	if c == nil {
		return true
	}
	return q.Push(CandidateMessage(c))
}

// PushTrade implements Sink.
func (q *Queue) PushTrade(t domain.TradeUpdate) bool {
	return q.Push(TradeMessage(t))
}

// Receive blocks for the next message.
func (q *Queue) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-q.ch:
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-q.closed:
		return Message{}, ErrClosed
	}
}

// TryReceive returns the next message without blocking.
func (q *Queue) TryReceive() (Message, bool) {
	select {
	case m := <-q.ch:
		return m, true
	default:
		return Message{}, false
	}
}

// Close wakes any blocked receiver. Pending messages stay readable through
// TryReceive. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Dropped returns the total number of messages discarded by overflow.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Pushed returns the total number of push attempts.
func (q *Queue) Pushed() uint64 {
	return q.pushed.Load()
}

func (q *Queue) recordDrop() {
	q.dropped.Add(1)
	if q.onDrop != nil {
		q.onDrop()
	}
}

var _ Sink = (*Queue)(nil)
