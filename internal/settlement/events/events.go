// Package events carries observable outcomes of settlement work. Detached
// settlements and inbound credits have no caller to report failures to, so
// every outcome is emitted here and can be asserted on, streamed or logged.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	KindSettlementSent        Kind = "settlement.sent"
	KindSettlementFailed      Kind = "settlement.failed"
	KindCreditNotified        Kind = "credit.notified"
	KindCreditFailed          Kind = "credit.failed"
	KindTransactionRejected   Kind = "transaction.rejected"
	KindTransactionUnresolved Kind = "transaction.unresolved"
)

// Stages of an outbound settlement that can fail.
const (
	StageHandshake = "handshake"
	StagePlugin    = "plugin"
)

type Event struct {
	Kind       Kind      `json:"kind"`
	AccountID  string    `json:"account_id,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Scale      int       `json:"scale"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink receives events. Emit must not block the caller for long.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Channel buffers events for a background consumer. Events emitted while the
// buffer is full, or after Close, are dropped and counted.
type Channel struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan Event
	dropped atomic.Int64
}

func NewChannel(size int) *Channel {
	return &Channel{ch: make(chan Event, size)}
}

func (c *Channel) Emit(_ context.Context, event Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.ch <- event:
	default:
		c.dropped.Add(1)
	}
}

// Events is the consumer side of the buffer.
func (c *Channel) Events() <-chan Event {
	return c.ch
}

// Close ends the stream so a Worker can drain and return. It is safe to call
// more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds lists recorded event kinds in emission order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}
