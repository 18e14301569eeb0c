package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	mu        sync.Mutex
	published []Event
	failKind  Kind
}

func (p *stubPublisher) Publish(_ context.Context, e Event) error {
	if e.Kind == p.failKind {
		return errors.New("broker down")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, e)
	return nil
}

func (p *stubPublisher) kinds() []Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Kind
	for _, e := range p.published {
		out = append(out, e.Kind)
	}
	return out
}

func TestWorkerDrainsUntilInboxClosed(t *testing.T) {
	inbox := make(chan Event, 3)
	inbox <- Event{Kind: KindSettlementSent}
	inbox <- Event{Kind: KindCreditFailed}
	inbox <- Event{Kind: KindCreditNotified}
	close(inbox)

	pub := &stubPublisher{failKind: KindCreditFailed}
	err := NewWorker(pub, inbox, nil).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []Kind{KindSettlementSent, KindCreditNotified}, pub.kinds(), "failed publish does not stop the worker")
}

func TestWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewWorker(&stubPublisher{}, make(chan Event), nil).Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
