package testutil

import (
	"context"
	"sync"

	"github.com/engramchat/engram/pkg/eventstream"
)

// CapturePublisher records every published exchange event for assertions.
type CapturePublisher struct {
	mu     sync.Mutex
	events []*eventstream.ExchangePersistedEvent

	// Err makes PublishExchange fail when non-nil.
	Err error
}

func (p *CapturePublisher) PublishExchange(_ context.Context, event *eventstream.ExchangePersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilExchangeEvent
	}
	if p.Err != nil {
		return p.Err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *CapturePublisher) Close() error {
	return nil
}

// Events returns a copy of the captured events.
func (p *CapturePublisher) Events() []*eventstream.ExchangePersistedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*eventstream.ExchangePersistedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Ensure CapturePublisher implements eventstream.Publisher
var _ eventstream.Publisher = (*CapturePublisher)(nil)
