package realtime

import (
	"context"
	"sync"

	"github.com/mcoot/playerhub/internal/model"
)

// recordingOutbox captures delivered events in memory
type recordingOutbox struct {
	id model.ConnectionID

	mu         sync.Mutex
	events     []model.OutboundEvent
	closed     bool
	closeCalls int
	sendErr    error
}

func newRecordingOutbox(id model.ConnectionID) *recordingOutbox {
	return &recordingOutbox{id: id}
}

func (o *recordingOutbox) ID() model.ConnectionID { return o.id }

func (o *recordingOutbox) Send(event model.OutboundEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return model.ErrConnectionClosed
	}
	if o.sendErr != nil {
		return o.sendErr
	}
	o.events = append(o.events, event)
	return nil
}

func (o *recordingOutbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.closeCalls++
	return nil
}

func (o *recordingOutbox) Events() []model.OutboundEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.OutboundEvent, len(o.events))
	copy(out, o.events)
	return out
}

func (o *recordingOutbox) Last() model.OutboundEvent {
	events := o.Events()
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

func (o *recordingOutbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = nil
}

func (o *recordingOutbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *recordingOutbox) FailSends(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sendErr = err
}

// recordingPublisher captures published presence events
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.OutboundEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.OutboundEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []model.OutboundEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.OutboundEvent, len(p.events))
	copy(out, p.events)
	return out
}
