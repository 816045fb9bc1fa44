package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/playerhub/internal/model"
	"github.com/mcoot/playerhub/internal/presence"
)

const (
	feedBufferSize = 256
	publishTimeout = 2 * time.Second
)

// feed forwards broadcast events to the presence publisher off the event loop
type feed struct {
	publisher presence.Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	events  chan model.OutboundEvent
	done   chan struct{}
}

func newFeed(publisher presence.Publisher, logger *slog.Logger) *feed {
	f := &feed{
		publisher: publisher,
		logger:    logger,
		events:    make(chan model.OutboundEvent, feedBufferSize),
		done:      make(chan struct{}),
	}
	return f
}

// start launches the publishing goroutine. Events enqueued earlier are
// buffered until then.
func (f *feed) start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.closed {
		return
	}
	f.started = true
	go f.run()
}

func (f *feed) enqueue(event model.OutboundEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.events <- event:
	default:
		f.logger.Warn("presence feed full, event dropped", slog.String("event", string(event.Type())))
	}
}

func (f *feed) run() {
	defer close(f.done)
	for event := range f.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := f.publisher.Publish(ctx, event); err != nil {
			f.logger.Warn("presence publish failed",
				slog.String("event", string(event.Type())),
				slog.Any("error", err))
		}
		cancel()
	}
}

// close stops accepting events and, if started, waits until the queue is
// flushed
func (f *feed) close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	started := f.started
	f.mu.Unlock()
	if started {
		<-f.done
	}
}
