package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/general-store/internal/core/domain"
	"github.com/rl1809/general-store/internal/port"
)

const publishTimeout = 5 * time.Second

// EventDispatcher decouples event publication from request handling: the
// service enqueues, a pool of workers publishes.
type EventDispatcher struct {
	publisher port.EventPublisher
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan domain.Event
	wg     sync.WaitGroup
}

func NewEventDispatcher(publisher port.EventPublisher, queueSize int, logger *slog.Logger) *EventDispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EventDispatcher{
		publisher: publisher,
		logger:    logger,
		queue:     make(chan domain.Event, queueSize),
	}
}

// Enqueue never blocks; when the queue is full or closed the event is dropped.
func (d *EventDispatcher) Enqueue(event domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("event dropped after close", "event_id", event.ID, "type", event.Type)
		return
	}

	select {
	case d.queue <- event:
	default:
		d.logger.Warn("event queue full, dropping event", "event_id", event.ID, "type", event.Type)
	}
}

// Start launches workerCount publishing workers.
func (d *EventDispatcher) Start(workerCount int) {
	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	d.logger.Info("started event workers", "count", workerCount)
}

// Close stops accepting events and waits for the workers to drain the queue.
func (d *EventDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *EventDispatcher) workerLoop(id int) {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Error("failed to publish event",
				"worker", id,
				"event_id", event.ID,
				"type", event.Type,
				"error", err,
			)
		} else {
			d.logger.Debug("published event", "worker", id, "event_id", event.ID, "type", event.Type)
		}

		cancel()
	}
}
