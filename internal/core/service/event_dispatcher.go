package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront-cache/internal/core/domain"
	"github.com/rl1809/storefront-cache/internal/port"
)

const defaultSinkTimeout = 5 * time.Second

// EventDispatcher drains balance changes into the journal and the event publisher.
// Either sink may be nil. Sink failures are logged and the event moves on.
type EventDispatcher struct {
	journal   port.BalanceJournalRepository
	publisher port.BalanceEventPublisher
	logger    *zap.Logger
	timeout   time.Duration
}

func NewEventDispatcher(journal port.BalanceJournalRepository, publisher port.BalanceEventPublisher, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventDispatcher{
		journal:   journal,
		publisher: publisher,
		logger:    logger,
		timeout:   defaultSinkTimeout,
	}
}

// Run starts workers reading from queue and blocks until the queue is closed and drained.
func (d *EventDispatcher) Run(queue <-chan domain.BalanceChange, workers int) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.workerLoop(id, queue)
		}(i)
	}
	wg.Wait()
}

func (d *EventDispatcher) workerLoop(id int, queue <-chan domain.BalanceChange) {
	for change := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		d.dispatch(ctx, id, change)
		cancel()
	}
}

func (d *EventDispatcher) dispatch(ctx context.Context, worker int, change domain.BalanceChange) {
	if d.journal != nil {
		if err := d.journal.AppendChange(ctx, change); err != nil {
			d.logger.Error("Failed to journal balance change",
				zap.Int("worker", worker),
				zap.String("event_id", change.ID),
				zap.String("session_id", change.SessionID),
				zap.String("record_id", change.RecordID),
				zap.Error(err))
		}
	}

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, change); err != nil {
			d.logger.Warn("Failed to publish balance change",
				zap.Int("worker", worker),
				zap.String("event_id", change.ID),
				zap.String("session_id", change.SessionID),
				zap.Error(err))
		}
	}
}
