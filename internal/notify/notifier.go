// Package notify delivers issue lifecycle events to downstream consumers
// without ever blocking or failing the transition that produced them.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/complyhq/issues-backend/v2/model"
	"go.uber.org/zap"
)

// DefaultQueueSize is used when a non-positive queue size is configured.
const DefaultQueueSize = 256

// deliveryTimeout bounds a single Publish call.
const deliveryTimeout = 10 * time.Second

// Publisher ships one lifecycle event to its destination.
type Publisher interface {
	Publish(ctx context.Context, event model.LifecycleEvent) error
}

// Notifier queues lifecycle events on a bounded channel and delivers them
// from a single goroutine, preserving emit order.
type Notifier struct {
	publisher Publisher
	logger    *zap.Logger
	queue     chan model.LifecycleEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped   atomic.Int64
	failed    atomic.Int64
	delivered atomic.Int64
}

// New starts a notifier delivering to publisher.
func New(publisher Publisher, queueSize int, logger *zap.Logger) *Notifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		publisher: publisher,
		logger:    logger,
		queue:     make(chan model.LifecycleEvent, queueSize),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

// Emit enqueues event and returns false when it had to be dropped because
// the queue is full or the notifier is closed.
func (n *Notifier) Emit(event model.LifecycleEvent) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.dropped.Add(1)
		n.logger.Warn("Lifecycle event dropped, notifier closed", zap.String("issue_id", event.IssueID))
		return false
	}

	select {
	case n.queue <- event:
		return true
	default:
		n.dropped.Add(1)
		n.logger.Warn("Lifecycle event dropped, queue full",
			zap.String("issue_id", event.IssueID),
			zap.String("old_status", string(event.OldStatus)),
			zap.String("new_status", string(event.NewStatus)))
		return false
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for event := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		err := n.publisher.Publish(ctx, event)
		cancel()
		if err != nil {
			n.failed.Add(1)
			n.logger.Error("Failed to deliver lifecycle event",
				zap.String("event_id", event.EventID),
				zap.String("issue_id", event.IssueID),
				zap.Error(err))
			continue
		}
		n.delivered.Add(1)
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or until ctx is done.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports delivery counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Delivered: n.delivered.Load(),
		Failed:    n.failed.Load(),
		Dropped:   n.dropped.Load(),
	}
}

// Stats is a snapshot of notifier counters.
type Stats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// LogPublisher writes events to the log. It is used when kafka is disabled.
type LogPublisher struct {
	Logger *zap.Logger
}

// Publish implements Publisher.
func (p LogPublisher) Publish(_ context.Context, event model.LifecycleEvent) error {
	p.Logger.Info("Issue lifecycle event",
		zap.String("event_id", event.EventID),
		zap.String("issue_id", event.IssueID),
		zap.String("document_id", event.DocumentID),
		zap.String("framework", event.Framework),
		zap.String("old_status", string(event.OldStatus)),
		zap.String("new_status", string(event.NewStatus)),
		zap.String("changed_by", event.ChangedBy),
		zap.String("reason", event.Reason))
	return nil
}
