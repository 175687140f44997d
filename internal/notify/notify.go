// Package notify queues notifications raised while a task executes and
// delivers them after the work function returns. One notifier lives on each
// connection context frame. Delivery to the sink is retried a bounded
// number of times with exponential backoff; there is no infinite retry.
package notify

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"drover/internal/errors"
	"drover/internal/logger"
)

// maxDeliveryRetries bounds per-notification delivery attempts beyond the
// first one.
const maxDeliveryRetries = 3

// Notification is one deferred message.
type Notification struct {
	Task    string
	Server  string
	Message string
}

// Sink delivers notifications to their destination. Implementations may
// fail transiently; the notifier retries.
type Sink interface {
	Deliver(n Notification) error
}

// Notifier queues notifications for post-execution delivery.
type Notifier struct {
	mu    sync.Mutex
	sink  Sink
	queue []Notification
	log   logger.Logger
}

// New creates a notifier delivering to sink. A nil sink logs notifications
// instead.
func New(sink Sink, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.Default()
	}
	if sink == nil {
		sink = &logSink{log: log}
	}
	return &Notifier{sink: sink, log: log}
}

// Defer queues a notification for delivery at Flush time.
func (n *Notifier) Defer(msg Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, msg)
}

// Pending returns the number of queued notifications.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Flush delivers queued notifications in order. Each delivery is retried
// with exponential backoff up to maxDeliveryRetries times; the first
// notification that still fails stops the flush and the remainder stays
// queued for a later attempt.
func (n *Notifier) Flush() error {
	n.mu.Lock()
	pending := n.queue
	n.queue = nil
	n.mu.Unlock()

	for i, msg := range pending {
		policy := backoff.WithMaxRetries(newBackOff(), maxDeliveryRetries)
		deliver := func() error { return n.sink.Deliver(msg) }

		if err := backoff.Retry(deliver, policy); err != nil {
			// Requeue the failed notification and everything after it
			n.mu.Lock()
			n.queue = append(pending[i:], n.queue...)
			n.mu.Unlock()

			return errors.WrapWithCode(err, errors.ErrReport,
				"Notification delivery failed",
				"The sink kept rejecting the notification; it stays queued.")
		}
	}

	return nil
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	return b
}

// logSink writes notifications to the logger.
type logSink struct {
	log logger.Logger
}

func (s *logSink) Deliver(n Notification) error {
	s.log.Info("[%s] %s: %s", n.Server, n.Task, n.Message)
	return nil
}
