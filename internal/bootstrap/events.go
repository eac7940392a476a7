package bootstrap

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kingrea/bootstrap/internal/unit"
)

const defaultSubscriberCapacity = 100

// EventType names a unit lifecycle transition.
type EventType string

const (
	// EventDispatched fires when a unit is handed its turn. For async units
	// this is before the unit completes.
	EventDispatched EventType = "unit.dispatched"
	// EventCompleted fires when a unit returns without error.
	EventCompleted EventType = "unit.completed"
	// EventFailed fires when a unit returns an error or panics.
	EventFailed EventType = "unit.failed"
)

// Event is published for every unit transition of a run.
type Event struct {
	RunID    string
	Seq      int64
	Type     EventType
	Kind     unit.Kind
	Priority int
	Async    bool
	Err      error
	Elapsed  time.Duration
	At       time.Time
}

// Subscription is an event stream bound to one Manager. Events is closed when
// Run returns or Close is called.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// notifier fans events out to subscribers without ever blocking the scheduler.
type notifier struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	capacity    int
	closed      bool
	seq         int64
	logger      *slog.Logger
}

type subscriber struct {
	ch      chan Event
	dropped int
}

func newNotifier(capacity int, logger *slog.Logger) *notifier {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &notifier{
		subscribers: map[*subscriber]struct{}{},
		capacity:    capacity,
		logger:      logger,
	}
}

func (n *notifier) subscribe() Subscription {
	sub := &subscriber{ch: make(chan Event, n.capacity)}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(sub.ch)
		return Subscription{Events: sub.ch}
	}
	n.subscribers[sub] = struct{}{}
	return Subscription{
		Events: sub.ch,
		cancel: func() { n.remove(sub) },
	}
}

func (n *notifier) publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	ev.Seq = n.seq
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for sub := range n.subscribers {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			n.logger.Warn("Dropped bootstrap event for slow subscriber.",
				"type", ev.Type, "kind", ev.Kind, "seq", ev.Seq, "dropped", sub.dropped)
		}
	}
}

func (n *notifier) remove(sub *subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subscribers[sub]; !ok {
		return
	}
	delete(n.subscribers, sub)
	close(sub.ch)
}

// close ends every subscription. Later subscribers get a closed channel.
func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for sub := range n.subscribers {
		close(sub.ch)
		delete(n.subscribers, sub)
	}
}
