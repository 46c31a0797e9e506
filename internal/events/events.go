// Package events is a small in-process publish/subscribe bus carrying
// StateChanged notifications from the Process Manager to the
// status dashboard.
//
// Grounded on the teacher's internal/events/emitter.go EventEmitter: a
// non-blocking send into a buffered channel, with a dropped counter and a
// throttled log line on overflow, rewritten here for a single concrete
// event type (StateChanged) instead of the teacher's webhook
// fan-out bus.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

// StateChanged is published whenever an application's ApplicationRuntime.State
// transitions.
type StateChanged struct {
	ConfigID  string
	AppID     string
	State     model.State
	Health    model.HealthVerdict
	Timestamp time.Time
}

// Bus fans a stream of StateChanged events out to any number of
// subscribers. The zero value is not usable; use New.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan StateChanged
	nextID      int
	dropped     atomic.Int64
	logger      *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subscribers: make(map[int]chan StateChanged), logger: logger}
}

// Subscribe registers a new listener with a bounded buffer and returns it
// along with an unsubscribe function. Callers must drain the channel or
// call unsubscribe to avoid leaking the entry.
func (b *Bus) Subscribe(buffer int) (<-chan StateChanged, func()) {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan StateChanged, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
	}
}

// Publish delivers ev to every current subscriber without blocking. A
// subscriber whose buffer is full misses the event and the bus's dropped
// counter is incremented instead of stalling the publisher (the process
// manager's own state-transition goroutines).
func (b *Bus) Publish(ev StateChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			n := b.dropped.Add(1)
			if n == 1 || n%1000 == 0 {
				b.logger.Debug("event bus dropped event (subscriber buffer full)",
					"dropped", n, "config_id", ev.ConfigID, "app_id", ev.AppID)
			}
		}
	}
}

// Dropped returns the total number of events dropped across all subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
