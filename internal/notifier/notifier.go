// Package notifier fans favorite-set changes out to every open view of the
// session (list badges, favorites page, server-sent event streams).
// A single background goroutine drains the publish queue; subscribers that
// fall behind lose events instead of stalling publishers.
package notifier

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/patric-chuzhbe/userdir/internal/logger"
	"github.com/patric-chuzhbe/userdir/internal/models"
)

// ErrSubscriberLagging is reported through ListenErrors when an event could
// not be delivered because the subscriber's buffer was full.
var ErrSubscriberLagging = errors.New("subscriber is lagging, event dropped")

type Notifier struct {
	queue        chan models.FavoritesEvent
	capacity     int
	errorChannel chan error
	done         chan struct{}

	mu          sync.RWMutex
	subscribers map[string]chan models.FavoritesEvent
	stopped     bool
}

func New(capacity int) *Notifier {
	if capacity < 1 {
		capacity = 1
	}

	return &Notifier{
		queue:        make(chan models.FavoritesEvent, capacity),
		capacity:     capacity,
		errorChannel: make(chan error, capacity),
		done:         make(chan struct{}),
		subscribers:  map[string]chan models.FavoritesEvent{},
	}
}

// Run starts the delivery goroutine. It stops when ctx is cancelled, closing
// every subscriber channel.
func (n *Notifier) Run(ctx context.Context) {
	go func() {
		defer close(n.done)

		for {
			select {
			case event := <-n.queue:
				n.deliver(event)
			case <-ctx.Done():
				n.shutdown()
				return
			}
		}
	}()
}

// Done is closed once the delivery goroutine has exited.
func (n *Notifier) Done() <-chan struct{} {
	return n.done
}

// ListenErrors invokes callback for every delivery problem until the notifier stops.
func (n *Notifier) ListenErrors(callback func(error)) {
	go func() {
		for {
			select {
			case err := <-n.errorChannel:
				callback(err)
			case <-n.done:
				return
			}
		}
	}()
}

// Publish queues event for delivery. It returns immediately once the
// notifier has stopped.
func (n *Notifier) Publish(event models.FavoritesEvent) {
	event.Favorites = append(models.FavoriteSet{}, event.Favorites...)

	select {
	case n.queue <- event:
	case <-n.done:
	}
}

// Subscribe registers a new listener. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (n *Notifier) Subscribe() (string, <-chan models.FavoritesEvent, func()) {
	id := uuid.New().String()
	events := make(chan models.FavoritesEvent, n.capacity)

	n.mu.Lock()
	if n.stopped {
		close(events)
	} else {
		n.subscribers[id] = events
	}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		if ch, ok := n.subscribers[id]; ok {
			delete(n.subscribers, id)
			close(ch)
		}
	}

	return id, events, cancel
}

// SubscribersCount returns the number of active subscribers.
func (n *Notifier) SubscribersCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.subscribers)
}

func (n *Notifier) deliver(event models.FavoritesEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for id, ch := range n.subscribers {
		select {
		case ch <- event:
		default:
			logger.Log.Debugw("favorites event dropped", "subscriber", id)
			n.reportError(ErrSubscriberLagging)
		}
	}
}

func (n *Notifier) reportError(err error) {
	select {
	case n.errorChannel <- err:
	default:
	}
}

func (n *Notifier) shutdown() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	for id, ch := range n.subscribers {
		delete(n.subscribers, id)
		close(ch)
	}
}
