package notify

import (
	"context"
	"sync"

	"github.com/mmynk/splitledger/internal/models"
)

// Broadcaster fans notifications out to live watchers of each user.
// A watcher that falls behind loses notifications rather than blocking
// delivery to everyone else.
type Broadcaster struct {
	buffer int

	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
}

type watcher struct {
	ch   chan models.Notification
	once sync.Once
}

// NewBroadcaster creates a broadcaster whose watchers buffer up to buffer notifications.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 1
	}
	return &Broadcaster{
		buffer:   buffer,
		watchers: make(map[string]map[*watcher]struct{}),
	}
}

// Watch registers a watcher for userID. The returned cancel function
// unregisters it and closes the channel; it may be called more than once.
func (b *Broadcaster) Watch(userID string) (<-chan models.Notification, func()) {
	w := &watcher{ch: make(chan models.Notification, b.buffer)}

	b.mu.Lock()
	if b.watchers[userID] == nil {
		b.watchers[userID] = make(map[*watcher]struct{})
	}
	b.watchers[userID][w] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		w.once.Do(func() {
			b.mu.Lock()
			delete(b.watchers[userID], w)
			if len(b.watchers[userID]) == 0 {
				delete(b.watchers, userID)
			}
			close(w.ch)
			b.mu.Unlock()
		})
	}
	return w.ch, cancel
}

// Watchers returns the number of live watchers of userID.
func (b *Broadcaster) Watchers(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers[userID])
}

// Emit delivers n to every watcher of the recipient without blocking.
func (b *Broadcaster) Emit(_ context.Context, recipient models.User, n models.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for w := range b.watchers[recipient.ID] {
		select {
		case w.ch <- n:
		default:
		}
	}
	return nil
}
