// Package notify fans notifications out to connected clients.
package notify

import (
	"sync"

	"github.com/oishii-app/oishii/internal/model"
)

// subscriberBufferSize is the channel buffer for each subscriber.
// Notifications are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Broker delivers notifications to per-user subscribers. It is safe for
// concurrent use. Unlike the rows a store holds, broker delivery is
// best-effort: a client that is not connected simply misses the push and
// reads the notification from the store on its next fetch.
type Broker struct {
	mu    sync.Mutex
	users map[string]*userTopic
}

type userTopic struct {
	subs   map[int]chan model.Notification
	nextID int
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		users: make(map[string]*userTopic),
	}
}

// Subscribe returns a channel that receives notifications for the given user
// and an unsubscribe function. Unsubscribing removes the topic once its last
// subscriber leaves.
func (b *Broker) Subscribe(userID string) (<-chan model.Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.users[userID]
	if !ok {
		t = &userTopic{subs: make(map[int]chan model.Notification)}
		b.users[userID] = t
	}

	ch := make(chan model.Notification, subscriberBufferSize)
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
		if len(t.subs) == 0 {
			delete(b.users, userID)
		}
	}
}

// Publish sends a notification to all subscribers of its recipient.
// Notifications are dropped for subscribers whose buffers are full.
func (b *Broker) Publish(n model.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.users[n.UserID]
	if !ok {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- n:
		default:
			// Drop for slow subscribers to avoid blocking the publisher.
		}
	}
}

// Subscribers reports how many clients are connected for the given user.
func (b *Broker) Subscribers(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.users[userID]
	if !ok {
		return 0
	}
	return len(t.subs)
}
