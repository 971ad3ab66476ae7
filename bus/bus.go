// In-process named-event bus. Components that must not import each other
// (chat forwarding control messages to the player, search results selecting
// a track) communicate through here instead of calling across packages.
package bus

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Event names used across the app.
const (
	EventPlayTrack     = "playTrack"
	EventPlayPlaylist  = "playPlaylist"
	EventRemoteControl = "remote-music-control"
)

const subscriberBuffer = 16

// Event is a named signal with an arbitrary payload.
type Event struct {
	Name    string
	Payload any
}

type subscriber struct {
	name string
	ch   chan Event
}

// Bus fans events out to subscribers by name. Sends never block; a slow
// subscriber drops events rather than stalling the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *log.Entry
}

func New() *Bus {
	return &Bus{
		subs:   make(map[*subscriber]struct{}),
		logger: log.WithFields(log.Fields{"module": "bus"}),
	}
}

// Subscribe returns a channel receiving every event published under name,
// and a cancel func that closes it. After cancel returns, no further
// events are delivered on the channel.
func (b *Bus) Subscribe(name string) (<-chan Event, func()) {
	sub := &subscriber{name: name, ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers the event to every current subscriber of name.
func (b *Bus) Publish(name string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.name != name {
			continue
		}
		select {
		case sub.ch <- Event{Name: name, Payload: payload}:
		default:
			b.logger.Warnf("dropping %s event for slow subscriber", name)
		}
	}
}
