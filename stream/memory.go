package stream

import (
	"context"
	"fmt"
	"sync"
)

type memObserver struct {
	mu      sync.Mutex
	fn      func(Record)
	stopped bool
}

func (o *memObserver) deliver(rec Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	o.fn(rec)
}

type memChannel struct {
	records   []Record
	observers map[*memObserver]struct{}
}

// Memory is an in-process Stream used by tests and redis-less runs.
// Delivery happens synchronously inside Append, which trivially preserves
// append order per observer.
type Memory struct {
	mu       sync.Mutex
	channels map[string]*memChannel
	nextID   int
}

func NewMemory() *Memory {
	return &Memory{channels: make(map[string]*memChannel)}
}

func (m *Memory) channel(name string) *memChannel {
	ch, ok := m.channels[name]
	if !ok {
		ch = &memChannel{observers: make(map[*memObserver]struct{})}
		m.channels[name] = ch
	}
	return ch
}

func (m *Memory) Append(_ context.Context, channel string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec := Record{ID: fmt.Sprintf("%d-0", m.nextID), Payload: payload}
	ch := m.channel(channel)
	ch.records = append(ch.records, rec)
	for o := range ch.observers {
		o.deliver(rec)
	}
	return rec.ID, nil
}

func (m *Memory) Observe(channel string, fn func(Record)) CancelFunc {
	o := &memObserver{fn: fn}

	// Backlog replays under the stream lock so an Append racing with
	// Observe cannot deliver ahead of the replay.
	m.mu.Lock()
	ch := m.channel(channel)
	for _, rec := range ch.records {
		o.deliver(rec)
	}
	ch.observers[o] = struct{}{}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(ch.observers, o)
		m.mu.Unlock()
		o.mu.Lock()
		o.stopped = true
		o.mu.Unlock()
	}
}
