// Package stream is the ordered message stream the control channel adapter
// is built on: append-only named channels, delivered to every observer in
// append order, each record exactly once per observer.
package stream

import (
	"context"
	"errors"
)

// ErrUnavailable wraps any backend failure to append or observe.
var ErrUnavailable = errors.New("stream: unavailable")

// Record is one immutable entry on a channel.
type Record struct {
	ID      string
	Payload []byte
}

// CancelFunc stops an observer. It blocks until in-flight delivery has
// finished; after it returns the callback will not run again.
type CancelFunc func()

// Stream is the collaborator contract. Implementations guarantee that
// Observe delivers all existing and subsequently appended records for the
// channel in append order.
type Stream interface {
	Append(ctx context.Context, channel string, payload []byte) (string, error)
	Observe(channel string, fn func(Record)) CancelFunc
}
