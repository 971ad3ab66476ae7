// Package control maps local transport intents to control events on a
// synchronized channel and inbound control events to callbacks the player
// registers. Control events ride the same wire as chat messages, tagged
// type=control, so a synchronized pair shares one ordered room stream.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"moodsync/models"
	"moodsync/stream"
)

// ErrChannelUnavailable reports that the underlying message stream rejected
// a publish or subscribe. The caller surfaces it without touching playback
// state.
var ErrChannelUnavailable = errors.New("control: channel unavailable")

// Adapter publishes and observes typed control events on named channels.
// It owns nothing but its subscription table; one subscription per channel,
// the last-established one is authoritative.
type Adapter struct {
	stream stream.Stream
	selfID string

	mu   sync.Mutex
	subs map[string]*subscription

	logger *log.Entry
}

func NewAdapter(s stream.Stream, selfID string) *Adapter {
	return &Adapter{
		stream: s,
		selfID: selfID,
		subs:   make(map[string]*subscription),
		logger: log.WithFields(log.Fields{"module": "control"}),
	}
}

// Publish appends one control event to the channel. Local state is never
// mutated here; a failed publish leaves the already-applied local
// transition in place.
func (a *Adapter) Publish(ctx context.Context, channelID string, ev models.ControlEvent) error {
	if channelID == "" {
		return fmt.Errorf("%w: empty channel id", ErrChannelUnavailable)
	}
	if !ev.Action.Valid() {
		return fmt.Errorf("control: unknown action %q", ev.Action)
	}

	msg := models.ChatMessage{
		RoomID:      channelID,
		UserID:      ev.UserID,
		DisplayName: ev.DisplayName,
		Type:        models.MessageControl,
		Control:     &ev,
		CreatedAt:   time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("control: encode event: %w", err)
	}

	if _, err := a.stream.Append(ctx, channelID, payload); err != nil {
		sentry.CaptureException(err)
		a.logger.Errorf("publish %s to %s failed: %v", ev.Action, channelID, err)
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	a.logger.Tracef("published %s to %s", ev.Action, channelID)
	return nil
}

// Subscribe observes the channel and invokes onEvent for every inbound
// control event in delivery order. Events this client published itself are
// filtered out, as are plain chat messages. Any previous subscription for
// the channel is cancelled first so stale or duplicate delivery cannot
// happen. The returned cancel is final: once it returns, onEvent will not
// run again.
func (a *Adapter) Subscribe(channelID string, onEvent func(models.ControlEvent)) stream.CancelFunc {
	a.mu.Lock()
	if prev, ok := a.subs[channelID]; ok {
		prev.cancel()
	}
	cancel := a.stream.Observe(channelID, func(rec stream.Record) {
		var msg models.ChatMessage
		if err := json.Unmarshal(rec.Payload, &msg); err != nil {
			a.logger.Warnf("malformed record %s on %s: %v", rec.ID, channelID, err)
			return
		}
		if msg.Type != models.MessageControl || msg.Control == nil {
			return
		}
		if msg.UserID == a.selfID {
			return
		}
		ev := *msg.Control
		ev.ID = rec.ID
		ev.UserID = msg.UserID
		ev.DisplayName = msg.DisplayName
		onEvent(ev)
	})
	sub := &subscription{cancel: cancel}
	a.subs[channelID] = sub
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		if a.subs[channelID] == sub {
			delete(a.subs, channelID)
		}
		a.mu.Unlock()
		cancel()
	}
}

// Unsubscribe drops the active subscription for channelID, if any.
func (a *Adapter) Unsubscribe(channelID string) {
	a.mu.Lock()
	sub, ok := a.subs[channelID]
	if ok {
		delete(a.subs, channelID)
	}
	a.mu.Unlock()
	if ok {
		sub.cancel()
	}
}

type subscription struct {
	cancel stream.CancelFunc
}
