// Package chat manages room messaging over the shared stream. Control
// events ride the same room channels tagged type=control; chat persists
// them into history alongside plain messages and re-emits them on the bus
// so in-process listeners can react without watching the stream themselves.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"moodsync/bus"
	"moodsync/control"
	"moodsync/models"
	"moodsync/stream"
)

// History is the slice of the database the chat service writes to.
type History interface {
	SaveMessage(msg models.ChatMessage) error
	RecentMessages(roomID string, limit int) ([]models.ChatMessage, error)
}

// ControlNotification is the bus payload for a control message observed in
// a joined room.
type ControlNotification struct {
	RoomID string
	Event  models.ControlEvent
}

// Service joins rooms, sends messages, and fans inbound traffic out to the
// websocket hub, the history store, and the bus.
type Service struct {
	stream      stream.Stream
	history     History
	bus         *bus.Bus
	hub         *Hub
	selfID      string
	displayName string

	mu    sync.Mutex
	rooms map[string]stream.CancelFunc

	logger *log.Entry
}

func NewService(s stream.Stream, history History, b *bus.Bus, selfID, displayName string) *Service {
	return &Service{
		stream:      s,
		history:     history,
		bus:         b,
		hub:         NewHub(),
		selfID:      selfID,
		displayName: displayName,
		rooms:       make(map[string]stream.CancelFunc),
		logger:      log.WithFields(log.Fields{"module": "chat", "user": selfID}),
	}
}

// Hub exposes the websocket hub for the HTTP layer.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Join starts observing a room. Joining an already-joined room is a no-op.
func (s *Service) Join(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return
	}

	cancel := s.stream.Observe(roomID, func(rec stream.Record) {
		s.handleRecord(roomID, rec)
	})
	s.rooms[roomID] = cancel
	s.logger.Infof("joined room %s", roomID)
}

// JoinPrivate derives the pair room for the two users and joins it. The
// returned room id doubles as the engine's synchronized channel id.
func (s *Service) JoinPrivate(otherUID string) string {
	roomID := control.RoomKey(s.selfID, otherUID)
	s.Join(roomID)
	return roomID
}

// Leave stops observing a room and detaches its websocket clients.
func (s *Service) Leave(roomID string) {
	s.mu.Lock()
	cancel, ok := s.rooms[roomID]
	if ok {
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()

	if ok {
		cancel()
		s.hub.CloseRoom(roomID)
		s.logger.Infof("left room %s", roomID)
	}
}

// Send appends a plain text message to the room.
func (s *Service) Send(ctx context.Context, roomID, text string) (models.ChatMessage, error) {
	msg := models.ChatMessage{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		UserID:      s.selfID,
		DisplayName: s.displayName,
		Type:        models.MessageText,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("chat: encode message: %w", err)
	}
	if _, err := s.stream.Append(ctx, roomID, payload); err != nil {
		sentry.CaptureException(err)
		return models.ChatMessage{}, fmt.Errorf("chat: send failed: %w", err)
	}
	return msg, nil
}

// HistoryFor returns the room's recent messages, oldest first.
func (s *Service) HistoryFor(roomID string, limit int) ([]models.ChatMessage, error) {
	return s.history.RecentMessages(roomID, limit)
}

// Close leaves every room.
func (s *Service) Close() {
	s.mu.Lock()
	cancels := make([]stream.CancelFunc, 0, len(s.rooms))
	for roomID, cancel := range s.rooms {
		cancels = append(cancels, cancel)
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.hub.Close()
}

func (s *Service) handleRecord(roomID string, rec stream.Record) {
	var msg models.ChatMessage
	if err := json.Unmarshal(rec.Payload, &msg); err != nil {
		s.logger.Warnf("malformed record %s in %s: %v", rec.ID, roomID, err)
		return
	}
	if msg.ID == "" {
		msg.ID = rec.ID
	}
	msg.RoomID = roomID

	if err := s.history.SaveMessage(msg); err != nil {
		s.logger.Warnf("persist message %s: %v", msg.ID, err)
	}

	s.hub.Broadcast(roomID, msg)

	// Control messages from peers surface on the bus; plain chat and our
	// own echoes do not.
	if msg.Type == models.MessageControl && msg.Control != nil && msg.UserID != s.selfID {
		ev := *msg.Control
		// The record id identifies the event across observers; the engine
		// dedups on it against the control adapter's own subscription.
		ev.ID = rec.ID
		ev.UserID = msg.UserID
		ev.DisplayName = msg.DisplayName
		s.bus.Publish(bus.EventRemoteControl, ControlNotification{RoomID: roomID, Event: ev})
	}
}
