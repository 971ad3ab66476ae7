package chat

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"moodsync/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientBuffer   = 32
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Single-user daemon, UI connects from anywhere
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan models.ChatMessage
}

// Hub fans room messages out to connected websocket clients. Messages flow
// one way; sending happens over the HTTP surface.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*wsClient]struct{}
	logger *log.Entry
}

func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[string]map[*wsClient]struct{}),
		logger: log.WithFields(log.Fields{"module": "chat", "component": "ws"}),
	}
}

// ServeWS upgrades the request and attaches the client to the room until
// the connection drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, roomID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan models.ChatMessage, clientBuffer)}

	h.mu.Lock()
	clients, ok := h.rooms[roomID]
	if !ok {
		clients = make(map[*wsClient]struct{})
		h.rooms[roomID] = clients
	}
	clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(roomID, client)
	h.readPump(roomID, client)
}

// Broadcast queues the message for every client in the room. Slow clients
// drop messages rather than stalling the stream observer.
func (h *Hub) Broadcast(roomID string, msg models.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.rooms[roomID] {
		select {
		case client.send <- msg:
		default:
			h.logger.Warnf("dropping message for slow client in %s", roomID)
		}
	}
}

// CloseRoom disconnects every client in the room.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	clients := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	for client := range clients {
		close(client.send)
	}
}

// Close disconnects everything.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[*wsClient]struct{})
	h.mu.Unlock()

	for _, clients := range rooms {
		for client := range clients {
			close(client.send)
		}
	}
}

func (h *Hub) remove(roomID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.send)
	}
}

func (h *Hub) writePump(roomID string, client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				h.logger.Tracef("write to client in %s failed: %v", roomID, err)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(roomID string, client *wsClient) {
	defer h.remove(roomID, client)

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Inbound frames are ignored; the read loop only notices disconnects.
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
