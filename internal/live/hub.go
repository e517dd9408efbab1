package live

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/CesarGoto1/SecurityEye/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 10 * time.Minute
	sendBuffer = 256
)

// Event is one message pushed to connected dashboard clients.
type Event struct {
	Type      string      `json:"type"`
	SesionID  int64       `json:"sesion_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	id   string
	send chan Event
}

// Hub fans session events out to every connected websocket client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	logger  logging.Logger

	upgrader websocket.Upgrader
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and keeps the connection until the peer
// drops or the hub closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	c := &client{conn: conn, id: clientID, send: make(chan Event, sendBuffer)}

	h.mu.Lock()
	h.clients[clientID] = c
	h.mu.Unlock()
	h.logger.Infof("live client connected: %s", clientID)

	go h.writePump(c)
	h.readPump(c)

	h.mu.Lock()
	delete(h.clients, clientID)
	h.mu.Unlock()
	conn.Close()
	h.logger.Infof("live client disconnected: %s", clientID)
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Event
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warnf("websocket error for %s: %v", c.id, err)
			}
			return
		}
		if msg.Type == "PING" {
			h.sendTo(c, Event{Type: "PONG", Timestamp: time.Now().Unix()})
		}
	}
}

func (h *Hub) sendTo(c *client, evt Event) {
	select {
	case c.send <- evt:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast delivers the event to every client. Slow clients with a
// full buffer are skipped rather than blocking the caller.
func (h *Hub) Broadcast(evt Event) {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().Unix()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- evt:
		default:
		}
	}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, id)
	}
}

// SessionClosed implements the lifecycle notifier.
func (h *Hub) SessionClosed(sesionID int64, esFatiga bool) {
	h.Broadcast(Event{
		Type:     "SESSION_CLOSED",
		SesionID: sesionID,
		Payload:  map[string]interface{}{"es_fatiga": esFatiga},
	})
}

// RestLogged implements the lifecycle notifier.
func (h *Hub) RestLogged(sesionID int64, actividad string) {
	h.Broadcast(Event{
		Type:     "REST_LOGGED",
		SesionID: sesionID,
		Payload:  map[string]interface{}{"actividad": actividad},
	})
}
