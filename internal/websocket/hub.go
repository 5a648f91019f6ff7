package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"layover-match/internal/events"
	"layover-match/internal/session"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Envelope is the frame written to clients.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type TypingMessage struct {
	MatchID  string `json:"match_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// Hub tracks the open connections of each user.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*Client]struct{}
	log     *logrus.Entry
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	sess   *session.Session
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.log.WithField("user_id", c.userID).Info("Client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Client) {
	conns, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	h.log.WithField("user_id", c.userID).Info("Client disconnected")
}

// Connected returns the number of open connections for userID.
func (h *Hub) Connected(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Disconnect closes every connection of userID.
func (h *Hub) Disconnect(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		h.dropLocked(c)
	}
}

// SendToUser writes env to every connection of userID. A connection whose
// buffer is full is dropped.
func (h *Hub) SendToUser(userID string, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode frame")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		h.deliverLocked(c, payload)
	}
}

func (h *Hub) deliver(c *Client, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.userID][c]; ok {
		h.deliverLocked(c, payload)
	}
}

func (h *Hub) deliverLocked(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.dropLocked(c)
	}
}

// Run pushes store events to the connections of the users they involve.
func (h *Hub) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			for _, userID := range e.UserIDs {
				h.SendToUser(userID, Envelope{Type: string(e.Kind), Data: e})
			}
		}
	}
}

// ServeWS upgrades the request for userID. When sess is set its change
// notifications are forwarded to the connection as "session" frames.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string, sess *session.Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		sess:   sess,
	}
	stop := func() {}
	var notes <-chan session.Event
	if sess != nil {
		notes, stop = sess.Subscribe(sendBuffer)
	}
	h.register(client)
	if notes != nil {
		go client.forward(notes)
	}

	go client.writePump()
	go client.readPump(stop)
}

func (c *Client) forward(notes <-chan session.Event) {
	for e := range notes {
		payload, err := json.Marshal(Envelope{Type: "session", Data: e})
		if err != nil {
			continue
		}
		c.hub.deliver(c, payload)
	}
}

func (c *Client) readPump(stop func()) {
	defer func() {
		stop()
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("WebSocket error")
			}
			break
		}

		var message struct {
			Type    string `json:"type"`
			MatchID string `json:"match_id"`
		}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.hub.log.WithError(err).Debug("Error parsing message")
			continue
		}

		switch message.Type {
		case "typing", "stop_typing":
			c.relayTyping(message.MatchID, message.Type == "typing")
		}
	}
}

// relayTyping tells the other participant of one of the user's matches that
// the user is typing.
func (c *Client) relayTyping(matchID string, typing bool) {
	if c.sess == nil {
		return
	}
	m, ok := lo.Find(c.sess.Matches(), func(m session.MatchView) bool { return m.ID == matchID })
	if !ok {
		return
	}
	c.hub.SendToUser(m.User.UserID, Envelope{
		Type: "typing",
		Data: TypingMessage{MatchID: matchID, UserID: c.userID, IsTyping: typing},
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.WithError(err).Debug("WebSocket write error")
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
