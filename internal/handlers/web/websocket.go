// file: internal/handlers/web/websocket.go
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"noodlebadge/internal/events"
	"noodlebadge/internal/models"
	"noodlebadge/internal/notifications"
	"noodlebadge/internal/response"
	"noodlebadge/internal/services"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub message types
const (
	MessageTypeAchievement  = events.EventTypeBadgeAchieved
	MessageTypeUpdateFailed = "update.failed"
)

// HubMessage is what clients receive over the socket
type HubMessage struct {
	Type         string                 `json:"type"`
	Achievement  *models.Achievement    `json:"achievement,omitempty"`
	Notification *notifications.Message `json:"notification,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// HubConfig holds websocket settings
type HubConfig struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

// DefaultHubConfig returns default websocket configuration
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		SendBuffer:     16,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 512,
	}
}

// Client is one open socket
type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan HubMessage
	hub    *AchievementHub
}

type userSession struct {
	clients map[*Client]struct{}
	sub     *services.Subscription
}

// AchievementHub streams achievements to connected clients. The first socket
// a user opens subscribes the engine to that user's counter feed and the last
// one to close cancels the subscription.
type AchievementHub struct {
	config          *HubConfig
	engine          services.BadgeProgressService
	logger          *zap.Logger
	upgrader        websocket.Upgrader
	responseBuilder *response.Builder

	mu       sync.Mutex
	sessions map[string]*userSession
}

// NewAchievementHub creates a websocket hub
func NewAchievementHub(config *HubConfig, engine services.BadgeProgressService, logger *zap.Logger) *AchievementHub {
	if config == nil {
		config = DefaultHubConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &AchievementHub{
		config:          config,
		engine:          engine,
		logger:          logger.With(zap.String("component", "achievement_hub")),
		responseBuilder: response.NewBuilder(nil, logger),
		sessions:        make(map[string]*userSession),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
	}
	if h.upgrader.CheckOrigin == nil {
		h.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return h
}

// ServeWS handles GET /ws/users/{userID}/achievements
func (h *AchievementHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	client := &Client{
		userID: mux.Vars(r)["userID"],
		send:   make(chan HubMessage, h.config.SendBuffer),
		hub:    h,
	}

	// subscribe before upgrading so failures still get a JSON error
	if err := h.register(client); err != nil {
		h.responseBuilder.WriteError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", zap.String("user_id", client.userID), zap.Error(err))
		h.unregister(client)
		return
	}
	client.conn = conn

	h.logger.Info("WebSocket client connected", zap.String("user_id", client.userID))

	go client.writeMessages()
	client.readMessages()
}

func (h *AchievementHub) register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[c.userID]
	if !ok {
		sub, err := h.engine.Subscribe(context.Background(), c.userID)
		if err != nil {
			return err
		}
		s = &userSession{clients: make(map[*Client]struct{}), sub: sub}
		h.sessions[c.userID] = s
		go h.forwardErrors(sub)
	}
	s.clients[c] = struct{}{}
	return nil
}

func (h *AchievementHub) unregister(c *Client) {
	h.mu.Lock()
	s, ok := h.sessions[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := s.clients[c]; !ok {
		h.mu.Unlock()
		return
	}

	delete(s.clients, c)
	close(c.send)

	var sub *services.Subscription
	if len(s.clients) == 0 {
		delete(h.sessions, c.userID)
		sub = s.sub
	}
	h.mu.Unlock()

	// Cancel waits for the engine loop, which may be delivering to this hub
	if sub != nil {
		sub.Cancel()
	}

	h.logger.Info("WebSocket client disconnected", zap.String("user_id", c.userID))
}

// HandleBadgeAchieved is an event bus handler
func (h *AchievementHub) HandleBadgeAchieved(ctx context.Context, event *events.BadgeAchievedEvent) error {
	a := event.Achievement

	var badge *models.BadgeDefinition
	if def, ok := h.engine.Catalog().Get(a.BadgeID); ok {
		badge = &def
	}
	msg := notifications.NewAchievementMessage(badge, a)

	h.broadcast(a.UserID, HubMessage{
		Type:         MessageTypeAchievement,
		Achievement:  &a,
		Notification: &msg,
	})
	return nil
}

func (h *AchievementHub) forwardErrors(sub *services.Subscription) {
	for err := range sub.Errors() {
		h.broadcast(sub.UserID(), HubMessage{
			Type:  MessageTypeUpdateFailed,
			Error: err.Error(),
		})
	}
}

// broadcast never blocks; slow clients miss messages
func (h *AchievementHub) broadcast(userID string, msg HubMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[userID]
	if !ok {
		return
	}
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("WebSocket client send buffer full, dropping message",
				zap.String("user_id", userID),
				zap.String("type", msg.Type),
			)
		}
	}
}

// Sessions returns the number of open sockets for the user
func (h *AchievementHub) Sessions(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[userID]; ok {
		return len(s.clients)
	}
	return 0
}

// Stats reports connected users and sockets
func (h *AchievementHub) Stats() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := 0
	for _, s := range h.sessions {
		clients += len(s.clients)
	}
	return map[string]interface{}{
		"users":   len(h.sessions),
		"clients": clients,
	}
}

// Close disconnects every client and cancels every subscription
func (h *AchievementHub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*userSession)
	for _, s := range sessions {
		for c := range s.clients {
			close(c.send)
		}
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.sub.Cancel()
	}
}

func (c *Client) readMessages() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.config.PongWait))
	})

	// clients only listen; reading drives ping/pong and close detection
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("WebSocket read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writeMessages() {
	ticker := time.NewTicker(c.hub.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Warn("WebSocket write error", zap.String("user_id", c.userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
