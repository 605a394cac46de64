package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/flybeeper/routecast/internal/metrics"
	"github.com/flybeeper/routecast/internal/service"
	"github.com/flybeeper/routecast/pkg/utils"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// ProgressMessage сообщение потока прогресса
type ProgressMessage struct {
	Type     string            `json:"type"` // welcome, progress, done, error
	Progress *service.Progress `json:"progress,omitempty"`
	RouteID  string            `json:"route_id,omitempty"`
	Message  string            `json:"message,omitempty"`
	Time     int64             `json:"time"`
}

// ProgressHub рассылает прогресс загрузки прогнозов подписанным клиентам.
// Клиент идентифицируется параметром client; у одного клиента может быть несколько соединений.
type ProgressHub struct {
	upgrader     websocket.Upgrader
	logger       *utils.Logger
	pingInterval time.Duration
	pongTimeout  time.Duration

	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *ProgressHub

	mu     sync.Mutex
	closed bool
}

// NewProgressHub создает хаб; allowedOrigins пустой или "*" разрешает любой Origin
func NewProgressHub(logger *utils.Logger, allowedOrigins []string, pingInterval, pongTimeout time.Duration) *ProgressHub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if pongTimeout <= pingInterval {
		pongTimeout = 2 * pingInterval
	}
	return &ProgressHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger:       logger,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		clients:      make(map[string]map[*wsClient]struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// HandleWebSocket GET /ws/v1/progress?client=ID
func (h *ProgressHub) HandleWebSocket(c *gin.Context) {
	id := c.Query("client")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing_client", "client query parameter is required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		metrics.WebSocketErrors.Inc()
		return
	}

	client := &wsClient{id: id, conn: conn, send: make(chan []byte, sendBuffer), hub: h}
	h.register(client)

	h.logger.WithFields(map[string]interface{}{
		"client":    id,
		"client_ip": c.ClientIP(),
	}).Info("WebSocket client connected")

	go client.writePump()
	go client.readPump()

	client.enqueue(h.encode(ProgressMessage{Type: "welcome"}))
}

// Publish отправляет прогресс всем соединениям клиента
func (h *ProgressHub) Publish(clientID string, p service.Progress) {
	h.broadcast(clientID, ProgressMessage{Type: "progress", Progress: &p})
}

// Done сообщает клиенту о завершении обработки
func (h *ProgressHub) Done(clientID, routeID string) {
	h.broadcast(clientID, ProgressMessage{Type: "done", RouteID: routeID})
}

// Fail сообщает клиенту об ошибке обработки
func (h *ProgressHub) Fail(clientID, message string) {
	h.broadcast(clientID, ProgressMessage{Type: "error", Message: message})
}

// ProgressFunc колбэк прогресса для сервиса; nil без идентификатора клиента
func (h *ProgressHub) ProgressFunc(clientID string) service.ProgressFunc {
	if clientID == "" {
		return nil
	}
	return func(p service.Progress) { h.Publish(clientID, p) }
}

// Connections количество соединений клиента
func (h *ProgressHub) Connections(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[clientID])
}

// Close закрывает все соединения
func (h *ProgressHub) Close() {
	h.mu.Lock()
	var all []*wsClient
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (h *ProgressHub) broadcast(clientID string, msg ProgressMessage) {
	if clientID == "" {
		return
	}
	h.mu.RLock()
	set := h.clients[clientID]
	targets := make([]*wsClient, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	data := h.encode(msg)
	for _, c := range targets {
		c.enqueue(data)
	}
}

func (h *ProgressHub) encode(msg ProgressMessage) []byte {
	msg.Time = time.Now().Unix()
	data, _ := json.Marshal(msg)
	return data
}

func (h *ProgressHub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.id]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[c.id] = set
	}
	set[c] = struct{}{}
	metrics.WebSocketConnections.Inc()
}

func (h *ProgressHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.id]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.id)
	}
	metrics.WebSocketConnections.Dec()
}

// enqueue не блокирует: медленный клиент теряет промежуточные события
func (c *wsClient) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		metrics.WebSocketErrors.Inc()
	}
}

func (c *wsClient) close() {
	c.hub.unregister(c)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.pongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Warn("WebSocket read error")
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
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
				c.hub.logger.WithError(err).Debug("WebSocket write error")
				metrics.WebSocketErrors.Inc()
				return
			}
			metrics.WebSocketMessagesOut.WithLabelValues("progress").Inc()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketErrors.Inc()
				return
			}
			metrics.WebSocketMessagesOut.WithLabelValues("ping").Inc()
		}
	}
}
