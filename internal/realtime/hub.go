package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
	metricsPeriod  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Backend answers client-initiated hub messages.
type Backend interface {
	Snapshot(ctx context.Context) (map[string]any, error)
	Document(ctx context.Context, waID string) (map[string]any, error)
	Customer(ctx context.Context, waID string) (map[string]any, error)
	ModifyReservation(ctx context.Context, args map[string]any) (map[string]any, error)
	CancelReservation(ctx context.Context, args map[string]any) (map[string]any, error)
	SendSecretaryMessage(ctx context.Context, waID, text string) error
	UpdateVacation(ctx context.Context, args map[string]any) (map[string]any, error)
	LatestMetrics(ctx context.Context) map[string]any
}

// envelope is every frame the hub writes.
type envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// stamp renders an ISO-8601 UTC timestamp, always Z-suffixed.
func stamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu          sync.Mutex
	tabID       string
	updateTypes map[string]struct{}
	entityIDs   map[string]struct{}
}

// accepts applies the connection's filters to one event.
func (c *client) accepts(eventType string, affected []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.updateTypes) > 0 {
		if _, ok := c.updateTypes[eventType]; !ok {
			return false
		}
	}
	if len(c.entityIDs) > 0 && len(affected) > 0 {
		hit := false
		for _, id := range affected {
			if _, ok := c.entityIDs[id]; ok {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func (c *client) setFilter(updateTypes, entityIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateTypes = toSet(updateTypes)
	c.entityIDs = toSet(entityIDs)
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

// Hub fans domain events out to websocket subscribers and answers their
// queries and commands.
type Hub struct {
	backend    Backend
	history    *History
	suppressor *suppressor
	metrics    *metrics.Metrics
	logger     *logging.Logger

	mu      sync.RWMutex
	baseCtx context.Context
	clients map[*client]struct{}
	byTab   map[string]*client
}

func NewHub(backend Backend, history *History, m *metrics.Metrics, logger *logging.Logger) *Hub {
	if m == nil {
		m = metrics.NewForTest()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		backend:    backend,
		history:    history,
		suppressor: newSuppressor(),
		metrics:    m,
		logger:     logger,
		baseCtx:    context.Background(),
		clients:    make(map[*client]struct{}),
		byTab:      make(map[string]*client),
	}
}

// SetBackend attaches the operator backend. The hub is constructed before
// the services it fronts, so the backend arrives late.
func (h *Hub) SetBackend(b Backend) {
	h.mu.Lock()
	h.backend = b
	h.mu.Unlock()
}

func (h *Hub) getBackend() Backend {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.backend
}

// opContext is the context client-initiated operations run under. The
// request context dies as soon as ServeWS returns, so the hub's own
// lifecycle context governs instead.
func (h *Hub) opContext() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.baseCtx
}

// Run adopts ctx as the hub lifecycle and pushes metrics_updated frames
// until it ends.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.baseCtx = ctx
	h.mu.Unlock()
	ticker := time.NewTicker(metricsPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			backend := h.getBackend()
			if backend == nil {
				continue
			}
			h.Broadcast("metrics_updated", backend.LatestMetrics(ctx), nil)
		}
	}
}

// ServeWS upgrades the request and attaches the connection. A reconnect
// carrying an already-registered tab id closes the previous socket with a
// normal closure so each browser tab keeps one live socket.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	q := r.URL.Query()
	tabID := q.Get("tab")
	if tabID == "" {
		tabID = q.Get("tab_id")
	}
	c := &client{
		id:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		tabID: tabID,
	}
	h.register(c)
	h.logger.Debug("websocket connected", "conn_id", c.id, "tab_id", c.tabID)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) {
	var displaced *client
	h.mu.Lock()
	if c.tabID != "" {
		if prev, ok := h.byTab[c.tabID]; ok {
			displaced = prev
			delete(h.clients, prev)
		}
		h.byTab[c.tabID] = c
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if displaced != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by newer tab connection")
		_ = displaced.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		displaced.close()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		if c.tabID != "" && h.byTab[c.tabID] == c {
			delete(h.byTab, c.tabID)
		}
	}
	h.mu.Unlock()
	c.close()
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send != nil {
		close(c.send)
		c.send = nil
	}
}

// Broadcast fans one event out to every accepting connection, persists it in
// the notification buffer and drops connections whose send queue is stuck.
func (h *Hub) Broadcast(eventType string, data map[string]any, affected []string) {
	if !h.suppressor.Allow(eventType, data) {
		return
	}

	payload, err := json.Marshal(envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: stamp(),
	})
	if err != nil {
		h.logger.Error("broadcast marshal failed", "event", eventType, "error", err)
		return
	}

	if h.history != nil && eventType != "metrics_updated" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := h.history.Add(ctx, payload); err != nil {
			h.logger.Warn("notification persist failed", "event", eventType, "error", err)
		}
		cancel()
	}

	var dead []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.accepts(eventType, affected) {
			continue
		}
		c.mu.Lock()
		ch := c.send
		c.mu.Unlock()
		if ch == nil {
			dead = append(dead, c)
			continue
		}
		select {
		case ch <- payload:
		default:
			dead = append(dead, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range dead {
		h.unregister(c)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		c.mu.Lock()
		ch := c.send
		c.mu.Unlock()
		if ch == nil {
			return
		}
		select {
		case msg, ok := <-ch:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer c.hub.unregister(c)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		c.hub.handleClientMessage(c.hub.opContext(), c, raw)
	}
}

// reply queues one frame on the connection; a saturated queue drops the
// connection via the broadcast path later.
func (c *client) reply(frameType string, data map[string]any, errMsg string) {
	payload, err := json.Marshal(envelope{
		Type:      frameType,
		Data:      data,
		Error:     errMsg,
		Timestamp: stamp(),
	})
	if err != nil {
		return
	}
	c.mu.Lock()
	ch := c.send
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- payload:
	default:
	}
}
