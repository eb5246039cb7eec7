package bridge

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Outgoing messages buffered per peer before it is dropped
	sendBuffer = 32
)

// Role is the kind of peer on a connection.
type Role string

const (
	RoleScanner Role = "scanner"
	RoleSession Role = "session"
)

type peer struct {
	id         string
	role       Role
	name       string
	remoteAddr string
	ws         *websocket.Conn
	send       chan []byte
	done       chan struct{} // closed once the peer is unregistered
	closeOnce  sync.Once
}

func (p *peer) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Hub routes scans from scanners to sessions and vibrate requests back to
// the scanner that produced the latest scan.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *Metrics

	mu          sync.RWMutex
	scanners    map[string]*peer
	sessions    map[string]*peer
	lastScanner string
	closed      bool
	wg          sync.WaitGroup
}

// NewHub creates an empty hub reporting to metrics.
func NewHub(metrics *Metrics) *Hub {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Scanners are embedded devices and sessions are terminals;
			// neither sends a browser Origin worth checking.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		metrics:  metrics,
		scanners: make(map[string]*peer),
		sessions: make(map[string]*peer),
	}
}

// ServeScanner upgrades a scanner connection.
func (h *Hub) ServeScanner(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, RoleScanner)
}

// ServeSession upgrades a session connection. The optional "name" query
// parameter lets scanners address this session directly.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, RoleSession)
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, role Role) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("role", string(role)),
			zap.Error(err),
		)
		return
	}
	ws.SetReadLimit(maxMessageSize)

	p := &peer{
		id:         uuid.NewString(),
		role:       role,
		name:       r.URL.Query().Get("name"),
		remoteAddr: r.RemoteAddr,
		ws:         ws,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
	if !h.register(p) {
		_ = ws.Close()
		return
	}
	logging.LogConnection(p.remoteAddr, string(role)+"_connected")

	h.enqueue(p, &Message{Type: TypeHello, ID: p.id, Session: p.name})

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		h.writePump(p)
	}()
	go func() {
		defer h.wg.Done()
		h.readPump(p)
	}()
}

func (h *Hub) register(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers(p.role)[p.id] = p
	h.metrics.Connections.WithLabelValues(string(p.role)).Inc()
	return true
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	if _, ok := h.peers(p.role)[p.id]; ok {
		delete(h.peers(p.role), p.id)
		h.metrics.Connections.WithLabelValues(string(p.role)).Dec()
	}
	if h.lastScanner == p.id {
		h.lastScanner = ""
	}
	h.mu.Unlock()
	p.close()
}

// peers returns the map for role. Callers hold mu.
func (h *Hub) peers(role Role) map[string]*peer {
	if role == RoleScanner {
		return h.scanners
	}
	return h.sessions
}

func (h *Hub) readPump(p *peer) {
	defer func() {
		h.unregister(p)
		_ = p.ws.Close()
		logging.LogConnection(p.remoteAddr, string(p.role)+"_disconnected")
	}()

	_ = p.ws.SetReadDeadline(time.Now().Add(pongWait))
	p.ws.SetPongHandler(func(string) error {
		return p.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := p.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Info("Connection closed unexpectedly",
					zap.String("remote_addr", p.remoteAddr),
					zap.Error(err),
				)
			}
			return
		}
		logging.LogWebSocketMessage(p.remoteAddr, "received", msgType, data)

		msg, err := DecodeMessage(data)
		if err != nil {
			h.metrics.Rejected.Inc()
			h.enqueue(p, &Message{Type: TypeError, Error: err.Error()})
			continue
		}
		h.metrics.Messages.WithLabelValues("in", string(msg.Type)).Inc()
		h.handle(p, msg)
	}
}

func (h *Hub) handle(from *peer, msg *Message) {
	switch {
	case msg.Type == TypeHello:
		if msg.Session != "" {
			h.mu.Lock()
			from.name = msg.Session
			h.mu.Unlock()
		}
	case msg.Type == TypeScan && from.role == RoleScanner:
		h.routeScan(from, msg)
	case msg.Type == TypeVibrate && from.role == RoleSession:
		h.routeVibrate(msg)
	default:
		h.metrics.Rejected.Inc()
		h.enqueue(from, &Message{Type: TypeError, Error: string(msg.Type) + " not accepted from " + string(from.role)})
	}
}

func (h *Hub) routeScan(from *peer, msg *Message) {
	out := &Message{
		Type:    TypeScan,
		ID:      uuid.NewString(),
		Barcode: msg.Barcode,
		Scanner: from.id,
	}

	h.mu.Lock()
	h.lastScanner = from.id
	targets := make([]*peer, 0, len(h.sessions))
	for _, s := range h.sessions {
		if msg.Session == "" || s.name == msg.Session {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		h.enqueue(s, out)
	}

	outcome := "delivered"
	if len(targets) == 0 {
		outcome = "dropped"
	}
	h.metrics.Scans.WithLabelValues(outcome).Inc()
	logging.Debug("Scan routed",
		zap.String("scanner", from.id),
		zap.String("barcode", msg.Barcode),
		zap.Int("sessions", len(targets)),
	)
	h.enqueue(from, &Message{Type: TypeAck, ID: out.ID, Delivered: len(targets)})
}

func (h *Hub) routeVibrate(msg *Message) {
	h.mu.RLock()
	id := msg.Scanner
	if id == "" {
		id = h.lastScanner
	}
	target := h.scanners[id]
	h.mu.RUnlock()

	if target == nil {
		logging.Debug("No scanner to vibrate", zap.String("scanner", id))
		return
	}
	h.metrics.Vibrations.Inc()
	h.enqueue(target, &Message{Type: TypeVibrate, Ms: msg.Ms})
}

// enqueue queues msg for p. A peer that cannot keep up is dropped; one
// that is already gone is skipped.
func (h *Hub) enqueue(p *peer, msg *Message) {
	data, err := msg.Encode()
	if err != nil {
		logging.Error("Failed to encode message", zap.Error(err))
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case <-p.done:
	case p.send <- data:
		h.metrics.Messages.WithLabelValues("out", string(msg.Type)).Inc()
	default:
		logging.Warn("Peer too slow, dropping connection", zap.String("remote_addr", p.remoteAddr))
		h.unregister(p)
	}
}

func (h *Hub) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.ws.Close()
	}()

	for {
		select {
		case <-p.done:
			_ = p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = p.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-p.send:
			_ = p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Debug("Write failed", zap.String("remote_addr", p.remoteAddr), zap.Error(err))
				return
			}
			logging.LogWebSocketMessage(p.remoteAddr, "sent", websocket.TextMessage, data)
		case <-ticker.C:
			_ = p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Counts returns the number of connected scanners and sessions.
func (h *Hub) Counts() (scanners, sessions int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scanners), len(h.sessions)
}

// Close disconnects every peer and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := make([]*peer, 0, len(h.scanners)+len(h.sessions))
	for _, p := range h.scanners {
		all = append(all, p)
	}
	for _, p := range h.sessions {
		all = append(all, p)
	}
	h.mu.Unlock()

	for _, p := range all {
		logging.Info("Closing active connection", zap.String("remote_addr", p.remoteAddr))
		h.unregister(p)
	}
	h.wg.Wait()
}
