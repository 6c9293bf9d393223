package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Status feed: read-only websocket of mixer state
// ============================================================================
//
// Clients receive "state_init" on connect, then "level_changed" and
// "mute_changed" as the dispatcher applies events. Anything a client sends
// is read and discarded; control goes through the IPC socket.
//
// Frames are JSON text messages: {type, ts, data}. A client whose send
// buffer fills is disconnected.
//
// ============================================================================

// wsStateData is the `data` payload for "state_init".
type wsStateData struct {
	Level int       `json:"level"`
	Muted bool      `json:"muted"`
	At    time.Time `json:"at"`
}

// wsLevelChangedData is the `data` payload for "level_changed".
type wsLevelChangedData struct {
	Level int `json:"level"`
}

// wsMuteChangedData is the `data` payload for "mute_changed".
type wsMuteChangedData struct {
	Muted bool `json:"muted"`
}

type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time
}

// envelope is the wire format for every frame.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalFrame(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// Bursts of level updates (a fast spin) are sent at most this often, latest wins.
	wsLevelCoalesceWindow = 50 * time.Millisecond

	// How long a new client waits for the dispatcher to answer a snapshot request.
	wsSnapshotTimeout = time.Second
)

// ============================================================================
// Hub
// ============================================================================

// Hub tracks connected clients and fans frames out to them.
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	SendBuf      int // per-client outbound queue, default 32
	BroadcastBuf int // hub inbound queue, default 128
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		unregister: make(chan *Client, 16),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("status hub stopping")
			h.closeAllClients()
			return

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// add registers c immediately. Frames broadcast after add returns are
// queued on c.send even before c has a connection.
func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("status client connected", "remote_addr", c.remoteAddr, "clients", n)
}

// attach gives a registered client its connection. It reports false if the
// hub already dropped the client, in which case the caller owns conn.
func (h *Hub) attach(c *Client, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	c.conn = conn
	return true
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	conn := c.conn
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.closeSend()
	h.logger.Info("status client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// BroadcastBytes enqueues a serialized frame. It drops the frame if the hub is backed up.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("status hub queue full, dropping frame", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// closeSend signals writePump to exit.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("status "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Debug("status "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes first, then queued frames and keepalive pings until send
// is closed or a write fails.
func (c *Client) writePump(first []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, first); err != nil {
		c.logExit("writePump", err)
		return
	}

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound messages so control frames are processed and
// disconnects are noticed, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

// StatusServer serves the state feed. The initial snapshot is requested
// through the event queue so only the dispatcher reads Volume.
type StatusServer struct {
	logger *slog.Logger
	hub    *Hub
	queue  *EventQueue

	upgrader websocket.Upgrader
}

// NewStatusServer constructs the feed. Start Hub().Run and RunBroadcaster separately.
func NewStatusServer(logger *slog.Logger, queue *EventQueue, cfg HubConfig) *StatusServer {
	return &StatusServer{
		logger: logger,
		hub:    NewHub(logger, cfg),
		queue:  queue,
		upgrader: websocket.Upgrader{
			// Read-only feed bound to a local address by default.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *StatusServer) Hub() *Hub { return s.hub }

// Register installs the handler on mux at path.
func (s *StatusServer) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, s.handleStateWS)
}

func (s *StatusServer) handleStateWS(w http.ResponseWriter, r *http.Request) {
	// Registered before the snapshot request is queued, so every change the
	// dispatcher applies after the snapshot reaches this client's buffer.
	client := NewClient(s.hub, nil, r.RemoteAddr, s.logger)
	s.hub.add(client)

	// The snapshot is taken before upgrading so a stopped dispatcher yields a plain HTTP error.
	snap, err := s.requestSnapshot(r.Context())
	if err != nil {
		s.hub.removeClient(client, "snapshot_failed")
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("status snapshot request failed", "error", err)
		}
		http.Error(w, "state unavailable", http.StatusServiceUnavailable)
		return
	}

	initMsg, err := marshalFrame(wsOutboundEvent{
		Type: "state_init",
		Data: wsStateData{Level: snap.Level, Muted: snap.Muted, At: snap.At},
		At:   snap.At,
	})
	if err != nil {
		s.hub.removeClient(client, "marshal_failed")
		s.logger.Warn("status marshal failed", "error", err)
		http.Error(w, "state unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.removeClient(client, "upgrade_failed")
		s.logger.Warn("status upgrade failed", "error", err)
		return
	}

	if !s.hub.attach(client, conn) {
		// Dropped while waiting (slow or hub shutdown).
		_ = conn.Close()
		return
	}

	// The pumps outlive the request; the hub and socket errors end them.
	go client.writePump(initMsg)
	go client.readPump()
}

func (s *StatusServer) requestSnapshot(ctx context.Context) (StateSnapshot, error) {
	reply := make(chan StateSnapshot, 1)
	s.queue.Publish(RequestStateSnapshot{Reply: reply})

	ctx, cancel := context.WithTimeout(ctx, wsSnapshotTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster converts dispatcher broadcasts into frames for hub. Level
// changes are coalesced; mute changes flush any pending level first so
// clients see them in order.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerC <-chan time.Time

	emit := func(ev wsOutboundEvent) {
		msg, err := marshalFrame(ev)
		if err != nil {
			logger.Warn("status broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}
	flush := func() {
		if pending != nil {
			emit(*pending)
			pending = nil
		}
	}
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			stopTimer()
			return

		case <-timerC:
			timer, timerC = nil, nil
			flush()

		case b, ok := <-src:
			if !ok {
				flush()
				stopTimer()
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == "level_changed" {
				pending = &ev
				if timer == nil {
					timer = time.NewTimer(wsLevelCoalesceWindow)
					timerC = timer.C
				}
				continue
			}

			flush()
			stopTimer()
			emit(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastLevelChanged:
		return wsOutboundEvent{
			Type: "level_changed",
			Data: wsLevelChangedData{Level: ev.Level},
			At:   ev.At,
		}, true

	case BroadcastMuteChanged:
		return wsOutboundEvent{
			Type: "mute_changed",
			Data: wsMuteChangedData{Muted: ev.Muted},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
