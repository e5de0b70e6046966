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
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Mirrors the panel to remote observers (a web page, ws_listen):
//   - The Hub tracks connected clients; each has its own write pump so a slow
//     client never stalls the others, and is dropped once its queue fills.
//   - RunBroadcaster turns Display broadcasts into JSON frames.
//   - On connect a client first receives "state_init" with the full snapshot.
//
// Frames are JSON text messages with an envelope: {type, ts, data}.
//
// ============================================================================

// wsStateInitData is the `data` payload for "state_init".
type wsStateInitData struct {
	Volume      int    `json:"volume"`
	SourceIndex int    `json:"source_index"`
	Source      string `json:"source"`
	FilterIndex int    `json:"filter_index"`
	Filter      string `json:"filter"`
	State       string `json:"state"`
	Highlighted string `json:"highlighted"`
}

type wsVolumeChangedData struct {
	Volume int `json:"volume"`
}

type wsSelectionChangedData struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

type wsHighlightChangedData struct {
	Item string `json:"item"`
	Mode string `json:"mode"`
}

// wsOutboundEvent is a typed, externally consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means "now"
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Already-serialized JSON frames.
	broadcast  chan []byte
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}
	stopped bool

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 32).
	SendBuf int

	// BroadcastBuf is the hub inbound queue size (default 128).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = defaultBroadcastBuf
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first; removal happens after unlocking.
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

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
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
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	// Closing send tells writePump to exit.
	c.closeSend()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// attach registers c and queues the frame built by first in one step. Fan-out
// takes the same lock, so every broadcast processed after attach reaches c
// and lands behind its first frame. It returns false once the hub has stopped.
func (h *Hub) attach(c *Client, first func() []byte) bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	if first != nil {
		if msg := first(); msg != nil {
			// The queue is new and empty.
			c.send <- msg
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)
	return true
}

// BroadcastBytes enqueues a serialized frame. It never blocks; frames are
// dropped when the hub queue is full.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
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

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsVolumeCoalesceWindow is the longest a volume update is held back so that a
// fast spin produces at most one frame per window (latest wins).
const wsVolumeCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts the websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump, what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+what+" error)", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes queued frames and keepalive pings. It exits on write error
// or when send is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping", err)
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to process control frames and
// notice disconnects, after which it unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", "read", err)
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

// stateSource provides the snapshot sent as "state_init".
type stateSource interface {
	Snapshot(now time.Time) StatusSnapshot
}

type Server struct {
	logger *slog.Logger
	hub    *Hub
	state  stateSource
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the WS state server. Register it on a mux, then start
// Hub().Run and RunBroadcaster.
func NewServer(logger *slog.Logger, state stateSource, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		state:  state,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// The feed is read-only state; any origin may watch it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func stateInitEvent(snap StatusSnapshot) wsOutboundEvent {
	data := wsStateInitData{
		State:       snap.State,
		Highlighted: snap.Highlighted,
	}
	if snap.Display != nil {
		data.Volume = snap.Display.Volume
		data.SourceIndex = snap.Display.SourceIndex
		data.Source = snap.Display.Source
		data.FilterIndex = snap.Display.FilterIndex
		data.Filter = snap.Display.Filter
	}
	return wsOutboundEvent{Type: "state_init", Data: data}
}

// stateInitFrame serializes the current snapshot, or returns nil.
func (s *Server) stateInitFrame() []byte {
	if s.state == nil {
		return nil
	}
	msg, err := marshalEnvelope(stateInitEvent(s.state.Snapshot(time.Now())))
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return nil
	}
	return msg
}

// handleStateWS upgrades a client and attaches it to the hub with state_init
// as its first frame.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// The snapshot is taken inside attach: changes made before it are in
	// state_init, changes after it arrive as frames behind state_init.
	if !s.hub.attach(client, s.stateInitFrame) {
		_ = conn.Close()
		return
	}

	// Pumps are not tied to r.Context(): net/http cancels it when the handler
	// returns. The hub and socket errors bound their lifetime instead.
	go client.writePump()
	go client.readPump()
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster converts display broadcasts into frames and hands them to the
// hub. Volume updates are coalesced; everything else is sent immediately,
// after flushing any pending volume so ordering is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pendingVol *wsOutboundEvent
	var volTimer *time.Timer
	var volTimerCh <-chan time.Time

	send := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPendingVol := func() {
		if pendingVol == nil {
			return
		}
		send(*pendingVol)
		pendingVol = nil
	}

	stopVolTimer := func() {
		if volTimer != nil {
			volTimer.Stop()
		}
		volTimer = nil
		volTimerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPendingVol()
			stopVolTimer()
			return

		case <-volTimerCh:
			flushPendingVol()
			stopVolTimer()

		case b, ok := <-src:
			if !ok {
				flushPendingVol()
				stopVolTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == "volume_changed" {
				pendingVol = &ev
				// The window runs from the first pending update; later ones
				// only replace the payload.
				if volTimer == nil {
					volTimer = time.NewTimer(wsVolumeCoalesceWindow)
					volTimerCh = volTimer.C
				}
				continue
			}

			flushPendingVol()
			stopVolTimer()
			send(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastVolumeChanged:
		return wsOutboundEvent{
			Type: "volume_changed",
			Data: wsVolumeChangedData{Volume: ev.Volume},
			At:   ev.At,
		}, true

	case BroadcastSourceChanged:
		return wsOutboundEvent{
			Type: "source_changed",
			Data: wsSelectionChangedData{Index: ev.Index, Label: ev.Label},
			At:   ev.At,
		}, true

	case BroadcastFilterChanged:
		return wsOutboundEvent{
			Type: "filter_changed",
			Data: wsSelectionChangedData{Index: ev.Index, Label: ev.Label},
			At:   ev.At,
		}, true

	case BroadcastHighlightChanged:
		return wsOutboundEvent{
			Type: "highlight_changed",
			Data: wsHighlightChangedData{Item: ev.Item.String(), Mode: ev.Mode.String()},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
