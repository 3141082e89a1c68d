package operator

import (
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	sendBufferSize = 8
)

// client is one connected dashboard.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans state snapshots out to every connected dashboard. A snapshot is
// pushed whenever the engine reports a change and on a steady interval.
type hub struct {
	logger   *zap.Logger
	snapshot func() interface{}
	changed  <-chan struct{}
	interval time.Duration

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool

	done chan struct{}
	wg   sync.WaitGroup
}

func newHub(logger *zap.Logger, snapshot func() interface{}, changed <-chan struct{}, interval time.Duration) *hub {
	return &hub{
		logger:   logger,
		snapshot: snapshot,
		changed:  changed,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]bool),
		done:    make(chan struct{}),
	}
}

func (h *hub) start() {
	h.wg.Add(1)
	go h.run()
}

func (h *hub) stop() {
	close(h.done)
	h.wg.Wait()

	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
}

func (h *hub) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-h.changed:
			h.broadcast()
		case <-ticker.C:
			h.broadcast()
		}
	}
}

// broadcast marshals one snapshot and fans it out. A client whose send
// buffer is full is dropped; the dashboard reconnects.
func (h *hub) broadcast() {
	payload, err := json.Marshal(h.snapshot())
	if err != nil {
		h.logger.Error("snapshot-marshal-failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			close(c.send)
			delete(h.clients, c)
			PushClientsDroppedTotal.Inc()
		}
	}
	PushClients.Set(float64(len(h.clients)))
	h.mu.Unlock()

	SnapshotsPushedTotal.Inc()
}

func (h *hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("push-upgrade-failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = true
	PushClients.Set(float64(len(h.clients)))
	h.mu.Unlock()

	h.logger.Info("push-client-connected", zap.String("remote", conn.RemoteAddr().String()))

	// Immediate snapshot so the dashboard never waits for the next tick.
	if payload, err := json.Marshal(h.snapshot()); err == nil {
		select {
		case c.send <- payload:
		default:
		}
	}

	go c.writePump()
	go h.readPump(c)
}

// readPump discards inbound frames and tears the client down on error.
func (h *hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		if h.clients[c] {
			close(c.send)
			delete(h.clients, c)
			PushClients.Set(float64(len(h.clients)))
		}
		h.mu.Unlock()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
