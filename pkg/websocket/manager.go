// Package websocket maintains the single authenticated stream connection to
// the exchange: orderbook snapshots and deltas for subscribed tickers plus
// account-wide fill and position channels.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/pkg/types"
)

// Manager manages one authenticated WebSocket connection. Decoded events are
// delivered on EventChan; a detected sequence gap is signalled on GapChan so
// the owner can resync books from REST.
type Manager struct {
	url          string
	conn         *websocket.Conn
	logger       *zap.Logger
	reconnectMgr *ReconnectManager
	config       Config

	eventChan chan *types.Event
	gapChan   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	subscribed map[string]bool // orderbook-subscribed tickers

	// Each ticker's orderbook channel carries its own seq sequence, so gaps
	// are tracked per ticker. Account channels carry unrelated sequences and
	// are not tracked.
	seqMu   sync.Mutex
	lastSeq map[string]int64

	connected       atomic.Bool
	lastPongTime    atomic.Int64
	connectionStart atomic.Int64
	cmdID           atomic.Int64
}

// Config holds stream manager configuration.
type Config struct {
	URL string
	// AuthHeaders builds the signed connection headers. Called on every
	// (re)connect so the timestamp stays fresh.
	AuthHeaders           func() (map[string]string, error)
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger
}

// command is the client-to-exchange control frame.
type command struct {
	ID     int64         `json:"id"`
	Cmd    string        `json:"cmd"`
	Params commandParams `json:"params"`
}

type commandParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

// New creates a new stream manager.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}

	return &Manager{
		url:          cfg.URL,
		logger:       cfg.Logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		config:       cfg,
		eventChan:    make(chan *types.Event, cfg.MessageBufferSize),
		gapChan:      make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		subscribed:   make(map[string]bool),
		lastSeq:      make(map[string]int64),
	}
}

// Start connects, subscribes the account channels, and starts the read,
// ping, and reconnect loops.
func (m *Manager) Start() error {
	m.logger.Info("stream-manager-starting", zap.String("url", m.url))

	err := m.connect(m.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	err = m.subscribeAccountChannels()
	if err != nil {
		return fmt.Errorf("subscribe account channels: %w", err)
	}

	m.wg.Add(3)
	go m.readLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

// connect establishes an authenticated WebSocket connection.
func (m *Manager) connect(ctx context.Context) error {
	headers, err := m.config.AuthHeaders()
	if err != nil {
		return fmt.Errorf("auth headers: %w", err)
	}
	header := make(http.Header, len(headers))
	for k, v := range headers {
		header.Set(k, v)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	m.logger.Info("connecting-to-stream", zap.String("url", m.url))

	conn, _, err := dialer.DialContext(ctx, m.url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().Unix())
		return nil
	})

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	now := time.Now()
	m.connected.Store(true)
	m.lastPongTime.Store(now.Unix())
	m.connectionStart.Store(now.Unix())
	// Sequence numbers restart on a fresh connection.
	m.seqMu.Lock()
	m.lastSeq = make(map[string]int64)
	m.seqMu.Unlock()
	ActiveConnections.Set(1)

	m.logger.Info("stream-connected")

	return nil
}

// subscribeAccountChannels subscribes the fill and position channels, which
// cover the whole account and carry no ticker list.
func (m *Manager) subscribeAccountChannels() error {
	return m.writeCommand(&command{
		ID:  m.cmdID.Add(1),
		Cmd: "subscribe",
		Params: commandParams{
			Channels: []string{"fill", "market_positions"},
		},
	})
}

// Subscribe adds tickers to the orderbook delta channel.
func (m *Manager) Subscribe(ctx context.Context, tickers []string) error {
	if len(tickers) == 0 {
		return nil
	}

	m.mu.Lock()
	newTickers := make([]string, 0, len(tickers))
	for _, ticker := range tickers {
		if !m.subscribed[ticker] {
			newTickers = append(newTickers, ticker)
			m.subscribed[ticker] = true
		}
	}
	if len(newTickers) == 0 {
		m.mu.Unlock()
		m.logger.Debug("all-tickers-already-subscribed")
		return nil
	}
	totalSubscribed := len(m.subscribed)
	m.mu.Unlock()

	err := m.writeCommand(&command{
		ID:  m.cmdID.Add(1),
		Cmd: "subscribe",
		Params: commandParams{
			Channels:      []string{"orderbook_delta"},
			MarketTickers: newTickers,
		},
	})
	if err != nil {
		// Roll back so a later Subscribe retries these tickers.
		m.mu.Lock()
		for _, ticker := range newTickers {
			delete(m.subscribed, ticker)
		}
		totalSubscribed = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(totalSubscribed))
		return fmt.Errorf("write subscribe command: %w", err)
	}

	SubscriptionCount.Set(float64(totalSubscribed))

	m.logger.Info("subscribed-to-tickers",
		zap.Int("new-count", len(newTickers)),
		zap.Int("total-count", totalSubscribed))

	return nil
}

// Unsubscribe removes tickers from the orderbook delta channel.
func (m *Manager) Unsubscribe(ctx context.Context, tickers []string) error {
	if len(tickers) == 0 {
		return nil
	}

	m.mu.Lock()
	dropped := make([]string, 0, len(tickers))
	for _, ticker := range tickers {
		if m.subscribed[ticker] {
			dropped = append(dropped, ticker)
			delete(m.subscribed, ticker)
		}
	}
	if len(dropped) == 0 {
		m.mu.Unlock()
		return nil
	}
	totalSubscribed := len(m.subscribed)
	m.mu.Unlock()

	// A later resubscribe starts a fresh sequence.
	m.seqMu.Lock()
	for _, ticker := range dropped {
		delete(m.lastSeq, ticker)
	}
	m.seqMu.Unlock()

	err := m.writeCommand(&command{
		ID:  m.cmdID.Add(1),
		Cmd: "unsubscribe",
		Params: commandParams{
			Channels:      []string{"orderbook_delta"},
			MarketTickers: dropped,
		},
	})
	if err != nil {
		m.mu.Lock()
		for _, ticker := range dropped {
			m.subscribed[ticker] = true
		}
		totalSubscribed = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(totalSubscribed))
		return fmt.Errorf("write unsubscribe command: %w", err)
	}

	SubscriptionCount.Set(float64(totalSubscribed))

	m.logger.Info("unsubscribed-from-tickers",
		zap.Int("count", len(dropped)),
		zap.Int("remaining-count", totalSubscribed))

	return nil
}

func (m *Manager) writeCommand(cmd *command) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.WriteJSON(cmd)
}

// readLoop reads and decodes stream messages until the connection drops.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			m.logger.Warn("read-error", zap.Error(err))

			startTime := m.connectionStart.Load()
			if startTime > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(startTime, 0)).Seconds())
			}

			m.connected.Store(false)
			ActiveConnections.Set(0)
			return
		}

		m.handleMessage(message)
	}
}

// handleMessage decodes one envelope and delivers the event.
func (m *Manager) handleMessage(message []byte) {
	var env types.StreamMessage
	if err := json.Unmarshal(message, &env); err != nil {
		m.logger.Debug("stream-unparseable-message",
			zap.Error(err),
			zap.Int("bytes", len(message)))
		return
	}

	MessagesReceivedTotal.WithLabelValues(env.Type).Inc()

	event := &types.Event{Seq: env.Seq}

	switch env.Type {
	case string(types.EventOrderbookSnapshot):
		event.Type = types.EventOrderbookSnapshot
		event.Snapshot = &types.OrderbookSnapshot{}
		if err := json.Unmarshal(env.Msg, event.Snapshot); err != nil {
			m.logger.Warn("decode-snapshot-failed", zap.Error(err))
			return
		}
		// A snapshot re-bases the ticker's sequence; no gap to detect.
		m.recordSeq(event.Snapshot.Ticker, env.Seq)
	case string(types.EventOrderbookDelta):
		event.Type = types.EventOrderbookDelta
		event.Delta = &types.OrderbookDelta{}
		if err := json.Unmarshal(env.Msg, event.Delta); err != nil {
			m.logger.Warn("decode-delta-failed", zap.Error(err))
			return
		}
		m.checkSeq(event.Delta.Ticker, env.Seq)
	case string(types.EventFill):
		event.Type = types.EventFill
		event.Fill = &types.Fill{}
		if err := json.Unmarshal(env.Msg, event.Fill); err != nil {
			m.logger.Warn("decode-fill-failed", zap.Error(err))
			return
		}
	case string(types.EventPosition):
		event.Type = types.EventPosition
		event.Position = &types.PositionUpdate{}
		if err := json.Unmarshal(env.Msg, event.Position); err != nil {
			m.logger.Warn("decode-position-failed", zap.Error(err))
			return
		}
	case "subscribed", "ok":
		m.logger.Debug("stream-control-message", zap.String("type", env.Type))
		return
	case "error":
		m.logger.Warn("stream-error-message", zap.ByteString("msg", env.Msg))
		return
	default:
		m.logger.Debug("stream-unknown-message-type", zap.String("type", env.Type))
		return
	}

	select {
	case m.eventChan <- event:
	default:
		m.logger.Warn("event-channel-full", zap.String("event-type", env.Type))
		MessagesDroppedTotal.WithLabelValues("channel_full").Inc()
	}
}

// recordSeq stores a ticker's sequence position without a gap check.
func (m *Manager) recordSeq(ticker string, seq int64) {
	if ticker == "" || seq <= 0 {
		return
	}
	m.seqMu.Lock()
	m.lastSeq[ticker] = seq
	m.seqMu.Unlock()
}

// checkSeq verifies a delta continues the ticker's sequence and signals a
// gap when messages were missed. The first delta for a ticker only sets
// the baseline.
func (m *Manager) checkSeq(ticker string, seq int64) {
	if ticker == "" || seq <= 0 {
		return
	}

	m.seqMu.Lock()
	last := m.lastSeq[ticker]
	m.lastSeq[ticker] = seq
	m.seqMu.Unlock()

	if last > 0 && seq != last+1 {
		m.logger.Warn("stream-seq-gap",
			zap.String("ticker", ticker),
			zap.Int64("last-seq", last),
			zap.Int64("seq", seq))
		SeqGapsTotal.Inc()
		m.signalGap()
	}
}

// signalGap wakes the resync listener without blocking. A pending signal
// already covers any further gaps.
func (m *Manager) signalGap() {
	select {
	case m.gapChan <- struct{}{}:
	default:
	}
}

// pingLoop sends periodic PING messages.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop re-establishes the connection after a drop, resubscribes,
// and restarts the read loop.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() {
			time.Sleep(time.Second)
			continue
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		err := m.reconnectMgr.Reconnect(m.ctx, m.connect)
		if err != nil {
			if err == context.Canceled {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		err = m.resubscribeAll()
		if err != nil {
			m.logger.Error("resubscribe-failed", zap.Error(err))
			m.connected.Store(false)
			continue
		}

		// Books rebuilt from fresh snapshots may have missed deltas while
		// disconnected; force a REST resync regardless.
		m.signalGap()

		m.logger.Info("reconnection-complete-restarting-read-loop")

		m.wg.Add(1)
		go m.readLoop()
	}
}

// resubscribeAll restores the account channels and every ticker
// subscription on a fresh connection.
func (m *Manager) resubscribeAll() error {
	err := m.subscribeAccountChannels()
	if err != nil {
		return err
	}

	m.mu.RLock()
	tickers := make([]string, 0, len(m.subscribed))
	for ticker := range m.subscribed {
		tickers = append(tickers, ticker)
	}
	m.mu.RUnlock()

	if len(tickers) == 0 {
		return nil
	}

	err = m.writeCommand(&command{
		ID:  m.cmdID.Add(1),
		Cmd: "subscribe",
		Params: commandParams{
			Channels:      []string{"orderbook_delta"},
			MarketTickers: tickers,
		},
	})
	if err != nil {
		return fmt.Errorf("write resubscribe command: %w", err)
	}

	m.logger.Info("resubscribed-to-all-tickers", zap.Int("count", len(tickers)))

	return nil
}

// EventChan returns the channel carrying decoded stream events.
func (m *Manager) EventChan() <-chan *types.Event {
	return m.eventChan
}

// GapChan signals that the book state may be stale and needs a REST resync.
func (m *Manager) GapChan() <-chan struct{} {
	return m.gapChan
}

// Close gracefully closes the stream manager.
func (m *Manager) Close() error {
	m.logger.Info("closing-stream-manager")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	close(m.eventChan)

	ActiveConnections.Set(0)

	m.logger.Info("stream-manager-closed")

	return nil
}
