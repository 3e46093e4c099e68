package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tradelab/internal/domain"
	"tradelab/internal/logger"
	"tradelab/internal/observability"
)

// WSIngressConfig configures the market data WebSocket ingress.
type WSIngressConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSIngressConfig returns default ingress configuration.
func DefaultWSIngressConfig() WSIngressConfig {
	return WSIngressConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Subscription names the candle streams the ingress asks the feed for.
type Subscription struct {
	Tickers    []string `json:"tickers"`
	Timeframes []string `json:"timeframes"`
}

// WSIngress consumes closed candles from an upstream market data feed
// over WebSocket and publishes them as NewCandle events. It reconnects
// with exponential backoff and resubscribes after each reconnect.
type WSIngress struct {
	endpoint string
	config   WSIngressConfig
	sub      Subscription
	pub      Publisher

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// candleFrame is the wire shape of one feed message.
type candleFrame struct {
	Type      string  `json:"type"`
	Ticker    string  `json:"ticker"`
	Timeframe string  `json:"timeframe"`
	BeginMs   int64   `json:"begin_ms"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type subscribeFrame struct {
	Op         string   `json:"op"`
	Tickers    []string `json:"tickers"`
	Timeframes []string `json:"timeframes"`
}

// NewWSIngress connects to the feed, subscribes, and starts the read
// and ping loops.
func NewWSIngress(ctx context.Context, endpoint string, sub Subscription, pub Publisher, config *WSIngressConfig) (*WSIngress, error) {
	cfg := DefaultWSIngressConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSIngress{
		endpoint: endpoint,
		config:   cfg,
		sub:      sub,
		pub:      pub,
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := c.subscribe(); err != nil {
		c.Close()
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

func (c *WSIngress) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

func (c *WSIngress) subscribe() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(subscribeFrame{
		Op:         "subscribe",
		Tickers:    c.sub.Tickers,
		Timeframes: c.sub.Timeframes,
	})
	if err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection and stops the loops.
func (c *WSIngress) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *WSIngress) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

func (c *WSIngress) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		logger.Warnf("market data reconnect failed: %v", err)
		return
	}

	if err := c.subscribe(); err != nil {
		logger.Warnf("market data resubscribe failed: %v", err)
		return
	}

	observability.RecordFeedReconnect()
	logger.Infof("market data feed reconnected: %s", c.endpoint)
}

func (c *WSIngress) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

func (c *WSIngress) handleMessage(message []byte) {
	var frame candleFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		logger.Warnf("malformed feed message: %v", err)
		return
	}
	if frame.Type != "candle" {
		return
	}

	e := NewCandle{Candle: domain.Candle{
		Ticker:    frame.Ticker,
		Timeframe: frame.Timeframe,
		BeginMs:   frame.BeginMs,
		Open:      frame.Open,
		High:      frame.High,
		Low:       frame.Low,
		Close:     frame.Close,
		Volume:    frame.Volume,
	}}
	if err := c.pub.Publish(context.Background(), e); err != nil {
		logger.Errorf("publish candle event: %v", err)
	}
}
