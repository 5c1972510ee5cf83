package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EdgeXWSClient handles the public quote WebSocket of EdgeX. Subscriptions
// survive reconnects.
type EdgeXWSClient struct {
	url    string
	logger *zap.Logger

	mu       sync.RWMutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	handlers map[string]func(json.RawMessage)

	stopCh    chan struct{}
	closeOnce sync.Once
}

type EdgeXWSMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Time    string          `json:"time,omitempty"`
}

type EdgeXTickerContent struct {
	DataType string        `json:"dataType"`
	Channel  string        `json:"channel"`
	Data     []EdgeXTicker `json:"data"`
}

type EdgeXTicker struct {
	ContractId string `json:"contractId"`
	LastPrice  string `json:"lastPrice"`
	IndexPrice string `json:"indexPrice"`
	MarkPrice  string `json:"markPrice"`
}

var errClosed = errors.New("websocket client closed")

const (
	pingInterval   = 30 * time.Second
	reconnectDelay = time.Second
)

func NewEdgeXWSClient(url string, logger *zap.Logger) *EdgeXWSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EdgeXWSClient{
		url:      url,
		logger:   logger.With(zap.String("component", "edgex_ws")),
		handlers: make(map[string]func(json.RawMessage)),
		stopCh:   make(chan struct{}),
	}
}

// TickerChannel is the quote channel name for a contract.
func TickerChannel(contractID string) string {
	return "ticker." + contractID
}

func (c *EdgeXWSClient) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}

	go c.handleMessages()
	go c.handlePingPong()

	return nil
}

func (c *EdgeXWSClient) dial(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to EdgeX WebSocket: %w", err)
	}

	c.mu.Lock()
	if c.stopped() {
		c.mu.Unlock()
		_ = conn.Close()
		return errClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("websocket connected", zap.String("url", c.url))
	return nil
}

func (c *EdgeXWSClient) Subscribe(channel string, handler func(json.RawMessage)) error {
	c.mu.Lock()
	c.handlers[channel] = handler
	c.mu.Unlock()

	return c.sendMessage(EdgeXWSMessage{Type: "subscribe", Channel: channel})
}

func (c *EdgeXWSClient) Unsubscribe(channel string) error {
	c.mu.Lock()
	delete(c.handlers, channel)
	c.mu.Unlock()

	return c.sendMessage(EdgeXWSMessage{Type: "unsubscribe", Channel: channel})
}

func (c *EdgeXWSClient) sendMessage(msg interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("websocket not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *EdgeXWSClient) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *EdgeXWSClient) handleMessages() {
	for !c.stopped() {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			c.reconnect()
			continue
		}

		var msg EdgeXWSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if c.stopped() {
				return
			}
			c.logger.Warn("websocket read error", zap.Error(err))
			_ = conn.Close()
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			continue
		}

		switch msg.Type {
		case "ping":
			if err := c.sendMessage(EdgeXWSMessage{Type: "pong", Time: msg.Time}); err != nil {
				c.logger.Warn("websocket pong error", zap.Error(err))
			}

		case "pong":

		case "subscribed":
			c.logger.Debug("websocket subscribed", zap.String("channel", msg.Channel))

		case "quote-event":
			c.mu.RLock()
			handler, ok := c.handlers[msg.Channel]
			c.mu.RUnlock()

			if ok && handler != nil {
				handler(msg.Content)
			}

		case "error":
			c.logger.Warn("websocket error message", zap.String("content", string(msg.Content)))
		}
	}
}

// reconnect dials again after a short pause and replays subscriptions.
func (c *EdgeXWSClient) reconnect() {
	select {
	case <-c.stopCh:
		return
	case <-time.After(reconnectDelay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.logger.Warn("websocket reconnect failed", zap.Error(err))
		return
	}

	c.mu.RLock()
	channels := make([]string, 0, len(c.handlers))
	for ch := range c.handlers {
		channels = append(channels, ch)
	}
	c.mu.RUnlock()

	for _, ch := range channels {
		if err := c.sendMessage(EdgeXWSMessage{Type: "subscribe", Channel: ch}); err != nil {
			c.logger.Warn("websocket resubscribe failed", zap.String("channel", ch), zap.Error(err))
		}
	}
}

func (c *EdgeXWSClient) handlePingPong() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ping := EdgeXWSMessage{
				Type: "ping",
				Time: strconv.FormatInt(time.Now().UnixMilli(), 10),
			}
			if err := c.sendMessage(ping); err != nil {
				c.logger.Debug("websocket ping error", zap.Error(err))
			}
		}
	}
}

func (c *EdgeXWSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopCh)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			err = c.conn.Close()
			c.conn = nil
		}
	})
	return err
}
