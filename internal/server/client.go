// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/ensemblechat/internal/auth"
	"github.com/Tyrowin/ensemblechat/internal/chat"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one WebSocket connection joined to one channel. It implements
// chat.Connection: the hub hands it messages through Deliver, which only
// enqueues into the send buffer drained by writePump.
type Client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	gateway *Gateway
	session auth.Session
	channel chat.ChannelName
	addr    string
	log     *slog.Logger
	limiter *rateLimiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(g *Gateway, conn *websocket.Conn, session auth.Session, channel chat.ChannelName, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(g.cfg.MaxMessageSize)
	}
	id := uuid.New()
	return &Client{
		id:      id,
		conn:    conn,
		gateway: g,
		session: session,
		channel: channel,
		addr:    addr,
		log: g.log.With("client", id, "addr", addr,
			"tenant", session.TenantID, "channel", channel),
		limiter: newRateLimiter(g.cfg.RateLimitBurst, g.cfg.RateLimitRefillInterval, nil),
		send:    make(chan []byte, g.cfg.SendBufferSize),
	}
}

// Deliver enqueues msg without blocking. A full buffer means the peer cannot
// keep up: the client closes itself and reports the failure.
func (c *Client) Deliver(_ context.Context, msg chat.Message) error {
	payload, err := json.Marshal(messageFrame(c.channel, msg))
	if err != nil {
		return err
	}
	return c.enqueue(payload)
}

func (c *Client) enqueue(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.closeSendLocked()
		c.log.Warn("Send buffer full, closing client")
		return ErrSendBufferFull
	}
}

func (c *Client) sendError(content string) {
	payload, err := json.Marshal(errorFrame(content))
	if err != nil {
		return
	}
	_ = c.enqueue(payload)
}

// closeSend stops the write pump after it flushed what is queued.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSendLocked()
}

func (c *Client) closeSendLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("Error closing connection", "error", err)
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError logs why the read loop ended.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.gateway.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Info("Client disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("Client connection closed", "reason", err)
	default:
		c.log.Warn("WebSocket read error", "error", err)
	}
}

// processMessage publishes one inbound frame on behalf of the session user.
func (c *Client) processMessage(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.log.Debug("Invalid frame", "error", err)
		c.sendError("invalid message format")
		return
	}

	msg := chat.UserMessage(c.session.Username, frame.Content)
	_, err := c.gateway.hub.Publish(c.gateway.ctx, c.session.TenantID, c.channel, msg)
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		c.sendError("message rejected: empty or too long")
	case err != nil:
		c.log.Warn("Publish failed", "error", err)
		c.sendError("message could not be published")
	}
}

func (c *Client) readPump() {
	defer c.gateway.release(c)

	c.setupReadConnection()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.limiter.allow() {
			c.log.Debug("Rate limit exceeded, discarding message",
				"burst", c.gateway.cfg.RateLimitBurst, "interval", c.gateway.cfg.RateLimitRefillInterval)
			c.sendError("rate limit exceeded")
			continue
		}
		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeSend()
		c.closeConnection()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !c.write(payload, ok) {
				return
			}
		case <-ticker.C:
			if !c.ping() {
				return
			}
		}
	}
}

// write sends one text frame, or the close frame once send is closed. It
// returns false when the pump should stop.
func (c *Client) write(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error setting write deadline", "error", err)
		return false
	}
	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error writing close message", "error", err)
		}
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Debug("Error writing message", "error", err)
		return false
	}
	return true
}

func (c *Client) ping() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("Error writing ping", "error", err)
		return false
	}
	return true
}
