// Package server coordinates WebSocket upgrades, hub membership, and
// connection cleanup for the chat service via the Gateway type.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Tyrowin/ensemblechat/internal/auth"
	"github.com/Tyrowin/ensemblechat/internal/chat"
	"github.com/Tyrowin/ensemblechat/internal/config"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Hub is the messaging core the gateway drives.
type Hub interface {
	Join(ctx context.Context, tenant chat.TenantID, channel chat.ChannelName, conn chat.Connection) error
	Leave(tenant chat.TenantID, channel chat.ChannelName, conn chat.Connection)
	Publish(ctx context.Context, tenant chat.TenantID, channel chat.ChannelName, msg chat.Message) (chat.Message, error)
	BroadcastSystem(ctx context.Context, tenant chat.TenantID, content string) error
	Recent(tenant chat.TenantID, channel chat.ChannelName, limit int) ([]chat.Message, error)
	ActiveChannels(tenant chat.TenantID) []chat.ChannelName
	ChannelStats(tenant chat.TenantID) map[chat.ChannelName]chat.ChannelStats
}

// SessionResolver turns an incoming request into a trusted tenant session.
type SessionResolver interface {
	FromRequest(r *http.Request) (auth.Session, error)
}

// Gateway maps WebSocket connect/disconnect and inbound frames onto hub
// calls. It owns the client goroutines, the hub only ever addresses clients.
type Gateway struct {
	hub      Hub
	sessions SessionResolver
	cfg      config.Config
	upgrader websocket.Upgrader
	log      *slog.Logger

	// ctx outlives single requests and is cancelled on Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*Client]struct{}
	closing bool
	wg      sync.WaitGroup
}

func NewGateway(log *slog.Logger, hub Hub, sessions SessionResolver, cfg config.Config) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	origins := newOriginPolicy(log, cfg.AllowedOrigins)
	return &Gateway{
		hub:      hub,
		sessions: sessions,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*Client]struct{}),
	}
}

// WebSocketHandler authenticates the caller, checks the channel, upgrades
// the connection and joins it to the hub. Join runs after the write pump
// starts, so the welcome and replay flow out immediately, and before the read
// pump starts, so the client cannot publish before it has joined.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	session, err := g.sessions.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	channel := chat.ChannelName(r.PathValue("channel"))
	if !lo.Contains(g.hub.ActiveChannels(session.TenantID), channel) {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(g, conn, session, channel, r.RemoteAddr)
	if !g.track(client) {
		client.closeConnection()
		return
	}

	go func() {
		defer g.wg.Done()
		client.writePump()
	}()

	if err := g.hub.Join(g.ctx, session.TenantID, channel, client); err != nil {
		g.log.Warn("Join failed", "tenant", session.TenantID, "channel", channel, "error", err)
		client.closeSend()
	}

	go func() {
		defer g.wg.Done()
		client.readPump()
	}()
}

// track registers client and reserves its two pump goroutines. It refuses
// new clients once shutdown started.
func (g *Gateway) track(client *Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closing {
		return false
	}
	g.clients[client] = struct{}{}
	g.wg.Add(2)
	g.log.Info("Client connected", "addr", client.addr, "tenant", client.session.TenantID,
		"channel", client.channel, "clients", len(g.clients))
	return true
}

// release is the disconnect path: leave the hub, stop the write pump, forget
// the client.
func (g *Gateway) release(client *Client) {
	g.hub.Leave(client.session.TenantID, client.channel, client)
	client.closeSend()
	client.closeConnection()

	g.mu.Lock()
	delete(g.clients, client)
	count := len(g.clients)
	g.mu.Unlock()
	g.log.Info("Client disconnected", "addr", client.addr, "clients", count)
}

// ClientCount returns the number of live WebSocket clients.
func (g *Gateway) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Shutdown stops accepting clients, disconnects the live ones and waits for
// their goroutines, up to timeout.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	g.log.Info("Initiating gateway shutdown...")

	g.mu.Lock()
	g.closing = true
	clients := lo.Keys(g.clients)
	g.mu.Unlock()

	g.cancel()
	for _, client := range clients {
		g.hub.Leave(client.session.TenantID, client.channel, client)
		client.closeSend()
		client.closeConnection()
	}
	g.log.Info("Closed client connections", "count", len(clients))

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.log.Info("Gateway shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		g.log.Warn("Gateway shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
