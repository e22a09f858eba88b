package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	DefaultReplayLimit      = 20
	DefaultRecentLimit      = 50
	DefaultMaxContentLength = 2000
)

// Config holds the tunables of a Hub. Zero values fall back to defaults.
type Config struct {
	HistoryCapacity  int
	ReplayLimit      int
	DeliveryTimeout  time.Duration
	MaxContentLength int
}

// Option customizes a Hub.
type Option func(*Hub)

// WithCatalog replaces the default channel catalog.
func WithCatalog(c *Catalog) Option {
	return func(h *Hub) { h.catalog = c }
}

// WithClock replaces time.Now as the source of message timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// Hub is the composition root of the messaging core. One Hub is built at
// startup and shared by every transport handler; it holds no global state.
//
// Join and Publish on the same (tenant, channel) are serialized so that a
// joining connection sees every message exactly once: either in its replay or
// live. Leave only touches the registry and never waits for a fanout.
type Hub struct {
	catalog     *Catalog
	history     *MessageLog
	registry    *Registry
	broadcaster *Broadcaster
	locks       *keyedMutex
	validate    *validator.Validate
	log         *slog.Logger
	now         func() time.Time

	replayLimit      int
	maxContentLength int
}

func NewHub(log *slog.Logger, cfg Config, opts ...Option) *Hub {
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = DefaultReplayLimit
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = DefaultMaxContentLength
	}

	h := &Hub{
		catalog:          NewCatalog(),
		history:          NewMessageLog(cfg.HistoryCapacity),
		registry:         NewRegistry(),
		broadcaster:      NewBroadcaster(log, cfg.DeliveryTimeout),
		locks:            newKeyedMutex(),
		validate:         validator.New(),
		log:              log,
		now:              time.Now,
		replayLimit:      cfg.ReplayLimit,
		maxContentLength: cfg.MaxContentLength,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Catalog() *Catalog { return h.catalog }

// Join registers conn on the channel, sends it a private welcome notice and
// replays the recent history, oldest first. Joining twice is a no-op.
func (h *Hub) Join(ctx context.Context, tenant TenantID, channel ChannelName, conn Connection) error {
	key, err := h.key(tenant, channel)
	if err != nil {
		return err
	}

	unlock := h.locks.Lock(key)
	defer unlock()

	if !h.registry.Add(key, conn) {
		h.log.Debug("Connection already joined", "tenant", tenant, "channel", channel)
		return nil
	}

	welcome := SystemMessage(fmt.Sprintf("Connected to channel %q", channel))
	welcome.ID = uuid.New()
	welcome.Timestamp = h.now().UTC()

	replay := h.history.Recent(key, h.replayLimit)
	for _, msg := range append([]Message{welcome}, replay...) {
		if err := h.broadcaster.Deliver(ctx, conn, msg); err != nil {
			h.registry.Remove(key, conn)
			h.log.Warn("Dropping connection during replay", "tenant", tenant, "channel", channel, "error", err)
			return nil
		}
	}

	h.log.Info("Connection joined", "tenant", tenant, "channel", channel,
		"replayed", len(replay), "members", h.registry.Count(key))
	return nil
}

// Leave deregisters conn. It is safe at any time, including while a fanout to
// conn is in flight; unknown channels and non-members are ignored.
func (h *Hub) Leave(tenant TenantID, channel ChannelName, conn Connection) {
	key := Key{Tenant: tenant, Channel: channel}
	if h.registry.Remove(key, conn) {
		h.log.Info("Connection left", "tenant", tenant, "channel", channel, "members", h.registry.Count(key))
	}
}

// Publish stamps msg, appends it to the channel log and fans it out to every
// joined connection. Connections that fail delivery are deregistered. The
// stored message is returned even when no connection received it.
func (h *Hub) Publish(ctx context.Context, tenant TenantID, channel ChannelName, msg Message) (Message, error) {
	key, err := h.key(tenant, channel)
	if err != nil {
		return Message{}, err
	}
	if err := h.validateMessage(&msg); err != nil {
		return Message{}, err
	}

	unlock := h.locks.Lock(key)
	defer unlock()

	msg.ID = uuid.New()
	msg.Timestamp = h.now().UTC()
	if last := h.history.Stats(key).LastTimestamp; msg.Timestamp.Before(last) {
		msg.Timestamp = last
	}
	h.history.Append(key, msg)

	members := h.registry.Snapshot(key)
	failed := h.broadcaster.Fanout(ctx, members, msg)
	for _, conn := range failed {
		h.registry.Remove(key, conn)
	}
	if len(failed) > 0 {
		h.log.Warn("Removed connections after failed delivery", "tenant", tenant, "channel", channel,
			"failed", len(failed), "members", len(members))
	}

	return msg, nil
}

// BroadcastSystem publishes the same system notice to every channel of the
// tenant. A failing channel does not stop the others; all errors are joined.
func (h *Hub) BroadcastSystem(ctx context.Context, tenant TenantID, content string) error {
	var errs []error
	for _, channel := range h.catalog.List() {
		if _, err := h.Publish(ctx, tenant, channel, SystemMessage(content)); err != nil {
			errs = append(errs, fmt.Errorf("channel %q: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

// Recent returns up to limit of the newest messages of a channel, oldest
// first. A non-positive limit means DefaultRecentLimit.
func (h *Hub) Recent(tenant TenantID, channel ChannelName, limit int) ([]Message, error) {
	key, err := h.key(tenant, channel)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return h.history.Recent(key, limit), nil
}

// ActiveChannels returns the channels available to the tenant, which is the
// whole catalog.
func (h *Hub) ActiveChannels(_ TenantID) []ChannelName {
	return h.catalog.List()
}

func (h *Hub) ChannelStats(tenant TenantID) map[ChannelName]ChannelStats {
	stats := make(map[ChannelName]ChannelStats)
	for _, channel := range h.catalog.List() {
		key := Key{Tenant: tenant, Channel: channel}
		logStats := h.history.Stats(key)

		cs := ChannelStats{
			MessageCount:      logStats.Count,
			ActiveConnections: h.registry.Count(key),
		}
		if logStats.Count > 0 {
			last := logStats.LastTimestamp
			cs.LastActivity = &last
		}
		stats[channel] = cs
	}
	return stats
}

func (h *Hub) key(tenant TenantID, channel ChannelName) (Key, error) {
	if !h.catalog.Contains(channel) {
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return Key{Tenant: tenant, Channel: channel}, nil
}

func (h *Hub) validateMessage(msg *Message) error {
	if !msg.Kind.Valid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidMessage, msg.Kind)
	}
	rule := fmt.Sprintf("required,max=%d", h.maxContentLength)
	if err := h.validate.Var(strings.TrimSpace(msg.Content), rule); err != nil {
		return fmt.Errorf("%w: content: %v", ErrInvalidMessage, err)
	}

	switch {
	case msg.Kind == KindSystem:
		msg.Author = SystemAuthor
	case msg.Author == "":
		return fmt.Errorf("%w: missing author", ErrInvalidMessage)
	}
	return nil
}
