package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultDeliveryTimeout bounds a single delivery attempt.
const DefaultDeliveryTimeout = 2 * time.Second

// Broadcaster hands messages to connections. Every attempt is bounded by a
// timeout, and during a fanout attempts run concurrently, so a stalled peer
// only ever costs the others one timeout.
type Broadcaster struct {
	timeout time.Duration
	log     *slog.Logger
}

func NewBroadcaster(log *slog.Logger, timeout time.Duration) *Broadcaster {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &Broadcaster{timeout: timeout, log: log}
}

// Fanout delivers msg to every connection and returns the ones that failed.
// It returns once each attempt has finished or timed out.
func (b *Broadcaster) Fanout(ctx context.Context, conns []Connection, msg Message) []Connection {
	if len(conns) == 0 {
		return nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []Connection
	)
	for _, conn := range conns {
		wg.Add(1)
		go func(conn Connection) {
			defer wg.Done()
			if err := b.Deliver(ctx, conn, msg); err != nil {
				b.log.Debug("Fanout delivery failed", "message", msg.ID, "error", err)
				mu.Lock()
				failed = append(failed, conn)
				mu.Unlock()
			}
		}(conn)
	}
	wg.Wait()
	return failed
}

// Deliver makes one time-bounded attempt to hand msg to conn. A transport
// that panics or ignores the deadline is reported as a *DeliveryError.
func (b *Broadcaster) Deliver(ctx context.Context, conn Connection, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("connection panicked: %v", r)
			}
		}()
		done <- conn.Deliver(ctx, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &DeliveryError{MessageID: msg.ID.String(), Err: err}
		}
		return nil
	case <-ctx.Done():
		return &DeliveryError{MessageID: msg.ID.String(), Err: ctx.Err()}
	}
}
