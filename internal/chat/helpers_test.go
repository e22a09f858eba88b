package chat_test

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Tyrowin/ensemblechat/internal/chat"
	"github.com/mama165/sdk-go/logs"
)

var testLog = logs.GetLoggerFromLevel(slog.LevelDebug)

// recorder is a Connection that keeps every delivered message.
type recorder struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (r *recorder) Deliver(_ context.Context, msg chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) received() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Message(nil), r.msgs...)
}

func (r *recorder) contents() []string {
	msgs := r.received()
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

// blocker is a Connection that never returns until ctx is done.
type blocker struct{}

func (blocker) Deliver(ctx context.Context, _ chat.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

// stubborn is a Connection that ignores ctx for a while.
type stubborn struct{ release chan struct{} }

func (s *stubborn) Deliver(context.Context, chat.Message) error {
	<-s.release
	return nil
}

type panicker struct{}

func (*panicker) Deliver(context.Context, chat.Message) error { panic("boom") }
