package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubConn struct{ name string }

func (s *stubConn) Deliver(context.Context, Message) error { return nil }

func TestRegistry_Add_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	key := Key{Tenant: "t1", Channel: "general"}
	conn := &stubConn{name: "a"}

	req.True(registry.Add(key, conn))
	req.False(registry.Add(key, conn))

	req.Equal(1, registry.Count(key))
	req.Len(registry.Snapshot(key), 1)
}

func TestRegistry_Remove_Non_Member_Is_Noop(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	key := Key{Tenant: "t1", Channel: "general"}

	req.False(registry.Remove(key, &stubConn{}))

	registry.Add(key, &stubConn{name: "a"})
	req.False(registry.Remove(key, &stubConn{name: "b"}))
	req.Equal(1, registry.Count(key))
}

func TestRegistry_Prunes_Empty_Keys(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	key := Key{Tenant: "t1", Channel: "general"}
	conn := &stubConn{}

	// Given one member
	registry.Add(key, conn)
	req.Equal(1, registry.Keys())

	// When it leaves
	req.True(registry.Remove(key, conn))

	// Then the key is gone
	req.Zero(registry.Keys())
	req.Empty(registry.Snapshot(key))
}

func TestRegistry_Snapshot_Is_Detached(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	key := Key{Tenant: "t1", Channel: "general"}
	a, b := &stubConn{name: "a"}, &stubConn{name: "b"}
	registry.Add(key, a)
	registry.Add(key, b)

	snapshot := registry.Snapshot(key)
	registry.Remove(key, a)

	req.Len(snapshot, 2)
	req.ElementsMatch([]Connection{b}, registry.Snapshot(key))
}

func TestRegistry_Concurrent_Membership(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	key := Key{Tenant: "t1", Channel: "general"}

	conns := make([]*stubConn, 100)
	for i := range conns {
		conns[i] = &stubConn{}
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *stubConn) {
			defer wg.Done()
			registry.Add(key, c)
			_ = registry.Snapshot(key)
			registry.Add(key, c)
		}(conn)
	}
	wg.Wait()
	req.Equal(len(conns), registry.Count(key))

	for _, conn := range conns {
		wg.Add(1)
		go func(c *stubConn) {
			defer wg.Done()
			registry.Remove(key, c)
		}(conn)
	}
	wg.Wait()
	req.Zero(registry.Keys())
}
