package chat

import (
	"sync"

	"github.com/samber/lo"
)

type connSet map[Connection]struct{}

// Registry tracks the connections currently joined to each (tenant, channel).
// Sets for a key are created on first Add and removed as soon as they become
// empty, so idle channels cost nothing.
type Registry struct {
	mu      sync.RWMutex
	members map[Key]connSet
}

func NewRegistry() *Registry {
	return &Registry{members: make(map[Key]connSet)}
}

// Add inserts conn into the key's set. It reports false when conn was
// already a member.
func (r *Registry) Add(key Key, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[key]
	if !ok {
		set = make(connSet)
		r.members[key] = set
	}
	if _, exists := set[conn]; exists {
		return false
	}
	set[conn] = struct{}{}
	return true
}

// Remove deletes conn from the key's set. Removing a non-member is a no-op
// reported as false.
func (r *Registry) Remove(key Key, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[key]
	if !ok {
		return false
	}
	if _, exists := set[conn]; !exists {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.members, key)
	}
	return true
}

// Snapshot returns a copy of the key's members, safe to iterate while the
// registry keeps changing.
func (r *Registry) Snapshot(key Key) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.members[key])
}

func (r *Registry) Contains(key Key, conn Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[key][conn]
	return ok
}

func (r *Registry) Count(key Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members[key])
}

// Keys returns the number of keys with at least one member.
func (r *Registry) Keys() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members)
}
