package chat

import "sync"

// DefaultHistoryCapacity is the number of messages kept per channel.
const DefaultHistoryCapacity = 1000

// MessageLog keeps the most recent messages of every (tenant, channel) key.
// Each key holds at most capacity messages; older ones are evicted from the
// head in publish order. Keys are independent: appending to one never waits
// on another.
type MessageLog struct {
	capacity int

	mu    sync.RWMutex
	rings map[Key]*ring
}

// NewMessageLog creates an empty log. A non-positive capacity falls back to
// DefaultHistoryCapacity.
func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &MessageLog{capacity: capacity, rings: make(map[Key]*ring)}
}

func (l *MessageLog) Capacity() int { return l.capacity }

// Append adds msg at the tail of the key's log, evicting the oldest entry
// once the log is full.
func (l *MessageLog) Append(key Key, msg Message) {
	l.ring(key, true).push(msg, l.capacity)
}

// Recent returns up to limit of the newest messages, oldest first. The
// returned slice is a copy.
func (l *MessageLog) Recent(key Key, limit int) []Message {
	r := l.ring(key, false)
	if r == nil || limit <= 0 {
		return []Message{}
	}
	return r.tail(limit)
}

func (l *MessageLog) Stats(key Key) LogStats {
	r := l.ring(key, false)
	if r == nil {
		return LogStats{}
	}
	return r.stats()
}

func (l *MessageLog) ring(key Key, create bool) *ring {
	l.mu.RLock()
	r, ok := l.rings[key]
	l.mu.RUnlock()
	if ok || !create {
		return r
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok = l.rings[key]; !ok {
		r = &ring{}
		l.rings[key] = r
	}
	return r
}

// ring grows up to capacity, then overwrites in place. head is the index of
// the oldest entry once the buffer is full and stays 0 before that.
type ring struct {
	mu   sync.Mutex
	buf  []Message
	head int
}

func (r *ring) push(msg Message, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) < capacity {
		r.buf = append(r.buf, msg)
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) tail(limit int) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.buf)
	if limit > n {
		limit = n
	}
	out := make([]Message, 0, limit)
	for i := n - limit; i < n; i++ {
		out = append(out, r.buf[(r.head+i)%n])
	}
	return out
}

func (r *ring) stats() LogStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.buf)
	if n == 0 {
		return LogStats{}
	}
	return LogStats{Count: n, LastTimestamp: r.buf[(r.head+n-1)%n].Timestamp}
}
