package chat

import (
	"time"

	"github.com/google/uuid"
)

type (
	TenantID    string
	ChannelName string
)

// Key addresses one channel of one tenant. Tenant A's "general" and tenant
// B's "general" are different keys and never share state.
type Key struct {
	Tenant  TenantID
	Channel ChannelName
}

// Kind tells system notices apart from user messages.
type Kind string

const (
	KindSystem Kind = "system"
	KindUser   Kind = "user"
)

// SystemAuthor is the author of every system message.
const SystemAuthor = "System"

func (k Kind) Valid() bool {
	return k == KindSystem || k == KindUser
}

// Message is an immutable chat record. ID and Timestamp are assigned by the
// hub when the message is published.
type Message struct {
	ID        uuid.UUID
	Kind      Kind
	Content   string
	Author    string
	Timestamp time.Time
}

// SystemMessage builds an unpublished system notice.
func SystemMessage(content string) Message {
	return Message{Kind: KindSystem, Content: content, Author: SystemAuthor}
}

// UserMessage builds an unpublished message authored by a user.
func UserMessage(author, content string) Message {
	return Message{Kind: KindUser, Content: content, Author: author}
}

// LogStats is the read-only aggregate of one channel log.
type LogStats struct {
	Count         int
	LastTimestamp time.Time
}

// ChannelStats is what operational tooling sees for one channel.
// LastActivity is nil while the channel has no messages.
type ChannelStats struct {
	MessageCount      int
	ActiveConnections int
	LastActivity      *time.Time
}
