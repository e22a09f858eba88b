//go:generate go run go.uber.org/mock/mockgen -source=connection.go -destination=../mocks/mock_connection.go -package=mocks
package chat

import "context"

// Connection is a transport endpoint able to receive messages of one channel.
//
// The hub only keeps a reference while the connection is joined and never
// closes it. Implementations are used as set members, so they must be
// comparable (typically a pointer). Deliver should honour ctx: the hub bounds
// every attempt with a timeout and treats an expired attempt as a failure.
type Connection interface {
	Deliver(ctx context.Context, msg Message) error
}
