// Package server defines the JSON frames exchanged with WebSocket clients and
// utility helpers shared by the client and gateway logic.
package server

import (
	"errors"
	"strings"
	"time"

	"github.com/Tyrowin/ensemblechat/internal/chat"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

const frameTypeError = "error"

// inboundFrame is what a client sends to post a message.
type inboundFrame struct {
	Content string `json:"content"`
}

// outboundFrame is what a client receives: a chat message or an error.
type outboundFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Content   string `json:"content"`
	User      string `json:"user,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func messageFrame(channel chat.ChannelName, msg chat.Message) outboundFrame {
	return outboundFrame{
		Type:      string(msg.Kind),
		ID:        msg.ID.String(),
		Channel:   string(channel),
		Content:   msg.Content,
		User:      msg.Author,
		Timestamp: msg.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func errorFrame(content string) outboundFrame {
	return outboundFrame{Type: frameTypeError, Content: content}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
