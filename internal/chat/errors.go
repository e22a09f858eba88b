package chat

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrInvalidMessage = errors.New("invalid message")
	ErrDeliveryFailed = errors.New("delivery failed")
)

// DeliveryError reports a failed attempt to hand a message to one connection.
// It matches ErrDeliveryFailed with errors.Is.
type DeliveryError struct {
	MessageID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver message %s: %v", e.MessageID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }
