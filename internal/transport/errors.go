package transport

import (
	"errors"
	"fmt"
)

// ErrAuthRejected marks a permanent authentication rejection.
// The engine must not retry after observing it.
var ErrAuthRejected = errors.New("authentication rejected")

// ErrConnectionLost marks a send failure caused by the connection itself
// being unusable. The engine aborts the remaining queue for this connection
// attempt and lets the close event drive reconnection.
var ErrConnectionLost = errors.New("connection lost")

// SendError is a per-message delivery failure.
//
// ConnectionLost distinguishes "this message cannot be delivered" from
// "this connection cannot deliver anything anymore". The former is counted
// and skipped; the latter aborts the delivery loop.
type SendError struct {
	Reason         string
	ConnectionLost bool
	Err            error
}

func (e *SendError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("send failed: %s", e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("send failed: %v", e.Err)
	}
	return "send failed"
}

func (e *SendError) Unwrap() error {
	if e.ConnectionLost {
		return ErrConnectionLost
	}
	return e.Err
}

// IsConnectionLost reports whether err indicates the connection is unusable.
func IsConnectionLost(err error) bool {
	return errors.Is(err, ErrConnectionLost)
}

// IsAuthRejected reports whether err is a permanent authentication failure.
func IsAuthRejected(err error) bool {
	return errors.Is(err, ErrAuthRejected)
}
