package transport

import "context"

// DeliveryMode selects how a campaign target address is resolved.
type DeliveryMode string

const (
	// ModeDirect delivers to a single recipient address.
	ModeDirect DeliveryMode = "direct"
	// ModeBroadcast delivers to a broadcast alias (group/channel handle).
	ModeBroadcast DeliveryMode = "broadcast"
)

func (m DeliveryMode) Valid() bool {
	return m == ModeDirect || m == ModeBroadcast
}

// Target describes where a campaign's messages go.
type Target struct {
	Address string
	Mode    DeliveryMode
}

// AuthMaterial is the opaque credential blob handed to Connect.
// Its contents are adapter-specific (e.g. a bot token, a serialized session).
type AuthMaterial struct {
	Data []byte
}

// EventKind enumerates connection lifecycle signals.
type EventKind string

const (
	// EventOpened fires when the connection is established and authenticated.
	EventOpened EventKind = "opened"
	// EventClosed fires when the connection is gone. Permanent marks an
	// authentication rejection that must not be retried.
	EventClosed EventKind = "closed"
	// EventAuthChallenge fires when the provider requests an interactive
	// authentication step (e.g. pairing). Informational only.
	EventAuthChallenge EventKind = "auth_challenge"
)

// Event is a connection lifecycle signal delivered over Conn.Events().
type Event struct {
	Kind      EventKind
	Cause     string
	Permanent bool
}

// Conn is a live connection handle. It is owned by exactly one delivery
// engine at a time and replaced wholesale on reconnect.
type Conn interface {
	// Send delivers one message to the resolved recipient.
	// Failures are classified via SendError / ErrConnectionLost.
	Send(ctx context.Context, target Target, text string) error

	// Events yields connection lifecycle signals. The channel is closed
	// when the connection is torn down.
	Events() <-chan Event

	Close() error
}

// Client is the opaque chat-transport capability consumed by the delivery
// engine. Implementations live outside the core (see transport/telegram).
type Client interface {
	Connect(ctx context.Context, auth AuthMaterial) (Conn, error)
}
