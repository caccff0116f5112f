package channel

import "github.com/danmuck/msgpipe/internal/queue"

// MessageType is the constraint for application message enumerations. Values
// None (0) and Connect (1) are reserved by the channel.
type MessageType interface {
	~uint8 | ~uint16 | ~uint32
}

const (
	// None never travels on the wire. It marks "not awaiting anything".
	None = 0
	// Connect is sent by each side right after a session is established,
	// before any application message.
	Connect = 1
)

// Message is one decoded frame.
type Message[T MessageType] struct {
	Type    T
	Payload []byte
}

// Writer is the write capability handed to message handlers.
type Writer[T MessageType] interface {
	Write(msgType T, payload []byte) error
}

// Handler consumes one inbound message. Returning false ends the session.
type Handler[T MessageType] func(msg Message[T], w Writer[T]) bool

// State is the connection state machine position.
type State int32

const (
	StateIdle State = iota
	StateAwaitingConnection
	StateAwaitingOpen
	StateConnected
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConnection:
		return "awaiting_connection"
	case StateAwaitingOpen:
		return "awaiting_open"
	case StateConnected:
		return "connected"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Role names which side of the endpoint a channel drives.
type Role string

const (
	RoleNone     Role = ""
	RoleListener Role = "listener"
	RoleClient   Role = "client"
)

// Stats is a point-in-time view of one channel.
type Stats struct {
	Endpoint         string
	Role             Role
	State            State
	Connected        bool
	SessionID        string
	Sessions         uint64
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	Dropped          uint64
	Pending          int
	Queued           int
	QueuePolicy      queue.Policy
}

type endReason int32

const (
	endNone endReason = iota
	endHandler
	endPeerClosed
	endReadError
	endWriteError
	endStopped
)

func (r endReason) String() string {
	switch r {
	case endHandler:
		return "handler"
	case endPeerClosed:
		return "peer_closed"
	case endReadError:
		return "read_error"
	case endWriteError:
		return "write_error"
	case endStopped:
		return "stopped"
	default:
		return "none"
	}
}

func (r endReason) failed() bool {
	return r == endReadError || r == endWriteError
}
