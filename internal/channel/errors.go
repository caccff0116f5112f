package channel

import "errors"

var (
	ErrInvalidEndpoint = errors.New("channel: invalid endpoint")
	ErrConnectTimeout  = errors.New("channel: connect timeout")
	ErrStopped         = errors.New("channel: stopped")
	ErrRead            = errors.New("channel: read error")
	ErrWrite           = errors.New("channel: write error")
	ErrReservedType    = errors.New("channel: reserved message type")
	ErrFlushTimeout    = errors.New("channel: flush wait timeout")
	ErrSessionClosed   = errors.New("channel: session closed")
	ErrAlreadyRunning  = errors.New("channel: listen/connect already running")
	ErrNilHandler      = errors.New("channel: nil message handler")
)
