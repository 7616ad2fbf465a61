package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout after 5 seconds")
	ErrInvalidJSON      = errors.New("invalid JSON data")
	ErrAlreadyBound     = errors.New("connection is already bound to an identity")
	ErrInvalidIdentity  = errors.New("identity must carry a user id")
)

// Registry-related errors
var (
	ErrNilConnection              = errors.New("connection cannot be nil")
	ErrConnectionNotAuthenticated = errors.New("connection must be authenticated before registration")
)

// Handler-related errors
var (
	ErrJoinExpected = errors.New("first frame must be a join")
	ErrJoinTimeout  = errors.New("no join frame before the deadline")
)
