package ws

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidJSON      = errors.New("failed to marshal message")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrAlreadyBound     = errors.New("connection already bound to a conversation")
	ErrNotAdmin         = errors.New("connection is not an administrator")
)
