package model

import "errors"

// Common errors used across the application
var (
	// Registry errors
	ErrPlayerNotFound      = errors.New("player not found")
	ErrDuplicateConnection = errors.New("connection is already registered")

	// Transport errors
	ErrConnectionClosed = errors.New("connection is closed")
	ErrSendBufferFull   = errors.New("connection send buffer is full")
	ErrNotAccepting     = errors.New("server is not accepting connections")

	// Protocol errors
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event")
)
