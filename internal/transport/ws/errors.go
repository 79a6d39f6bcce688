package ws

import "errors"

var (
	// ErrHandshakeTimeout caps how long an upgrade may take.
	ErrHandshakeTimeout = errors.New("gateway handshake timed out")
	// ErrServerShutdown is the close reason handed to sessions when the
	// gateway stops.
	ErrServerShutdown = errors.New("gateway shutting down")
	// ErrClientGone is the close reason when the client ended the
	// connection itself.
	ErrClientGone = errors.New("client disconnected")
)
