package server

import "errors"

var (
	// ErrInvalidMessageFormat is returned for an inbound payload that is not
	// a well-formed chat submission. The message is dropped.
	ErrInvalidMessageFormat = errors.New("invalid message format")
	// ErrDuplicateConnectionId means the transport handed the relay a
	// connection id that is already registered.
	ErrDuplicateConnectionId = errors.New("duplicate connection id")
	// ErrSendFailure marks a delivery that could not be queued for a peer.
	ErrSendFailure  = errors.New("send failure")
	ErrRelayStopped = errors.New("relay stopped")
)
