package airlock

import (
	"errors"
	"fmt"
)

var (
	// ErrLoginFailed indicates the ship rejected the +code password.
	ErrLoginFailed = errors.New("login rejected by ship")
	// ErrChannelDeleted indicates an operation on a channel after Delete.
	ErrChannelDeleted = errors.New("channel deleted")
	// ErrStreamClosed indicates the channel's event stream has terminated and
	// its queue has been fully drained. The channel will deliver no further
	// events; the caller should tear it down and open a fresh one.
	ErrStreamClosed = errors.New("event stream closed")
)

// StatusError reports a non-success HTTP status from the ship. The request
// itself completed; the ship refused it.
type StatusError struct {
	Op   string // "poke", "subscribe", "scry", ...
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: ship returned status %d", e.Op, e.Code)
}

// NotStreamError indicates the event stream endpoint answered with a
// content type other than text/event-stream.
type NotStreamError struct {
	ContentType string
}

func (e *NotStreamError) Error() string {
	return fmt.Sprintf("expected text/event-stream, got %q", e.ContentType)
}
