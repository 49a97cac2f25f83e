package mcpipe

import (
	"errors"
	"fmt"
)

var (
	// ErrCascadedFailure is given to every command that was queued behind a
	// command whose response corrupted the stream. The originating error is
	// carried only by the future of the command at the head of the queue.
	ErrCascadedFailure = errors.New("cascaded failure on connection; see an earlier future for the originating error")

	// ErrNoUsableConnections is returned when every connection of the pool
	// has been marked bad.
	ErrNoUsableConnections = errors.New("mcpipe: no usable connections")

	// ErrHandlerUnusable is returned when submitting on a handler that was
	// marked bad.
	ErrHandlerUnusable = errors.New("mcpipe: connection is unusable")

	// ErrClientClosed is returned by operations on a closed client.
	ErrClientClosed = errors.New("mcpipe: client closed")
)

// ConfigError reports an invalid connection option.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
