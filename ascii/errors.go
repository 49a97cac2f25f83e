package ascii

import (
	"errors"
	"fmt"
)

// Error types for text protocol operations.
// They let the pipelining layer decide between failing a single command and
// abandoning the whole connection.

// ErrNoKeys is returned when a retrieval is requested without any key.
var ErrNoKeys = errors.New("one or more keys must be provided")

// InvalidKeyError is returned when a key fails validation.
// The command is rejected client-side, before anything is written.
//
// Common causes:
//   - Empty key
//   - Key exceeds 250 bytes
//   - Key contains whitespace or control characters
//
// Connection handling: Connection is still valid
type InvalidKeyError struct {
	Key     string
	Message string
}

func (e *InvalidKeyError) Error() string {
	return e.Message
}

// ShouldCloseConnection returns false - nothing reached the wire
func (e *InvalidKeyError) ShouldCloseConnection() bool {
	return false
}

// CommandError is a CLIENT_ERROR, SERVER_ERROR or ERROR reply to one command.
// The server rejected that command only; the response stream is still in sync.
//
// Connection handling: Connection can be REUSED
type CommandError struct {
	Verb    Verb
	Key     string // set only for storage commands
	Status  string // ErrorClientPrefix, ErrorServerPrefix or ErrorGeneric
	Message string
}

func (e *CommandError) Error() string {
	if e.Verb == VerbSet {
		return fmt.Sprintf("set failed for key %s: %s", e.Key, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Verb, e.Message)
}

// ShouldCloseConnection returns false - the reply was well-formed
func (e *CommandError) ShouldCloseConnection() bool {
	return false
}

// ParseError is returned when a response line cannot be interpreted in the
// parser's current state. Once this happens the client no longer knows where
// the next response starts.
//
// Common causes:
//   - Unknown status line
//   - Malformed VALUE header
//   - Data block longer than announced
//
// Connection handling: Connection must be ABANDONED
type ParseError struct {
	Line string
}

func (e *ParseError) Error() string {
	return "could not parse line: " + e.Line
}

// ShouldCloseConnection returns true - the stream is out of sync
func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps a transport failure (write error, peer closed the
// stream, client teardown).
//
// Connection handling: Connection is already broken
type ConnectionError struct {
	Op  string // write, read, close
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - the connection is unusable
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by all protocol error types.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err leaves the connection unusable.
//
// Returns true for:
//   - ParseError
//   - ConnectionError
//   - unknown error types
//
// Returns false for:
//   - CommandError
//   - InvalidKeyError
//   - nil
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	// Unknown error type - be conservative and close connection
	return true
}
