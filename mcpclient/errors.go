package mcpclient

import (
	"fmt"
)

// ConnectionError is returned when a session cannot be established.
// The session is closed when this error is returned.
type ConnectionError struct {
	Provider  string
	Transport TransportKind
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to server %s (%s): %v", e.Provider, e.Transport, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NotInitializedError is returned when an operation requires a Ready session.
type NotInitializedError struct {
	Provider string
	State    State
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("server %s not initialized (state: %s)", e.Provider, e.State)
}

// ToolExecutionError is returned when a tool call failed on every attempt.
type ToolExecutionError struct {
	Provider string
	Tool     string
	Attempts int
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s on server %s failed after %d attempt(s): %v", e.Tool, e.Provider, e.Attempts, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// MalformedArgumentsError is returned when tool call arguments are not a JSON object.
type MalformedArgumentsError struct {
	Tool string
	Err  error
}

func (e *MalformedArgumentsError) Error() string {
	return fmt.Sprintf("malformed arguments for tool %s: %v", e.Tool, e.Err)
}

func (e *MalformedArgumentsError) Unwrap() error {
	return e.Err
}

// OwnerNotFoundError is returned when no session provides the tool.
type OwnerNotFoundError struct {
	Tool string
}

func (e *OwnerNotFoundError) Error() string {
	return "No server found with tool: " + e.Tool
}
