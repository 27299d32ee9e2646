package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownAgent is returned when an operation names an agent that does not exist.
	ErrUnknownAgent = errors.New("agent not found")

	// ErrAgentExists is returned when an agent name is already taken.
	ErrAgentExists = errors.New("agent name already exists")

	// ErrAborted is the cause of a turn cancelled via Abort.
	ErrAborted = errors.New("turn aborted")
)

// AuthenticationError reports that no usable backend credential is configured.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	if e.Reason == "" {
		return "not authenticated"
	}
	return "not authenticated: " + e.Reason
}

// BackendProcessError reports an external backend process that exited
// abnormally, timed out or produced no usable output.
type BackendProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *BackendProcessError) Error() string {
	switch {
	case e.Err != nil && e.Stderr != "":
		return fmt.Sprintf("backend process failed (exit %d): %v: %s", e.ExitCode, e.Err, e.Stderr)
	case e.Err != nil:
		return fmt.Sprintf("backend process failed (exit %d): %v", e.ExitCode, e.Err)
	default:
		return fmt.Sprintf("backend process failed (exit %d): %s", e.ExitCode, e.Stderr)
	}
}

func (e *BackendProcessError) Unwrap() error { return e.Err }

// ContextOverflowError reports that the backend rejected a prompt as too large.
type ContextOverflowError struct {
	Err error
}

func (e *ContextOverflowError) Error() string { return "context overflow: " + e.Err.Error() }

func (e *ContextOverflowError) Unwrap() error { return e.Err }

var overflowMarkers = []string{"context", "overflow", "too long", "token limit"}

// ClassifyBackendError wraps err in a ContextOverflowError when its message
// indicates the prompt exceeded the backend's context window. Cancellation
// and deadline errors are never treated as overflow.
func ClassifyBackendError(err error) error {
	if err == nil || IsContextOverflow(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range overflowMarkers {
		if strings.Contains(msg, marker) {
			return &ContextOverflowError{Err: err}
		}
	}

	return err
}

// IsContextOverflow reports whether err is (or wraps) a ContextOverflowError.
func IsContextOverflow(err error) bool {
	var target *ContextOverflowError
	return errors.As(err, &target)
}
