// Package orchestrator adapts the text-generation collaborator into the
// classification and planning contracts of a turn.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/chatbuddy/internal/models"
)

// ParseError reports collaborator output that could not be parsed. The turn
// recovers from it with a default value.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: malformed collaborator output: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CallError reports a failed collaborator call. It is fatal for the turn.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: collaborator call failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// IsParseError reports whether err is recoverable malformed output.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// ErrorCode maps a fatal turn error to the code reported in response metadata.
func ErrorCode(err error) string {
	var ce *CallError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrorLLMTimeout
	case errors.As(err, &ce):
		return models.ErrorLLMFailed
	case IsParseError(err):
		return models.ErrorParseError
	default:
		return models.ErrorInternal
	}
}
