// Package errors defines the stable error codes codekb reports at its boundaries.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable identifier for a failure mode.
type ErrorCode string

const (
	// WorkspaceUnreadable means the workspace root itself cannot be enumerated.
	WorkspaceUnreadable ErrorCode = "WORKSPACE_UNREADABLE"
	// IndexMissing means no graph has been built for the workspace yet.
	IndexMissing ErrorCode = "INDEX_MISSING"
	// IndexStale means the persisted graph no longer matches the workspace.
	IndexStale ErrorCode = "INDEX_STALE"
	// RebuildInProgress means another rebuild holds the workspace lock.
	RebuildInProgress ErrorCode = "REBUILD_IN_PROGRESS"
	// RebuildCancelled means a rebuild was cancelled and its partial work discarded.
	RebuildCancelled ErrorCode = "REBUILD_CANCELLED"
	// IndexDivergence means the forward and reverse import indexes disagree.
	IndexDivergence ErrorCode = "INDEX_DIVERGENCE"
	// ConfigInvalid means the configuration failed validation.
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// InternalError indicates an unexpected error.
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action.
type FixActionType string

const (
	// RunCommand suggests running a command.
	RunCommand FixActionType = "run-command"
	// EditConfig suggests changing a configuration key.
	EditConfig FixActionType = "edit-config"
)

// FixAction represents a suggested fix for an error.
type FixAction struct {
	Type        FixActionType `json:"type" yaml:"type"`
	Command     string        `json:"command,omitempty" yaml:"command,omitempty"`
	Key         string        `json:"key,omitempty" yaml:"key,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// CodedError carries a stable code, a message and suggested fixes.
type CodedError struct {
	Code           ErrorCode   `json:"code" yaml:"code"`
	Message        string      `json:"message" yaml:"message"`
	Details        interface{} `json:"details,omitempty" yaml:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty" yaml:"suggestedFixes,omitempty"`
	cause          error
}

// New creates a CodedError with the default fixes for code.
func New(code ErrorCode, message string, cause error) *CodedError {
	return &CodedError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Newf creates a CodedError with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *CodedError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *CodedError) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured details to the error.
func (e *CodedError) WithDetails(details interface{}) *CodedError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first CodedError in err's chain, or InternalError.
func CodeOf(err error) ErrorCode {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return InternalError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var ce *CodedError
	return errors.As(err, &ce) && ce.Code == code
}

// ErrorActions maps error codes to suggested fix actions.
var ErrorActions = map[ErrorCode][]FixAction{
	IndexMissing: {
		{Type: RunCommand, Command: "codekb index", Description: "Build the dependency graph"},
	},
	IndexStale: {
		{Type: RunCommand, Command: "codekb index", Description: "Apply pending changes incrementally"},
		{Type: RunCommand, Command: "codekb index --force", Description: "Rebuild the whole graph"},
	},
	RebuildInProgress: {
		{Type: RunCommand, Command: "codekb status", Description: "Wait for the running rebuild to finish"},
	},
	ConfigInvalid: {
		{Type: EditConfig, Key: ".codekb/config.json", Description: "Fix the reported configuration field"},
	},
	IndexDivergence: {
		{Type: RunCommand, Command: "codekb index --force", Description: "Rebuild the graph from scratch"},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code.
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
