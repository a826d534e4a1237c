package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide between retrying,
// recording and aborting.
type ErrorKind string

const (
	KindUnknown          ErrorKind = ""
	KindConfiguration    ErrorKind = "configuration"
	KindQueryLoad        ErrorKind = "query_load"
	KindReadinessTimeout ErrorKind = "readiness_timeout"
	KindQueryExecution   ErrorKind = "query_execution"
	KindOrchestration    ErrorKind = "orchestration"
)

// Error is a classified error
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and the failing operation
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string
func Errorf(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether another attempt may succeed
func IsRetryable(err error) bool {
	return IsKind(err, KindQueryExecution)
}
