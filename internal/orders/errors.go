package orders

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine failures for callers and transports.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindValidation     Kind = "validation"
	KindInfrastructure Kind = "infrastructure"
)

// ErrorClassifier allows errors to declare their classification.
type ErrorClassifier interface {
	ErrorKind() string
}

// Error is a classified sentinel. Wrap it with fmt.Errorf("%w: ...") to add detail.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// ErrorKind implements ErrorClassifier.
func (e *Error) ErrorKind() string { return string(e.kind) }

var (
	ErrOrderNotFound      = &Error{kind: KindNotFound, msg: "order not found"}
	ErrAssignmentNotFound = &Error{kind: KindNotFound, msg: "assignment not found"}
	ErrFileNotFound       = &Error{kind: KindNotFound, msg: "file not found"}

	ErrAssignmentConflict = &Error{kind: KindConflict, msg: "assignment conflict"}
	ErrStaleState         = &Error{kind: KindConflict, msg: "stale state conflict"}
	ErrSweepInProgress    = &Error{kind: KindConflict, msg: "sweep already running"}

	ErrInvalidDeliverable   = &Error{kind: KindValidation, msg: "invalid deliverable"}
	ErrUnsupportedOrderType = &Error{kind: KindValidation, msg: "unsupported order type"}
	ErrInvalidTransition    = &Error{kind: KindValidation, msg: "illegal status transition"}
	ErrCancellationBlocked  = &Error{kind: KindValidation, msg: "order cannot be cancelled"}
	ErrInvalidRequest       = &Error{kind: KindValidation, msg: "invalid request"}
)

// KindOf returns the classification of err. Unclassified errors are
// treated as infrastructure failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return Kind(classifier.ErrorKind())
	}
	return KindInfrastructure
}

// Wrap tags err with a sentinel and a short operation description.
func Wrap(marker *Error, operation string, detail string) error {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		parts = append(parts, detail)
	}
	if len(parts) == 0 {
		return marker
	}
	return fmt.Errorf("%w: %s", marker, strings.Join(parts, ": "))
}
