package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrTransient    = errors.New("transient failure")
	ErrTimeout      = errors.New("timeout")
	ErrFatal        = errors.New("fatal failure")
	ErrExternalTool = errors.New("external tool error")
)

// ErrorKind is the caller-facing classification of a failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindForbidden  ErrorKind = "forbidden"
	KindTransient  ErrorKind = "transient"
	KindFatal      ErrorKind = "fatal"
)

var markers = []error{
	ErrValidation,
	ErrNotFound,
	ErrConflict,
	ErrForbidden,
	ErrTransient,
	ErrTimeout,
	ErrFatal,
	ErrExternalTool,
}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return ErrValidation.Error() + ": " + e.Message
	}
	return ErrValidation.Error() + ": " + e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid returns a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Field returns the offending field of a validation failure, if any.
func Field(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Field
	}
	return ""
}

// Kind classifies err. Deadline expiry counts as transient; anything
// unrecognised is fatal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrFatal), errors.Is(err, ErrExternalTool):
		return KindFatal
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindFatal
	}
}

// IsRetryable reports whether the pipeline should requeue after err.
func IsRetryable(err error) bool {
	return Kind(err) == KindTransient
}

// ErrorDetails is the log- and record-friendly breakdown of an error.
type ErrorDetails struct {
	Kind    ErrorKind
	Message string
	Field   string
}

// Details extracts the classification and a human-readable message with the
// leading marker text removed.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	return ErrorDetails{
		Kind:    Kind(err),
		Message: trimMarker(err.Error()),
		Field:   Field(err),
	}
}

func trimMarker(msg string) string {
	for _, marker := range markers {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
