package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors shared by the scheduler, the journal and the adapters.
var (
	// ErrValidation indicates invalid configuration of a job or a request.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates that a requested job or resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates that the operation conflicts with current state,
	// e.g. stopping a scheduler that is not running.
	ErrConflict = errors.New("conflict")

	// ErrInternal indicates a bug or an unexpected internal failure.
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrDependencyFailure indicates that an external dependency failed
	// (database, Telegram API).
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind is a coarse classification of an error.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindValidation represents configuration and input errors
	KindValidation
	// KindNotFound represents missing resources
	KindNotFound
	// KindConflict represents state conflicts
	KindConflict
	// KindInternal represents internal failures
	KindInternal
	// KindTimeout represents timeouts
	KindTimeout
	// KindDependencyFailure represents failures of external systems
	KindDependencyFailure
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindInternal:
		return "Internal"
	case KindTimeout:
		return "Timeout"
	case KindDependencyFailure:
		return "DependencyFailure"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

var kindToSentinel = map[Kind]error{
	KindValidation:        ErrValidation,
	KindNotFound:          ErrNotFound,
	KindConflict:          ErrConflict,
	KindInternal:          ErrInternal,
	KindTimeout:           ErrTimeout,
	KindDependencyFailure: ErrDependencyFailure,
}

// kindPriorities is the order KindOf checks kinds in. Cancellation and
// timeouts win over everything else, internal errors lose.
var kindPriorities = []Kind{
	KindCanceled,
	KindTimeout,
	KindValidation,
	KindNotFound,
	KindConflict,
	KindDependencyFailure,
	KindInternal,
}

// KindOf returns the Kind of err by walking its chain in priority order.
// For errors.Join the first matching kind in priority order wins.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kindPriorities {
		switch k {
		case KindCanceled:
			if IsCanceled(err) {
				return k
			}
		case KindTimeout:
			if IsTimeout(err) {
				return k
			}
		default:
			if errors.Is(err, kindToSentinel[k]) {
				return k
			}
		}
	}
	return KindUnknown
}

// HasKind reports whether KindOf(err) == kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SentinelOf returns the sentinel error for kind, or nil for KindUnknown
// and KindCanceled.
func SentinelOf(kind Kind) error {
	return kindToSentinel[kind]
}

// MarkKind wraps err with the sentinel of kind, keeping err in the chain.
// It is idempotent and returns err unchanged for kinds without a sentinel.
// A nil err yields the bare sentinel.
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context.
// If err is nil, Wrap returns nil. An empty context returns err unchanged.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether err is a context cancellation.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is context.DeadlineExceeded, ErrTimeout or
// a net.Error timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a state conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsInternal reports whether err is an internal error.
func IsInternal(err error) bool { return errors.Is(err, ErrInternal) }

// IsDependencyFailure reports whether err is an external dependency failure.
func IsDependencyFailure(err error) bool { return errors.Is(err, ErrDependencyFailure) }
