// Package afderr classifies AFD errors into the taxonomy of spec section 7:
// transient network/protocol, transient local, structural corruption,
// programmer invariant, and fatal.
package afderr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for the purposes of propagation policy.
type Kind int

const (
	// KindTransientNetwork covers connection refused/timeout/unexpected
	// protocol reply: recoverable by retry after retry_interval.
	KindTransientNetwork Kind = iota
	// KindTransientLocal covers a stale mapping, fifo EAGAIN, fcntl
	// contention: recoverable by re-attach or re-enqueue.
	KindTransientLocal
	// KindStructural covers catalog/queue/message-file corruption:
	// the offending entry is dropped, never fabricated.
	KindStructural
	// KindInvariant covers a violated programmer invariant (negative
	// counter, disallowed state transition): clamp and continue.
	KindInvariant
	// KindFatal covers conditions that require the process to exit so
	// the supervisor can restart it.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient-network"
	case KindTransientLocal:
		return "transient-local"
	case KindStructural:
		return "structural"
	case KindInvariant:
		return "invariant"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps a cause with a Kind plus optional alias/job-id context so
// the single log surface (internal/afdlog) can format it consistently.
type Error struct {
	Kind  Kind
	Alias string
	JobID string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Alias != "" && e.JobID != "":
		return fmt.Sprintf("%s [host=%s job=%s]: %v", e.Kind, e.Alias, e.JobID, e.Err)
	case e.Alias != "":
		return fmt.Sprintf("%s [host=%s]: %v", e.Kind, e.Alias, e.Err)
	case e.JobID != "":
		return fmt.Sprintf("%s [job=%s]: %v", e.Kind, e.JobID, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given Kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf is New with a formatted message instead of a wrapped error.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithHost attaches host alias context.
func (e *Error) WithHost(alias string) *Error {
	e.Alias = alias
	return e
}

// WithJob attaches job-id context.
func (e *Error) WithJob(jobID string) *Error {
	e.JobID = jobID
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or KindFatal (fail safe) if err does
// not carry one of ours.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindFatal, false
}
