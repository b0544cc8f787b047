package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// Kind is the classification of a failed provider call.
type Kind int

const (
	// KindFatal is anything not covered below, including exhausted retries.
	KindFatal Kind = iota
	// KindNotFound means the resource is absent.
	KindNotFound
	// KindConflict means the resource already exists.
	KindConflict
	// KindUnprocessable means a precondition is unmet and needs remediation.
	KindUnprocessable
	// KindTransient covers network failures, timeouts and 5xx responses.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnprocessable:
		return "unprocessable"
	case KindTransient:
		return "transient"
	case KindNone:
		return "none"
	default:
		return "fatal"
	}
}

// StatusError is returned by providers for a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// Error is the classified failure of one logical operation.
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Attempts   int
	exhausted  bool
	Err        error
}

func (e *Error) Error() string {
	if e.exhausted {
		return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Exhausted reports whether the error is the result of running out of
// attempts on transient failures.
func (e *Error) Exhausted() bool { return e.exhausted }

// Classify maps a raw provider error to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return kindForStatus(serr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindTransient
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return KindTransient
	}
	return KindFatal
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusConflict:
		return KindConflict
	case code == http.StatusUnprocessableEntity:
		return KindUnprocessable
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}

// KindNone is what KindOf reports for a nil error.
const KindNone Kind = -1

// KindOf returns the Kind carried by err, or KindNone for a nil error, so
// callers can switch on the outcome of a call in one place.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	return Classify(err)
}

// IsNotFound reports whether err is a KindNotFound failure.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

func statusOf(err error) int {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode
	}
	return 0
}

func wrap(op string, attempts int, err error) *Error {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr
	}
	return &Error{Op: op, Kind: Classify(err), StatusCode: statusOf(err), Attempts: attempts, Err: err}
}

// Exhausted builds the Fatal error reported when a bounded retry loop runs
// out of attempts.
func Exhausted(op string, attempts int, last error) *Error {
	return &Error{Op: op, Kind: KindFatal, StatusCode: statusOf(last), Attempts: attempts, exhausted: true, Err: last}
}

// Fatal reclassifies err as a Fatal failure of op without marking it
// exhausted. Call sites with no remediation for a kind use it so callers
// never see a kind they are expected to act on.
func Fatal(op string, err error) *Error {
	attempts := 1
	var rerr *Error
	if errors.As(err, &rerr) {
		attempts = rerr.Attempts
		err = rerr.Err
	}
	return &Error{Op: op, Kind: KindFatal, StatusCode: statusOf(err), Attempts: attempts, Err: err}
}
