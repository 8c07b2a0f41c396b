package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class separates failures talking to the upstream from failures
// understanding what it sent back.
type Class int

const (
	// ClassTransport covers network errors, timeouts and non-2xx statuses.
	ClassTransport Class = iota + 1
	// ClassPayload covers bodies that do not parse as a player list.
	ClassPayload
)

func (c Class) String() string {
	switch c {
	case ClassTransport:
		return "transport"
	case ClassPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Error is returned by every upstream operation.
type Error struct {
	Class    Class
	Op       string
	Category string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream.%s: %s error (%s): %v", e.Op, e.Class, e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "unexpected upstream status " + e.Status
}

// Transport wraps err as a transport failure of op.
func Transport(op string, err error) *Error {
	return &Error{Class: ClassTransport, Op: op, Category: Categorize(err), Err: err}
}

// Payload wraps err as a payload failure of op.
func Payload(op string, err error) *Error {
	return &Error{Class: ClassPayload, Op: op, Category: "payload", Err: err}
}

// IsTransport reports whether err is, or wraps, a transport failure.
func IsTransport(err error) bool {
	return hasClass(err, ClassTransport)
}

// IsPayload reports whether err is, or wraps, a payload failure.
func IsPayload(err error) bool {
	return hasClass(err, ClassPayload)
}

func hasClass(err error, c Class) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Class == c
}

// Categorize names the kind of transport failure for error responses.
func Categorize(err error) string {
	var statusErr *StatusError
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("status_%d", statusErr.Code)
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return "connection"
	default:
		return "request"
	}
}
