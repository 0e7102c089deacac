package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a ping failure.
type Kind string

const (
	KindDNS             Kind = "dns"
	KindConnection      Kind = "connection"
	KindTimeout         Kind = "timeout"
	KindInvalidResponse Kind = "invalid_response"
	KindIO              Kind = "io"
	KindJSON            Kind = "json"
	KindUTF8            Kind = "utf8"
	KindBase64          Kind = "base64"
	KindInvalidEdition  Kind = "invalid_edition"
	KindInvalidPort     Kind = "invalid_port"
	KindInvalidAddress  Kind = "invalid_address"
)

// Error is a classified ping failure. Op names the step that failed and
// Target the address being queried.
type Error struct {
	Kind   Kind
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s [%s]: %v", e.Op, e.Target, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s [%s]", e.Op, e.Target, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, target string, err error) *Error {
	return &Error{Kind: kind, Op: op, Target: target, Err: err}
}

// KindOf extracts the failure kind from an error chain. Nil and
// unclassified errors report an empty kind.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsTimeout reports whether err is a classified timeout.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// classifyNetError turns a network failure into a Timeout when a deadline
// expired, and into fallback otherwise.
func classifyNetError(op, target string, err error, fallback Kind) *Error {
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, op, target, err)
	case errors.As(err, &nerr) && nerr.Timeout():
		return newError(KindTimeout, op, target, err)
	default:
		return newError(fallback, op, target, err)
	}
}
