// Package generation talks to an OpenAI-compatible chat completion endpoint
// and classifies its failures.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed completion.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network"
	KindQuota       ErrorKind = "quota"
	KindUpstream    ErrorKind = "upstream"
	KindCircuitOpen ErrorKind = "circuit_open"
	KindEmpty       ErrorKind = "empty"
)

// Error is returned by every client in this package.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind of err. Context deadlines map to KindTimeout and
// anything unclassified to KindNetwork.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

func newError(kind ErrorKind, status int, err error) *Error {
	return &Error{Kind: kind, StatusCode: status, Err: err}
}
