package firestore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	conflictCodes    = []codes.Code{codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange}
	unavailableCodes = []codes.Code{codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded}
)

// Error carries the gRPC code of a failed Firestore call and satisfies the
// repositories classification interface.
type Error struct {
	op   string
	err  error
	code codes.Code
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool { return e != nil && e.code == codes.NotFound }

// IsConflict covers contention as well as Create on an existing document.
func (e *Error) IsConflict() bool { return e != nil && slices.Contains(conflictCodes, e.code) }

func (e *Error) IsUnavailable() bool { return e != nil && slices.Contains(unavailableCodes, e.code) }

// NotFound reports a document a query did not match.
func NotFound(op, what string) error {
	return &Error{op: op, err: fmt.Errorf("%s not found", what), code: codes.NotFound}
}

// Conflict reports a write that clashes with an existing document.
func Conflict(op, what string) error {
	return &Error{op: op, err: fmt.Errorf("%s already exists", what), code: codes.AlreadyExists}
}

type classified interface {
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// WrapError attaches op and the status code to err. Context errors and errors
// that are already classified are returned as is.
func WrapError(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	var c classified
	if errors.As(err, &c) {
		return err
	}
	return &Error{op: op, err: err, code: code}
}
