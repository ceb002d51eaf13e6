// services/errors.go
package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies arbitration failures. Every kind except KindInternal is
// caused by the request itself and is returned to the caller unchanged.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindModelMismatch ErrorKind = "model_mismatch"
	KindConflict      ErrorKind = "conflict"
	KindInternal      ErrorKind = "internal"
)

// Sentinels for errors.Is checks against an *ArbitrationError of the same kind.
var (
	ErrValidation    = &ArbitrationError{Kind: KindValidation}
	ErrNotFound      = &ArbitrationError{Kind: KindNotFound}
	ErrModelMismatch = &ArbitrationError{Kind: KindModelMismatch}
	ErrConflict      = &ArbitrationError{Kind: KindConflict}
	ErrInternal      = &ArbitrationError{Kind: KindInternal}
)

type ArbitrationError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *ArbitrationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArbitrationError) Unwrap() error { return e.Err }

// Is matches any *ArbitrationError of the same kind, so errors.Is(err, ErrConflict) works.
func (e *ArbitrationError) Is(target error) bool {
	var t *ArbitrationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, defaulting to KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var ae *ArbitrationError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func validationError(op, format string, args ...interface{}) error {
	return &ArbitrationError{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(op, bountyID string) error {
	return &ArbitrationError{Kind: KindNotFound, Op: op, Message: fmt.Sprintf("bounty %s not found", bountyID)}
}

func modelMismatchError(op, bountyID string, want, got interface{}) error {
	return &ArbitrationError{
		Kind:    KindModelMismatch,
		Op:      op,
		Message: fmt.Sprintf("bounty %s uses claiming model %v, operation requires %v", bountyID, got, want),
	}
}

func conflictError(op, format string, args ...interface{}) error {
	return &ArbitrationError{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

func internalError(op string, err error) error {
	return &ArbitrationError{Kind: KindInternal, Op: op, Message: "store failure", Err: err}
}
