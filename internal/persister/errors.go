package persister

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes persister errors.
type ErrorCode string

const (
	// ErrCodeSaveFailed indicates the Saver returned an error. Not retried here.
	ErrCodeSaveFailed ErrorCode = "SAVE_FAILED"

	// ErrCodeRunCancelled indicates the context ended while waiting for the run lock.
	ErrCodeRunCancelled ErrorCode = "RUN_CANCELLED"

	// ErrCodeEnlistRejected indicates the Runner refused the instance. It is
	// reported through logs only; producers never see it.
	ErrCodeEnlistRejected ErrorCode = "ENLIST_REJECTED"
)

// Error is returned by Run and Touch.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// PersisterID identifies the instance that failed.
	PersisterID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: persister %s: %v", e.Code, e.PersisterID, e.Err)
	}
	return fmt.Sprintf("%s: persister %s", e.Code, e.PersisterID)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsSaveError reports whether err is a save failure.
// Uses errors.As to handle wrapped errors.
func IsSaveError(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeSaveFailed
	}
	return false
}

// IsCancelled reports whether err is a run abandoned because its context ended.
func IsCancelled(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeRunCancelled
	}
	return false
}

func newSaveError(id string, err error) *Error {
	return &Error{Code: ErrCodeSaveFailed, PersisterID: id, Err: err}
}

func newCancelledError(id string, err error) *Error {
	return &Error{Code: ErrCodeRunCancelled, PersisterID: id, Err: err}
}

func newEnlistError(id string) *Error {
	return &Error{Code: ErrCodeEnlistRejected, PersisterID: id, Err: errors.New("runner refused enlistment")}
}
