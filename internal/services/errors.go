package services

import (
	"errors"
	"fmt"
)

// ErrorKind distinguishes the ways an upload run can fail.
type ErrorKind string

const (
	KindUnauthenticated      ErrorKind = "Unauthenticated"
	KindUnsupportedMediaType ErrorKind = "UnsupportedMediaType"
	KindStorageFailure       ErrorKind = "StorageFailure"
	KindExtractionFailure    ErrorKind = "ExtractionFailure"
	KindMalformedExtraction  ErrorKind = "MalformedExtractionResult"
	KindPersistenceFailure   ErrorKind = "PersistenceFailure"
	KindRunConflict          ErrorKind = "RunConflict"
)

// ProcessError is the single failure value a run resolves with.
type ProcessError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func newProcessError(kind ErrorKind, message string, err error) *ProcessError {
	return &ProcessError{Kind: kind, Message: message, Err: err}
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried by err, or "" when err is not a
// ProcessError.
func KindOf(err error) ErrorKind {
	var perr *ProcessError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}
