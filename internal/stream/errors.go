package stream

import (
	"errors"
	"fmt"
)

// ErrMissingRecordID is returned when a stream reaches done but no durable
// record id was announced in the start frame or the done payload. Callers
// must be able to distinguish this from success.
var ErrMissingRecordID = errors.New("task completed but no durable id was returned")

// ErrRecordNotFound is returned by reconciliation when the backend has no
// record for the id a completed stream announced.
var ErrRecordNotFound = errors.New("record not found")

// ServerError carries the message of an error-typed frame reported by the
// backend task.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// TransportError wraps a connection-level failure: network drop, non-2xx
// response, or an abrupt close without a terminal frame.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "connection error"
	}
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
