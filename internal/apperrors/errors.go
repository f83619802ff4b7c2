// Package apperrors defines the error taxonomy shared by the portal packages.
//
// Every failure that reaches a caller is one of these types, so handlers can
// pick a status code and message without inspecting strings.
package apperrors

import (
	"errors"
	"fmt"
)

// NetworkError is a transport failure or timeout talking to a remote service.
type NetworkError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

func NewTimeoutError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Timeout: true, Err: err}
}

// RemoteError means the endpoint answered but reported a failure, either with
// an error envelope or a non-2xx status.
type RemoteError struct {
	Op         string
	Message    string
	StatusCode int
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: remote error (HTTP %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: remote error: %s", e.Op, e.Message)
}

func NewRemoteError(op, message string) *RemoteError {
	return &RemoteError{Op: op, Message: message}
}

// ValidationError is raised before any network call when input is unusable.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// MalformedRecordError marks a single raw row the normalizer could not read.
// It is recovered inside the batch and never reaches handlers.
type MalformedRecordError struct {
	Index  int
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed record at index %d: %s: %v", e.Index, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed record at index %d: %s", e.Index, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

func NewMalformedRecordError(index int, reason string, err error) *MalformedRecordError {
	return &MalformedRecordError{Index: index, Reason: reason, Err: err}
}

// NoDataError reports a reload that produced zero usable records. It is kept
// apart from an empty filter result so operators can spot a broken feed.
type NoDataError struct {
	RawCount int
}

func (e *NoDataError) Error() string {
	if e.RawCount > 0 {
		return fmt.Sprintf("no data received: all %d upstream records were unusable", e.RawCount)
	}
	return "no data received from server"
}

// BusyError rejects an operation while an identical one is still in flight.
type BusyError struct {
	Op string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s already in progress", e.Op)
}

func NewBusyError(op string) *BusyError {
	return &BusyError{Op: op}
}

func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

func IsTimeout(err error) bool {
	var target *NetworkError
	return errors.As(err, &target) && target.Timeout
}

func IsRemote(err error) bool {
	var target *RemoteError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsMalformedRecord(err error) bool {
	var target *MalformedRecordError
	return errors.As(err, &target)
}

func IsNoData(err error) bool {
	var target *NoDataError
	return errors.As(err, &target)
}

func IsBusy(err error) bool {
	var target *BusyError
	return errors.As(err, &target)
}
