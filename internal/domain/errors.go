package domain

import (
	"errors"
	"fmt"
)

type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e NotFoundError) Error() string {
	switch {
	case e.Resource != "" && e.ID != "":
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	case e.Resource != "":
		return fmt.Sprintf("%s not found", e.Resource)
	default:
		return "not found"
	}
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

// DuplicateKeyError reports a unique index violation. OwnerID is the record
// that already holds Value, when it could be resolved.
type DuplicateKeyError struct {
	Collection string
	Field      string
	Value      string
	OwnerID    string
	Err        error
}

func (e DuplicateKeyError) Error() string {
	msg := fmt.Sprintf("%s: %s %q already registered", e.Collection, e.Field, e.Value)
	if e.OwnerID != "" {
		msg += fmt.Sprintf(" by record %s", e.OwnerID)
	}
	return msg
}

func (e DuplicateKeyError) Unwrap() error { return e.Err }

// StorageFullError means the durable store refused a write for lack of space.
type StorageFullError struct {
	Collection string
	Err        error
}

func (e StorageFullError) Error() string {
	if e.Collection == "" {
		return "durable storage is full (disk/database quota exhausted, not memory)"
	}
	return fmt.Sprintf("durable storage is full while writing %s (disk/database quota exhausted, not memory)", e.Collection)
}

func (e StorageFullError) Unwrap() error { return e.Err }

// BatchError wraps the failure that stopped a multi-record write after
// Written of Total records were committed.
type BatchError struct {
	Collection string
	Written    int
	Total      int
	Err        error
}

func (e BatchError) Error() string {
	return fmt.Sprintf("%s: wrote %d of %d records: %v", e.Collection, e.Written, e.Total, e.Err)
}

func (e BatchError) Unwrap() error { return e.Err }

type CapacityExceededError struct {
	GroupID  string
	Capacity int
	Active   int
}

func (e CapacityExceededError) Error() string {
	return fmt.Sprintf("group %s is full: %d of %d seats taken", e.GroupID, e.Active, e.Capacity)
}

// InvalidStateError is returned when an operation's precondition does not hold.
type InvalidStateError struct {
	Msg string
	Err error
}

func (e InvalidStateError) Error() string {
	if e.Msg == "" {
		return "invalid state"
	}
	return e.Msg
}

func (e InvalidStateError) Unwrap() error { return e.Err }

type InvalidPayloadError struct {
	Msg string
	Err error
}

func (e InvalidPayloadError) Error() string {
	if e.Msg == "" {
		return "invalid identity payload"
	}
	return "invalid identity payload: " + e.Msg
}

func (e InvalidPayloadError) Unwrap() error { return e.Err }

// MigrationError is logged and swallowed by the migration runner.
type MigrationError struct {
	Collection string
	Err        error
}

func (e MigrationError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("legacy migration failed: %v", e.Err)
	}
	return fmt.Sprintf("legacy migration of %s failed: %v", e.Collection, e.Err)
}

func (e MigrationError) Unwrap() error { return e.Err }

// InternalError carries a message safe to show callers; Err stays in the logs.
type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsDuplicateKey(err error) bool {
	var target DuplicateKeyError
	return errors.As(err, &target)
}

func IsStorageFull(err error) bool {
	var target StorageFullError
	return errors.As(err, &target)
}

func IsCapacityExceeded(err error) bool {
	var target CapacityExceededError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target InvalidStateError
	return errors.As(err, &target)
}

func IsInvalidPayload(err error) bool {
	var target InvalidPayloadError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}
