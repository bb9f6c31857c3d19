package service

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced file or folder does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports bad or missing caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DenyReason classifies a policy denial.
type DenyReason string

const (
	DenyForbidden   DenyReason = "forbidden"
	DenyBadPassword DenyReason = "bad_password"
	DenyExpired     DenyReason = "expired"
)

// AccessDeniedError is a policy denial. The upstream layer decides how much
// of the reason to reveal; only bad_password is meant to surface.
type AccessDeniedError struct {
	Reason DenyReason
}

func (e *AccessDeniedError) Error() string {
	return "access denied: " + string(e.Reason)
}

// StorageError wraps a backend I/O failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
