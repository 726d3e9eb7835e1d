package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks caller input that violates a precondition.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStorage marks a local read/write failure, including corrupt files.
	ErrStorage = errors.New("storage error")
	// ErrBackend marks a failed call to the remote search service.
	ErrBackend = errors.New("backend error")
)

// StorageError describes a failed local persistence operation.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// BackendError describes a failed remote call. Transient is true when a
// retry may succeed (network, timeout, quota); false means the request or
// configuration is wrong.
type BackendError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *BackendError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("backend: %s (%s): %v", e.Op, kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// IsTransient reports whether err wraps a BackendError that may succeed on retry.
func IsTransient(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Transient
}
