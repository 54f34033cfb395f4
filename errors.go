package gencache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity is returned when a namespace is configured with a
	// non-positive capacity.
	ErrInvalidCapacity = errors.New("gencache: capacity must be positive")
	// ErrNamespaceRequired is returned for an empty namespace.
	ErrNamespaceRequired = errors.New("gencache: namespace is required")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("gencache: store is closed")
	// ErrNilFactory is returned by GetOrAdd without a factory.
	ErrNilFactory = errors.New("gencache: nil factory")
	// ErrInvalidOptions wraps every validation failure reported by New.
	ErrInvalidOptions = errors.New("gencache: invalid options")
)

// DisposeError reports a payload whose release hook failed.
// The entry is considered removed regardless.
type DisposeError struct {
	Namespace string
	Key       string
	Err       error
}

func (e *DisposeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dispose %s/%q: unknown error", e.Namespace, e.Key)
	}
	return fmt.Sprintf("dispose %s/%q: %v", e.Namespace, e.Key, e.Err)
}

func (e *DisposeError) Unwrap() error { return e.Err }

// CapacityError reports a rejected capacity setting for a namespace.
type CapacityError struct {
	Namespace string
	Capacity  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("namespace %q: capacity %d: %v", e.Namespace, e.Capacity, ErrInvalidCapacity)
}

func (e *CapacityError) Unwrap() error { return ErrInvalidCapacity }
