// Package registry provides process-wide lazy singletons for the expensive
// components of the product cache: each component is constructed at most
// once, under its own lock, so a cold-start thundering herd never builds
// duplicate Redis connections or cache engines.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ConstructionError wraps a failure during lazy construction. The slot
// remains uninitialized so a later call can retry.
type ConstructionError struct {
	Component string
	Err       error
}

// Error implements the error interface.
func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construct %s: %v", e.Component, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// Slot holds at most one instance of T. The instance is published through
// a single atomic pointer, so the fast path is one lock-free load and is
// safe against a concurrent Reset; cold callers race for the lock and
// re-check under it (double-checked locking). A failed construction leaves
// the slot empty and retryable.
type Slot[T any] struct {
	name     string
	mu       sync.Mutex
	instance atomic.Pointer[T]
}

// NewSlot creates a named, empty slot.
func NewSlot[T any](name string) *Slot[T] {
	return &Slot[T]{name: name}
}

// Get returns the cached instance, constructing it on first use.
// Concurrent callers during construction block on the slot lock and then
// observe the instance built by the winner; construct runs at most once
// per successful initialization.
func (s *Slot[T]) Get(construct func() (T, error)) (T, error) {
	if p := s.instance.Load(); p != nil {
		return *p, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.instance.Load(); p != nil {
		return *p, nil
	}

	instance, err := construct()
	if err != nil {
		var zero T
		return zero, &ConstructionError{Component: s.name, Err: err}
	}

	s.instance.Store(&instance)
	return instance, nil
}

// Peek returns the instance without constructing, and whether it exists.
func (s *Slot[T]) Peek() (T, bool) {
	if p := s.instance.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Reset drops the instance, invoking closer first when one is given.
// The next Get constructs a fresh instance.
func (s *Slot[T]) Reset(closer func(T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.instance.Load()
	if p == nil {
		return nil
	}

	var err error
	if closer != nil {
		err = closer(*p)
	}

	s.instance.Store(nil)
	return err
}
