// Package event holds values that are meant to be handled exactly once,
// such as error toasts shown to the user.
package event

import "sync"

type Event[T any] struct {
	mu      sync.Mutex
	content T
	handled bool
}

func New[T any](content T) *Event[T] {
	return &Event[T]{content: content}
}

// Get returns the content the first time it is called. Every later call
// reports false.
func (e *Event[T]) Get() (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handled {
		return zero, false
	}
	e.handled = true
	return e.content, true
}

// Peek returns the content without marking it handled.
func (e *Event[T]) Peek() T {
	if e == nil {
		var zero T
		return zero
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content
}

func (e *Event[T]) Handled() bool {
	if e == nil {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handled
}
