package events

import (
	"errors"
	"fmt"
)

// Sentinel errors for the event bus.
var (
	// ErrDuplicatePublisher is returned when a publisher name is registered twice.
	ErrDuplicatePublisher = errors.New("publisher already registered")

	// ErrUnknownPublisher is returned when an operation names a publisher that is not registered.
	ErrUnknownPublisher = errors.New("unknown publisher")

	// ErrDuplicateSubscriber is returned when a subscriber name is registered twice.
	ErrDuplicateSubscriber = errors.New("subscriber already registered")

	// ErrUnknownSubscriber is returned when an operation names a subscriber that is not registered.
	ErrUnknownSubscriber = errors.New("unknown subscriber")

	// ErrPublisherRunning is returned when a second loop is started for the same publisher.
	ErrPublisherRunning = errors.New("publisher is already running")

	// ErrPublisherEnded is returned when a publisher that has ended is asked to run again.
	ErrPublisherEnded = errors.New("publisher has ended")

	// ErrPublisherDone may be returned by Publisher.Run to end its loop without error.
	ErrPublisherDone = errors.New("publisher done")

	// ErrSubscriptionAttached is returned when a subscription is added to a second publisher.
	ErrSubscriptionAttached = errors.New("subscription already attached to a publisher")

	// ErrNilCallback is returned when a subscription has no callback.
	ErrNilCallback = errors.New("callback cannot be nil")

	// ErrCallbackPanic is matched by CallbackError when a callback panicked.
	ErrCallbackPanic = errors.New("callback panicked")

	// ErrContextType is returned by typed callbacks receiving a context of the wrong type.
	ErrContextType = errors.New("unexpected context type")
)

// PublisherError wraps an error from a publisher's lifecycle.
type PublisherError struct {
	// Publisher is the name of the publisher that failed.
	Publisher string

	// Op is the lifecycle step that failed (set_up, run).
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PublisherError) Error() string {
	return fmt.Sprintf("publisher %s %s: %v", e.Publisher, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PublisherError) Unwrap() error {
	return e.Err
}

// CallbackError wraps a failed or panicking subscriber callback.
type CallbackError struct {
	// Subscriber is the name of the subscriber whose callback failed.
	Subscriber string

	// Publisher is the publisher that dispatched the event.
	Publisher string

	// Err is the underlying error. For panics it is ErrCallbackPanic.
	Err error

	// Value is the value passed to panic(), if any.
	Value any
}

// Error implements the error interface.
func (e *CallbackError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("callback for subscriber %s on %s panicked: %v", e.Subscriber, e.Publisher, e.Value)
	}
	return fmt.Sprintf("callback for subscriber %s on %s: %v", e.Subscriber, e.Publisher, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallbackError) Unwrap() error {
	return e.Err
}
