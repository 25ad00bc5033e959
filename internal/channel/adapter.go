// Package channel defines the delivery adapters the dispatch engine sends
// cadence steps through. One adapter per channel; the engine picks the
// adapter by the step's channel and treats every adapter identically.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/salesloop/salesloop/internal/models"
)

// RenderedStep is a step after template substitution, ready to deliver.
type RenderedStep struct {
	Step    models.CadenceStep
	Subject string // rendered subject line, email only
	Body    string
}

// SendResult reports a successful delivery.
type SendResult struct {
	ExternalID string // provider message id, empty for simulated or manual sends
}

// Adapter delivers one rendered step to one subject.
type Adapter interface {
	Channel() models.Channel
	// Simulated reports whether sends are logged rather than delivered.
	// Simulated sends never consume rate-limit quota.
	Simulated() bool
	Send(ctx context.Context, subject *models.Subject, step RenderedStep) (*SendResult, error)
}

// Error is a delivery failure carrying retryability. Failures that are not
// a channel.Error are treated as retryable.
type Error struct {
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a non-retryable delivery failure (hard bounce).
func Permanent(err error) *Error {
	return &Error{Err: err, Retryable: false}
}

// Transient wraps err as a retryable delivery failure (soft bounce).
func Transient(err error) *Error {
	return &Error{Err: err, Retryable: true}
}

// IsRetryable reports whether a send failure should be retried. Errors of
// unknown provenance default to retryable.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return true
}

// Registry maps channels to adapters.
type Registry map[models.Channel]Adapter

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Channel()] = a
	}
	return r
}

// For returns the adapter for the channel.
func (r Registry) For(c models.Channel) (Adapter, error) {
	a, ok := r[c]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for channel %q", c)
	}
	return a, nil
}
