package multisched

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidAction           = errors.New("invalid action")
	ErrInvalidInterval         = errors.New("loop interval must be positive")
	ErrInvalidInitialDelay     = errors.New("initial delay must not be negative")
	ErrInvalidConcurrencyLimit = errors.New("concurrency limit must not be negative")

	ErrAlreadyStarted     = errors.New("already started")
	ErrStopped            = errors.New("stopped")
	ErrStartAfterTerminal = errors.New("start after terminal")
	ErrDuplicateUnit      = errors.New("duplicate unit")

	// ErrConcurrencyLimitExceeded is reported when a tick is dropped because
	// every concurrency slot of the unit is taken.
	ErrConcurrencyLimitExceeded = errors.New("concurrency limit exceeded")
)

type ErrPanic struct {
	Cause interface{}
}

func (e ErrPanic) Error() string {
	return fmt.Sprintf("panic: %v", e.Cause)
}

// ActionFailure wraps an error returned by, or a panic raised from, one
// invocation of an action.
type ActionFailure struct {
	Action string
	Err    error
}

func (e *ActionFailure) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Err)
}

func (e *ActionFailure) Unwrap() error {
	return e.Err
}

// DropError describes a dropped tick.
type DropError struct {
	Unit     string
	Limit    int
	InFlight int
}

func (e *DropError) Error() string {
	return fmt.Sprintf("unit %s: %v (%d/%d in flight)", e.Unit, ErrConcurrencyLimitExceeded, e.InFlight, e.Limit)
}

func (e *DropError) Unwrap() error {
	return ErrConcurrencyLimitExceeded
}

type Runnable interface {
	Run(ctx context.Context) error
}

type RunnableFunc func(ctx context.Context) error

func (r RunnableFunc) Run(ctx context.Context) error {
	return r(ctx)
}

// Action is a named Runnable. The name identifies the unit in summaries,
// logs and metrics.
type Action struct {
	Name     string
	Runnable Runnable
}

func NewAction(name string, r Runnable) Action {
	return Action{Name: name, Runnable: r}
}

func ActionFunc(name string, fn func(ctx context.Context) error) Action {
	return Action{Name: name, Runnable: RunnableFunc(fn)}
}

func (a Action) validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAction)
	}
	if a.Runnable == nil {
		return fmt.Errorf("%w: %s has no runnable", ErrInvalidAction, a.Name)
	}
	return nil
}
