package multisched

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zhenzou/multisched/sleeper"
)

type FailureHandler interface {
	CatchFailure(unit string, e error)
}

type FailureHandlerFunc func(unit string, e error)

func (f FailureHandlerFunc) CatchFailure(unit string, e error) {
	f(unit, e)
}

type DropHandler interface {
	TickDropped(unit string, e error)
}

type DropHandlerFunc func(unit string, e error)

func (f DropHandlerFunc) TickDropped(unit string, e error) {
	f(unit, e)
}

type UnitOption func(opts *unitOptions)

type unitOptions struct {
	InitialDelay     time.Duration
	ConcurrencyLimit int
	ExecuteTimeout   time.Duration
	FailureHandler   FailureHandler
	DropHandler      DropHandler
	Logger           *slog.Logger
	Clock            clock.Clock
	Sleeper          sleeper.Sleeper
}

var _DefaultUnitOptions = unitOptions{
	InitialDelay:     0,
	ConcurrencyLimit: 0,
	ExecuteTimeout:   0,
	FailureHandler:   LogFailureHandler{},
	DropHandler:      DiscardDropHandler{},
}

func newUnitOptions(opts []UnitOption) unitOptions {
	var opt = _DefaultUnitOptions
	for _, o := range opts {
		o(&opt)
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if h, ok := opt.FailureHandler.(LogFailureHandler); ok && h.Logger == nil {
		h.Logger = opt.Logger
		opt.FailureHandler = h
	}
	if opt.Clock == nil {
		opt.Clock = clock.New()
	}
	if opt.Sleeper == nil {
		opt.Sleeper = sleeper.NewClockSleeper(opt.Clock)
	}
	return opt
}

// WithInitialDelay delays the first tick of the unit.
func WithInitialDelay(delay time.Duration) UnitOption {
	return func(opts *unitOptions) {
		opts.InitialDelay = delay
	}
}

// WithConcurrencyLimit runs each invocation on its own goroutine, with at most
// limit invocations in flight. Zero keeps invocations inside the loop.
func WithConcurrencyLimit(limit int) UnitOption {
	return func(opts *unitOptions) {
		opts.ConcurrencyLimit = limit
	}
}

// WithExecuteTimeout attaches a deadline to the context handed to each
// invocation. Actions that ignore their context are not interrupted.
func WithExecuteTimeout(ts time.Duration) UnitOption {
	return func(opts *unitOptions) {
		opts.ExecuteTimeout = ts
	}
}

func WithFailureHandler(handler FailureHandler) UnitOption {
	return func(opts *unitOptions) {
		opts.FailureHandler = handler
	}
}

func WithDropHandler(handler DropHandler) UnitOption {
	return func(opts *unitOptions) {
		opts.DropHandler = handler
	}
}

func WithLogger(logger *slog.Logger) UnitOption {
	return func(opts *unitOptions) {
		opts.Logger = logger
	}
}

// WithClock replaces the wall clock used for schedule arithmetic. Unless a
// sleeper is set too, suspensions also run on this clock.
func WithClock(clk clock.Clock) UnitOption {
	return func(opts *unitOptions) {
		opts.Clock = clk
	}
}

func WithSleeper(s sleeper.Sleeper) UnitOption {
	return func(opts *unitOptions) {
		opts.Sleeper = s
	}
}
