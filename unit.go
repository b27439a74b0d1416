package multisched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhenzou/multisched/routine"
)

type State int32

const (
	StateNew State = iota
	StateRunning
	StateStopped
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("unknown state %d", int32(s))
	}
}

// Stats is a point-in-time snapshot of a unit.
type Stats struct {
	Name             string
	LoopInterval     time.Duration
	InitialDelay     time.Duration
	ConcurrencyLimit int
	State            State

	Ticks     uint64
	Launched  uint64
	Succeeded uint64
	Failed    uint64
	// Dropped counts ticks skipped because the concurrency limit was saturated.
	Dropped uint64
	// Resyncs counts ticks after which the unit was behind schedule and
	// restarted its cadence from the current time.
	Resyncs  uint64
	InFlight int

	LastTick time.Time
	NextDue  time.Time
	Err      error
}

// Unit invokes one action periodically on its own goroutine.
type Unit struct {
	action   Action
	interval time.Duration
	opts     unitOptions

	state   atomic.Int32
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	exec    executor
	dropLog *rate.Limiter

	ticks     atomic.Uint64
	launched  atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	resyncs   atomic.Uint64

	mu          sync.Mutex
	started     bool
	lastTick    time.Time
	nextDue     time.Time
	terminalErr error
}

// NewUnit validates the parameters of a unit. Nothing runs until Start.
func NewUnit(action Action, loopInterval time.Duration, opts ...UnitOption) (*Unit, error) {
	if err := action.validate(); err != nil {
		return nil, err
	}
	opt := newUnitOptions(opts)
	switch {
	case loopInterval <= 0:
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, loopInterval)
	case opt.InitialDelay < 0:
		return nil, fmt.Errorf("%w: %s", ErrInvalidInitialDelay, opt.InitialDelay)
	case opt.ConcurrencyLimit < 0:
		return nil, fmt.Errorf("%w: %d", ErrInvalidConcurrencyLimit, opt.ConcurrencyLimit)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Unit{
		action:   action,
		interval: loopInterval,
		opts:     opt,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		dropLog:  rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

func (u *Unit) Name() string {
	return u.action.Name
}

// Start launches the loop and returns at once. A unit starts at most once.
func (u *Unit) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch State(u.state.Load()) {
	case StateTerminal:
		return fmt.Errorf("%w: %w", ErrStartAfterTerminal, u.terminalErr)
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		if u.started {
			return ErrAlreadyStarted
		}
		return ErrStopped
	}

	exec, err := newExecutor(u.opts.ConcurrencyLimit)
	if err != nil {
		return err
	}
	u.exec = exec
	u.started = true
	u.nextDue = u.opts.Clock.Now().Add(u.opts.InitialDelay)
	u.running.Store(true)
	u.state.Store(int32(StateRunning))

	u.opts.Logger.Debug("unit started",
		slog.String("unit", u.Name()),
		slog.Duration("interval", u.interval),
		slog.Duration("initial_delay", u.opts.InitialDelay),
		slog.Int("concurrency_limit", u.opts.ConcurrencyLimit))

	go u.run()
	return nil
}

// Stop asks the loop to exit and returns without waiting. Invocations already
// running are not interrupted. Calling Stop again, or before Start, is a no-op
// beyond the first call.
func (u *Unit) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.running.Store(false)
	switch State(u.state.Load()) {
	case StateNew:
		u.state.Store(int32(StateStopped))
		u.cancel()
		close(u.done)
	case StateRunning:
		u.state.Store(int32(StateStopped))
		u.cancel()
		u.opts.Logger.Debug("unit stop requested", slog.String("unit", u.Name()))
	}
}

// Done is closed once the loop has exited and every invocation has finished.
func (u *Unit) Done() <-chan struct{} {
	return u.done
}

// Wait blocks until Done is closed or ctx is done.
func (u *Unit) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-u.done:
		return nil
	}
}

func (u *Unit) StopAndWait(ctx context.Context) error {
	u.Stop()
	return u.Wait(ctx)
}

func (u *Unit) run() {
	defer close(u.done)

	routine.WithRecovery(u.opts.Logger, u.loop, u.terminate)

	u.exec.Shutdown()
	u.opts.Logger.Debug("unit exited", slog.String("unit", u.Name()), slog.String("state", u.State().String()))
}

func (u *Unit) loop() {
	if u.opts.InitialDelay > 0 && !u.opts.Sleeper.Sleep(u.ctx, u.opts.InitialDelay) {
		return
	}

	sched := newSchedule(u.opts.Clock, u.interval)
	for u.running.Load() {
		u.tick()

		wait, resync := sched.advance()
		u.setNextDue(sched.anchor)
		if resync {
			u.resyncs.Add(1)
			continue
		}
		if !u.opts.Sleeper.Sleep(u.ctx, wait) {
			return
		}
	}
}

func (u *Unit) tick() {
	u.ticks.Add(1)
	u.mu.Lock()
	u.lastTick = u.opts.Clock.Now()
	u.mu.Unlock()

	err := u.exec.Execute(u.invokeWithRecovery)
	switch {
	case err == nil:
	case errors.Is(err, ErrConcurrencyLimitExceeded):
		u.drop()
	default:
		u.opts.Logger.Warn("dispatch failed", slog.String("unit", u.Name()), slog.Any("cause", err))
	}
}

// invokeWithRecovery turns a panicking failure handler into termination of
// the unit, wherever the invocation runs.
func (u *Unit) invokeWithRecovery() {
	routine.WithRecovery(u.opts.Logger, u.invoke, u.terminate)
}

func (u *Unit) invoke() {
	u.launched.Add(1)

	ctx, cancel := u.newContext()
	defer cancel()

	var err error
	if cause, panicked := routine.Catch(func() { err = u.action.Runnable.Run(ctx) }); panicked {
		err = ErrPanic{Cause: cause}
	}
	if err == nil {
		u.succeeded.Add(1)
		return
	}

	u.failed.Add(1)
	u.opts.FailureHandler.CatchFailure(u.Name(), &ActionFailure{Action: u.Name(), Err: err})
}

func (u *Unit) drop() {
	dropped := u.dropped.Add(1)
	err := &DropError{
		Unit:     u.Name(),
		Limit:    u.opts.ConcurrencyLimit,
		InFlight: u.exec.InFlight(),
	}
	if u.dropLog.Allow() {
		u.opts.Logger.Warn("tick dropped",
			slog.String("unit", u.Name()),
			slog.Int("limit", err.Limit),
			slog.Uint64("dropped_total", dropped))
	}
	u.opts.DropHandler.TickDropped(u.Name(), err)
}

// terminate marks the unit terminal after an escalated failure.
func (u *Unit) terminate(cause any) {
	err, ok := cause.(error)
	if !ok {
		err = ErrPanic{Cause: cause}
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.terminalErr == nil {
		u.terminalErr = err
	}
	u.running.Store(false)
	u.state.Store(int32(StateTerminal))
	u.cancel()
}

// newContext is independent of Stop, in-flight invocations are never signalled.
func (u *Unit) newContext() (context.Context, context.CancelFunc) {
	if u.opts.ExecuteTimeout == 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), u.opts.ExecuteTimeout)
}

func (u *Unit) setNextDue(t time.Time) {
	u.mu.Lock()
	u.nextDue = t
	u.mu.Unlock()
}

func (u *Unit) State() State {
	return State(u.state.Load())
}

func (u *Unit) Stats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()

	s := Stats{
		Name:             u.Name(),
		LoopInterval:     u.interval,
		InitialDelay:     u.opts.InitialDelay,
		ConcurrencyLimit: u.opts.ConcurrencyLimit,
		State:            u.State(),
		Ticks:            u.ticks.Load(),
		Launched:         u.launched.Load(),
		Succeeded:        u.succeeded.Load(),
		Failed:           u.failed.Load(),
		Dropped:          u.dropped.Load(),
		Resyncs:          u.resyncs.Load(),
		LastTick:         u.lastTick,
		NextDue:          u.nextDue,
		Err:              u.terminalErr,
	}
	if u.exec != nil {
		s.InFlight = u.exec.InFlight()
	}
	return s
}

// String renders the summary line of the unit: concurrency limit, action
// name, loop interval and initial delay.
func (u *Unit) String() string {
	return fmt.Sprintf("[%-4d] %-20s %6s %6s", u.opts.ConcurrencyLimit, u.Name(), u.interval, u.opts.InitialDelay)
}
