package multisched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/zyedidia/generic/heap"
)

// UnitSpec holds the registration parameters of one unit.
type UnitSpec struct {
	Action           Action
	LoopInterval     time.Duration
	InitialDelay     time.Duration
	ConcurrencyLimit int
}

type RegistryOption func(opts *registryOptions)

type registryOptions struct {
	UnitOptions []UnitOption
	Logger      *slog.Logger
	Clock       clock.Clock
}

// WithUnitOptions sets options applied to every unit the registry builds.
// Registration parameters take precedence over them.
func WithUnitOptions(opts ...UnitOption) RegistryOption {
	return func(o *registryOptions) {
		o.UnitOptions = append(o.UnitOptions, opts...)
	}
}

// WithRegistryLogger sets the logger of the registry, and the default logger
// of its units.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(o *registryOptions) {
		o.Logger = logger
	}
}

// WithRegistryClock sets the clock of the registry, and the default clock of
// its units.
func WithRegistryClock(clk clock.Clock) RegistryOption {
	return func(o *registryOptions) {
		o.Clock = clk
	}
}

// Registry starts and stops a group of units. Units are expected to be added
// before StartAll.
type Registry struct {
	opts registryOptions

	mu    sync.Mutex
	units []*Unit
	index map[string]*Unit
}

func NewRegistry(opts ...RegistryOption) *Registry {
	var opt registryOptions
	for _, o := range opts {
		o(&opt)
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Clock == nil {
		opt.Clock = clock.New()
	}
	return &Registry{
		opts:  opt,
		index: make(map[string]*Unit),
	}
}

func (r *Registry) AddUnit(action Action, loopInterval, initialDelay time.Duration, concurrencyLimit int) (*Unit, error) {
	opts := make([]UnitOption, 0, len(r.opts.UnitOptions)+4)
	opts = append(opts, WithLogger(r.opts.Logger), WithClock(r.opts.Clock))
	opts = append(opts, r.opts.UnitOptions...)
	opts = append(opts, WithInitialDelay(initialDelay), WithConcurrencyLimit(concurrencyLimit))

	u, err := NewUnit(action, loopInterval, opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[u.Name()]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateUnit, u.Name())
	}
	r.units = append(r.units, u)
	r.index[u.Name()] = u
	return u, nil
}

// AddUnits registers specs in order and stops at the first invalid one. Units
// registered before it are kept.
func (r *Registry) AddUnits(specs []UnitSpec) error {
	for i, spec := range specs {
		_, err := r.AddUnit(spec.Action, spec.LoopInterval, spec.InitialDelay, spec.ConcurrencyLimit)
		if err != nil {
			return fmt.Errorf("unit spec %d: %w", i, err)
		}
	}
	return nil
}

// Units returns the registered units in registration order.
func (r *Registry) Units() []*Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Unit(nil), r.units...)
}

func (r *Registry) Unit(name string) (*Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.index[name]
	return u, ok
}

// StartAll starts every unit in registration order. A unit that fails to
// start does not prevent the others from starting.
func (r *Registry) StartAll() error {
	var errs []error
	for _, u := range r.Units() {
		if err := u.Start(); err != nil {
			errs = append(errs, fmt.Errorf("start %s: %w", u.Name(), err))
		}
	}
	r.opts.Logger.Info("units started", slog.Int("units", len(r.Units())), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// StopAll asks every unit to stop, in registration order, without waiting
// for any loop to exit.
func (r *Registry) StopAll() {
	for _, u := range r.Units() {
		r.opts.Logger.Debug("stopping unit", slog.String("unit", u.String()))
		u.Stop()
	}
	r.opts.Logger.Info("units stop requested")
}

// StopAllAndWait stops every unit and waits until all of them exited and
// finished their in-flight invocations, or ctx is done.
func (r *Registry) StopAllAndWait(ctx context.Context) error {
	r.StopAll()

	start := r.opts.Clock.Now()
	for _, u := range r.Units() {
		if err := u.Wait(ctx); err != nil {
			return fmt.Errorf("wait %s: %w", u.Name(), err)
		}
	}
	r.opts.Logger.Info("units stopped", slog.Duration("took", r.opts.Clock.Since(start)))
	return nil
}

func (r *Registry) Stats() []Stats {
	units := r.Units()
	stats := make([]Stats, 0, len(units))
	for _, u := range units {
		stats = append(stats, u.Stats())
	}
	return stats
}

// Upcoming returns at most n running units, soonest next tick first.
func (r *Registry) Upcoming(n int) []Stats {
	if n <= 0 {
		return nil
	}
	h := heap.New[Stats](statsDueBefore)
	for _, s := range r.Stats() {
		if s.State == StateRunning {
			h.Push(s)
		}
	}

	upcoming := make([]Stats, 0, min(n, h.Size()))
	for len(upcoming) < n {
		s, ok := h.Pop()
		if !ok {
			break
		}
		upcoming = append(upcoming, s)
	}
	return upcoming
}

func statsDueBefore(a, b Stats) bool {
	return a.NextDue.Before(b.NextDue)
}

// String renders one summary line per unit, in registration order.
func (r *Registry) String() string {
	var sb strings.Builder
	for _, u := range r.Units() {
		sb.WriteString(u.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
