package multisched

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/semaphore"
)

// executor dispatches the invocations of one unit.
type executor interface {
	// Execute run fn, inline or in background
	// Will return ErrConcurrencyLimitExceeded if every slot is taken
	Execute(fn func()) error

	// InFlight count of fn currently running in background
	InFlight() int

	// Shutdown wait for background fn to finish, then release resources
	Shutdown()
}

func newExecutor(limit int) (executor, error) {
	if limit == 0 {
		return syncExecutor{}, nil
	}
	return newPoolExecutor(limit)
}

// syncExecutor runs fn on the caller goroutine, so invocations never overlap.
type syncExecutor struct {
}

func (syncExecutor) Execute(fn func()) error {
	fn()
	return nil
}

func (syncExecutor) InFlight() int {
	return 0
}

func (syncExecutor) Shutdown() {
}

type poolExecutor struct {
	limit    int
	sem      *semaphore.Weighted
	pool     *ants.Pool
	inFlight atomic.Int64
	wg       sync.WaitGroup
}

func newPoolExecutor(limit int) (*poolExecutor, error) {
	pool, err := ants.NewPool(limit,
		// do nothing, every fn recovers on its own
		ants.WithPanicHandler(func(cause interface{}) {}))
	if err != nil {
		return nil, err
	}
	return &poolExecutor{
		limit: limit,
		sem:   semaphore.NewWeighted(int64(limit)),
		pool:  pool,
	}, nil
}

// Execute never queues. The semaphore admits at most limit fn, the pool may
// only block for the instant a finished worker takes to become idle again.
func (p *poolExecutor) Execute(fn func()) error {
	if !p.sem.TryAcquire(1) {
		return ErrConcurrencyLimitExceeded
	}
	p.inFlight.Add(1)
	p.wg.Add(1)

	err := p.pool.Submit(func() {
		defer p.release()
		fn()
	})
	if err == nil {
		return nil
	}
	p.release()

	switch {
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrStopped
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrConcurrencyLimitExceeded
	default:
		return err
	}
}

// release runs in reverse order of admission so InFlight never exceeds limit.
func (p *poolExecutor) release() {
	p.inFlight.Add(-1)
	p.sem.Release(1)
	p.wg.Done()
}

func (p *poolExecutor) InFlight() int {
	return int(p.inFlight.Load())
}

func (p *poolExecutor) Shutdown() {
	p.wg.Wait()
	p.pool.Release()
}
