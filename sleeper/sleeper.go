package sleeper

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	gxtime "github.com/dubbogo/timer"
)

// Sleeper is safe for concurrent use; every Sleep call owns its own timer.
type Sleeper interface {
	// Sleep sleep duration time unless ctx is done
	// will return false if ctx is done before the duration elapsed
	Sleep(ctx context.Context, duration time.Duration) bool
}

func NewSleeper() Sleeper {
	return NewClockSleeper(clock.New())
}

// NewClockSleeper sleeps on timers of clk, so a mocked clock drives it too.
func NewClockSleeper(clk clock.Clock) Sleeper {
	return &clockSleeper{clock: clk}
}

type clockSleeper struct {
	clock clock.Clock
}

func (s *clockSleeper) Sleep(ctx context.Context, duration time.Duration) bool {
	if duration <= 0 {
		return ctx.Err() == nil
	}
	timer := s.clock.Timer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

// NewWheelSleeper sleeps on a shared timer wheel instead of one runtime timer
// per sleeper. The caller owns tw and closes it with CloseWheel once no
// sleeper is in use.
func NewWheelSleeper(tw *gxtime.TimerWheel) Sleeper {
	return &wheelSleeper{tw: tw, clock: clock.New()}
}

type wheelSleeper struct {
	tw    *gxtime.TimerWheel
	clock clock.Clock
}

// Sleep re-arms the wheel until the deadline has passed on the wall clock. The
// wheel stamps timers from a clock it only advances on its own ticks, so a
// timer may fire early, most of all on a wheel that has not ticked yet.
func (s *wheelSleeper) Sleep(ctx context.Context, duration time.Duration) bool {
	if duration <= 0 || ctx.Err() != nil {
		return ctx.Err() == nil
	}

	deadline := s.clock.Now().Add(duration)
	for remaining := duration; remaining > 0; remaining = deadline.Sub(s.clock.Now()) {
		if !s.sleepOnce(ctx, remaining) {
			return false
		}
	}
	return ctx.Err() == nil
}

func (s *wheelSleeper) sleepOnce(ctx context.Context, duration time.Duration) bool {
	fired := make(chan struct{})
	timer := s.tw.AfterFunc(duration, func() {
		close(fired)
	})

	select {
	case <-fired:
		return true
	case <-ctx.Done():
		timer.Stop()
		return false
	}
}

// CloseWheel wakes tw up, then closes it. An idle wheel may not observe the close otherwise.
func CloseWheel(tw *gxtime.TimerWheel) {
	tw.Tick(1 * time.Millisecond)
	tw.Close()
}
