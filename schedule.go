package multisched

import (
	"time"

	"github.com/benbjohnson/clock"
)

// schedule tracks the ideal start time of the current tick. The anchor moves
// by exactly one interval per tick, so the time spent inside a tick does not
// accumulate into the period.
type schedule struct {
	clock    clock.Clock
	interval time.Duration
	anchor   time.Time
}

func newSchedule(clk clock.Clock, interval time.Duration) *schedule {
	return &schedule{
		clock:    clk,
		interval: interval,
		anchor:   clk.Now(),
	}
}

// advance moves the anchor to the next tick and returns how long to wait for it
// will return resync and move the anchor to now if the next tick is already due,
// missed ticks are never replayed
func (s *schedule) advance() (wait time.Duration, resync bool) {
	s.anchor = s.anchor.Add(s.interval)

	now := s.clock.Now()
	if wait = s.anchor.Sub(now); wait > 0 {
		return wait, false
	}
	s.anchor = now
	return 0, true
}
