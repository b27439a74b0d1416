package multisched

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func Test_schedule_advance(t *testing.T) {
	type testCase struct {
		name       string
		work       time.Duration
		wantWait   time.Duration
		wantResync bool
	}
	tests := []testCase{
		{
			name:     "given instant tick, will wait the full interval",
			work:     0,
			wantWait: 100 * time.Millisecond,
		},
		{
			name:     "given 30ms tick, will wait the rest of the interval",
			work:     30 * time.Millisecond,
			wantWait: 70 * time.Millisecond,
		},
		{
			name:       "given tick as long as the interval, will resync",
			work:       100 * time.Millisecond,
			wantResync: true,
		},
		{
			name:       "given tick longer than the interval, will resync",
			work:       250 * time.Millisecond,
			wantResync: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := clock.NewMock()
			s := newSchedule(mock, 100*time.Millisecond)
			start := mock.Now()

			mock.Add(tt.work)
			wait, resync := s.advance()

			require.Equal(t, tt.wantWait, wait)
			require.Equal(t, tt.wantResync, resync)
			if tt.wantResync {
				require.Equal(t, mock.Now(), s.anchor)
			} else {
				require.Equal(t, start.Add(100*time.Millisecond), s.anchor)
			}
		})
	}
}

func Test_schedule_driftCorrection(t *testing.T) {
	mock := clock.NewMock()
	s := newSchedule(mock, time.Second)
	start := mock.Now()

	// uneven bookkeeping per tick must not stretch the period
	for i := 1; i <= 100; i++ {
		mock.Add(time.Duration(i%7) * time.Millisecond)
		wait, resync := s.advance()
		require.False(t, resync)
		mock.Add(wait)

		require.Equal(t, start.Add(time.Duration(i)*time.Second), mock.Now())
	}
}

func Test_schedule_resyncDoesNotCatchUp(t *testing.T) {
	mock := clock.NewMock()
	s := newSchedule(mock, time.Second)

	mock.Add(3500 * time.Millisecond)
	_, resync := s.advance()
	require.True(t, resync)

	resyncAt := mock.Now()

	// the regular cadence continues from the resync point
	mock.Add(10 * time.Millisecond)
	wait, resync := s.advance()
	require.False(t, resync)
	require.Equal(t, 990*time.Millisecond, wait)
	require.Equal(t, resyncAt.Add(time.Second), s.anchor)
}

func Test_schedule_anchorNeverMovesBack(t *testing.T) {
	mock := clock.NewMock()
	s := newSchedule(mock, 100*time.Millisecond)

	prev := s.anchor
	for _, work := range []time.Duration{0, 150, 20, 400, 99, 100, 1} {
		mock.Add(work * time.Millisecond)
		wait, _ := s.advance()
		mock.Add(wait)

		require.False(t, s.anchor.Before(prev))
		prev = s.anchor
	}
}
