package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/zhenzou/multisched"
)

func newRegistry(t *testing.T) *multisched.Registry {
	r := multisched.NewRegistry(multisched.WithUnitOptions(
		multisched.WithFailureHandler(multisched.DiscardFailureHandler{})))
	require.NoError(t, r.AddUnits([]multisched.UnitSpec{
		{
			Action:       multisched.ActionFunc("heartbeat", func(ctx context.Context) error { return nil }),
			LoopInterval: time.Second,
		},
		{
			Action: multisched.ActionFunc("poller", func(ctx context.Context) error {
				return errors.New("unreachable")
			}),
			LoopInterval:     20 * time.Millisecond,
			ConcurrencyLimit: 4,
		},
	}))
	return r
}

func TestCollector_Collect(t *testing.T) {
	r := newRegistry(t)
	c := NewCollector(r)

	t.Run("given units not started, will export zero values", func(t *testing.T) {
		// next due is unknown before start
		require.Equal(t, 2*8, testutil.CollectAndCount(c))

		expected := `
# HELP multisched_unit_concurrency_limit Configured concurrency limit, 0 for synchronous units.
# TYPE multisched_unit_concurrency_limit gauge
multisched_unit_concurrency_limit{unit="heartbeat"} 0
multisched_unit_concurrency_limit{unit="poller"} 4
# HELP multisched_unit_dropped_ticks_total Ticks skipped because the concurrency limit was saturated.
# TYPE multisched_unit_dropped_ticks_total counter
multisched_unit_dropped_ticks_total{unit="heartbeat"} 0
multisched_unit_dropped_ticks_total{unit="poller"} 0
`
		err := testutil.CollectAndCompare(c, strings.NewReader(expected),
			"multisched_unit_concurrency_limit", "multisched_unit_dropped_ticks_total")
		require.NoError(t, err)
	})

	t.Run("given running units, will export progress", func(t *testing.T) {
		require.NoError(t, r.StartAll())
		time.Sleep(150 * time.Millisecond)

		require.Equal(t, 2*9, testutil.CollectAndCount(c))
		require.Equal(t, 2, testutil.CollectAndCount(c, "multisched_unit_running"))

		require.NoError(t, r.StopAllAndWait(context.Background()))

		poller, ok := r.Unit("poller")
		require.True(t, ok)
		require.Greater(t, poller.Stats().Failed, uint64(0))
	})
}

func TestCollector_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(newRegistry(t))))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
