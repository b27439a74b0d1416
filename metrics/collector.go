// Package metrics exports the stats of a multisched registry to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhenzou/multisched"
)

const namespace = "multisched"

// Collector reads unit stats at scrape time, units need no instrumentation.
type Collector struct {
	registry *multisched.Registry

	ticks     *prometheus.Desc
	launched  *prometheus.Desc
	failed    *prometheus.Desc
	dropped   *prometheus.Desc
	resyncs   *prometheus.Desc
	inFlight  *prometheus.Desc
	limit     *prometheus.Desc
	running   *prometheus.Desc
	nextDueTs *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(registry *multisched.Registry) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "unit", name), help, []string{"unit"}, nil)
	}
	return &Collector{
		registry:  registry,
		ticks:     desc("ticks_total", "Loop iterations, whether or not they invoked the action."),
		launched:  desc("invocations_total", "Invocations of the action."),
		failed:    desc("failures_total", "Invocations that returned an error or panicked."),
		dropped:   desc("dropped_ticks_total", "Ticks skipped because the concurrency limit was saturated."),
		resyncs:   desc("resyncs_total", "Ticks after which the unit was behind schedule and resynchronized."),
		inFlight:  desc("in_flight", "Invocations currently running in background."),
		limit:     desc("concurrency_limit", "Configured concurrency limit, 0 for synchronous units."),
		running:   desc("running", "1 if the unit loop is running."),
		nextDueTs: desc("next_due_timestamp_seconds", "Ideal start time of the next tick."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ticks
	ch <- c.launched
	ch <- c.failed
	ch <- c.dropped
	ch <- c.resyncs
	ch <- c.inFlight
	ch <- c.limit
	ch <- c.running
	ch <- c.nextDueTs
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.registry.Stats() {
		counter := func(desc *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), s.Name)
		}
		gauge := func(desc *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, s.Name)
		}

		counter(c.ticks, s.Ticks)
		counter(c.launched, s.Launched)
		counter(c.failed, s.Failed)
		counter(c.dropped, s.Dropped)
		counter(c.resyncs, s.Resyncs)
		gauge(c.inFlight, float64(s.InFlight))
		gauge(c.limit, float64(s.ConcurrencyLimit))

		running := 0.0
		if s.State == multisched.StateRunning {
			running = 1
		}
		gauge(c.running, running)

		if !s.NextDue.IsZero() {
			gauge(c.nextDueTs, float64(s.NextDue.UnixNano())/1e9)
		}
	}
}
