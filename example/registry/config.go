package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/zhenzou/multisched"
)

type demoConfig struct {
	Units  []unitConfig `yaml:"units"`
	Agents agentsConfig `yaml:"agents"`
}

// unitConfig describes a demo unit whose action prints a timestamp, then
// optionally works for a while and prints again.
type unitConfig struct {
	Name         string        `yaml:"name"`
	Interval     time.Duration `yaml:"interval"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Concurrency  int           `yaml:"concurrency"`
	Work         time.Duration `yaml:"work"`
}

// agentsConfig describes a fleet of identical counting agents.
type agentsConfig struct {
	Count        int           `yaml:"count"`
	Interval     time.Duration `yaml:"interval"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

var defaultConfig = demoConfig{
	Units: []unitConfig{
		{Name: "task1", Interval: 1300 * time.Millisecond},
		{Name: "task2", Interval: 1 * time.Second, InitialDelay: 3 * time.Second, Work: 1600 * time.Millisecond},
		{Name: "task3", Interval: 1100 * time.Millisecond, Concurrency: 4, Work: 4400 * time.Millisecond},
	},
	Agents: agentsConfig{
		Count:        42,
		Interval:     600 * time.Millisecond,
		InitialDelay: 1100 * time.Millisecond,
	},
}

func loadConfig(path string) (demoConfig, error) {
	if path == "" {
		return defaultConfig, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return demoConfig{}, err
	}
	var cfg demoConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return demoConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c demoConfig) specs(out io.Writer) []multisched.UnitSpec {
	specs := make([]multisched.UnitSpec, 0, len(c.Units)+c.Agents.Count)
	for _, u := range c.Units {
		specs = append(specs, multisched.UnitSpec{
			Action:           workAction(out, u.Name, u.Work),
			LoopInterval:     u.Interval,
			InitialDelay:     u.InitialDelay,
			ConcurrencyLimit: u.Concurrency,
		})
	}
	for n := 0; n < c.Agents.Count; n++ {
		a := &agent{out: out, name: fmt.Sprintf("Agent%03d", n)}
		specs = append(specs, multisched.UnitSpec{
			Action:       multisched.NewAction(a.name, a),
			LoopInterval: c.Agents.Interval,
			InitialDelay: c.Agents.InitialDelay,
		})
	}
	return specs
}

func stamp(out io.Writer, s string) {
	fmt.Fprintf(out, "%.2f : %s\n", float64(time.Now().UnixNano())/1e9, s)
}

func workAction(out io.Writer, name string, work time.Duration) multisched.Action {
	return multisched.ActionFunc(name, func(ctx context.Context) error {
		stamp(out, name)
		if work > 0 {
			time.Sleep(work)
			stamp(out, name+" again")
		}
		return nil
	})
}

type agent struct {
	out   io.Writer
	name  string
	calls atomic.Int64
}

func (a *agent) Run(ctx context.Context) error {
	fmt.Fprintf(a.out, "I am %s (%d)\n", a.name, a.calls.Add(1))
	return nil
}
