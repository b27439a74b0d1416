package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	gxtime "github.com/dubbogo/timer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zhenzou/multisched"
	"github.com/zhenzou/multisched/metrics"
	"github.com/zhenzou/multisched/sleeper"
)

var (
	verbosity   int
	unitsFile   string
	agents      int
	useWheel    bool
	metricsAddr string
	grace       time.Duration

	rootCmd = &cobra.Command{
		Use:   "registry",
		Short: "Run a group of periodic units until a line is read from stdin",
		Long: `registry registers a set of demo units, prints their summary, starts them
all and blocks until the operator enters a line, then stops every unit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
)

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG)")

	rootCmd.Flags().StringVar(&unitsFile, "units", "", "YAML file describing the demo units (default: built-in set)")
	rootCmd.Flags().IntVar(&agents, "agents", 42, "Number of counting agents, overrides the units file")
	rootCmd.Flags().BoolVar(&useWheel, "wheel", false, "Sleep on a shared timer wheel instead of one timer per unit")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.Flags().DurationVar(&grace, "grace", 10*time.Second, "How long to wait for units to exit on stop")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(cmd *cobra.Command, args []string) error {
	logger := newLogger(verbosity)
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(unitsFile)
	if err != nil {
		return err
	}
	if unitsFile == "" || cmd.Flags().Changed("agents") {
		cfg.Agents.Count = agents
	}

	var unitOpts []multisched.UnitOption
	if useWheel {
		tw := gxtime.NewTimerWheel()
		defer sleeper.CloseWheel(tw)
		unitOpts = append(unitOpts, multisched.WithSleeper(sleeper.NewWheelSleeper(tw)))
	}

	registry := multisched.NewRegistry(
		multisched.WithRegistryLogger(logger),
		multisched.WithUnitOptions(unitOpts...))
	if err := registry.AddUnits(cfg.specs(out)); err != nil {
		return err
	}

	if metricsAddr != "" {
		srv := serveMetrics(registry, metricsAddr, logger)
		defer srv.Close()
	}

	fmt.Fprint(out, registry)

	if err := registry.StartAll(); err != nil {
		return err
	}
	for _, s := range registry.Upcoming(3) {
		fmt.Fprintf(out, "next: %s at %s\n", s.Name, s.NextDue.Format(time.TimeOnly))
	}

	// any line, or EOF, stops the demo
	_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := registry.StopAllAndWait(ctx); err != nil {
		return err
	}

	for _, s := range registry.Stats() {
		logger.Info("unit stopped",
			slog.String("unit", s.Name),
			slog.Uint64("invocations", s.Launched),
			slog.Uint64("dropped", s.Dropped),
			slog.Uint64("failed", s.Failed))
	}
	return nil
}

func serveMetrics(registry *multisched.Registry, addr string, logger *slog.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(registry))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("cause", err))
		}
	}()
	return srv
}
