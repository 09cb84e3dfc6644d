// Command gatling is the top-level driver spec.md §2 describes: it loads
// configuration, constructs the RPC facade and account pool, runs the
// setup orchestrator once, then for each configured shooter runs it while
// the block watcher feeds the metrics aggregator in parallel, and finally
// writes the report.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gateway-fm/starknet-gatling/internal/account"
	"github.com/gateway-fm/starknet-gatling/internal/blockwatcher"
	"github.com/gateway-fm/starknet-gatling/internal/config"
	"github.com/gateway-fm/starknet-gatling/internal/errkind"
	"github.com/gateway-fm/starknet-gatling/internal/metrics"
	"github.com/gateway-fm/starknet-gatling/internal/report"
	"github.com/gateway-fm/starknet-gatling/internal/rpc"
	"github.com/gateway-fm/starknet-gatling/internal/setup"
	"github.com/gateway-fm/starknet-gatling/internal/shooter"
	"github.com/gateway-fm/starknet-gatling/internal/starkcurve"
	"github.com/gateway-fm/starknet-gatling/pkg/felt"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gatling",
		Short:         "Starknet sequencer benchmarking core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newShootCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gatling version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "gatling dev")
			return nil
		},
	}
}

func newShootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "shoot",
		Short: "Run setup once, then every configured shooter in sequence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the benchmark config file (required)")
	cmd.MarkFlagRequired("config")
	return cmd
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, configPath string) error {
	logger := newLogger()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("loading config", slog.String("error", err.Error()))
		return err
	}

	curve := starkcurve.NewReference()
	client := rpc.NewHTTPClient(rpc.HTTPClientConfig{
		URL:    cfg.RPC.URL,
		WSURL:  cfg.RPC.WSURL,
		Logger: logger,
	}, int(cfg.Run.Concurrency)*5) // C submit permits plus the runtime's default 4*C verify permits

	var promMetrics *metrics.PrometheusMetrics
	if cfg.Report.MetricsListenAddr != "" {
		promMetrics = metrics.NewPrometheusMetrics(nil)
		go serveMetrics(cfg.Report.MetricsListenAddr, logger)
	}

	logger.Info("running setup", slog.String("rpc_url", cfg.RPC.URL))
	orchestrator := setup.New(client, curve, logger)
	setupResult, err := orchestrator.Run(ctx, cfg)
	if err != nil {
		logger.Error("setup failed", slog.String("error", err.Error()))
		return err
	}
	pool := account.NewPool(setupResult.Accounts, logger)

	aggregator := metrics.NewAggregator(logger)
	events := make(chan metrics.Event, 1024)
	aggEvents := make(chan metrics.Event, 1024)

	var relayWG sync.WaitGroup
	relayWG.Add(1)
	go func() {
		defer relayWG.Done()
		defer close(aggEvents)
		for ev := range events {
			if promMetrics != nil {
				observePrometheus(promMetrics, ev)
			}
			aggEvents <- ev
		}
	}()

	var aggWG sync.WaitGroup
	aggWG.Add(1)
	go func() {
		defer aggWG.Done()
		aggregator.Run(ctx, aggEvents)
	}()

	watcherCtx, stopWatcher := context.WithCancel(ctx)
	defer stopWatcher()
	watcher := blockwatcher.New(client, blockwatcher.Config{
		PollInterval: cfg.Run.PollInterval(),
		StallTimeout: cfg.Run.BlockWatchTimeout(),
	}, events, logger)
	// A watcher stall is fatal: it cancels the shooters' context so the
	// current shooter stops, and run returns the watcher's error.
	shootCtx, stopShooting := context.WithCancel(ctx)
	defer stopShooting()
	watcherErr := make(chan error, 1)
	go func() {
		err := watcher.Run(watcherCtx)
		if err != nil {
			stopShooting()
		}
		watcherErr <- err
	}()

	maxFee, err := felt.FromHex(cfg.Run.MaxFeeHexOrDefault())
	if err != nil {
		return errkind.New(errkind.Config, fmt.Errorf("resolving run.max_fee_hex: %w", err))
	}

	rt := shooter.New(client, curve, pool, shooter.Config{
		Concurrency: cfg.Run.Concurrency,
		MaxWait:     cfg.Run.MaxWait(),
		MaxFee:      maxFee,
		Version:     "0x1",
	}, events, logger)

	erc20Amount, err := felt.FromHex(cfg.Setup.TokenBalance())
	if err != nil {
		return errkind.New(errkind.Config, fmt.Errorf("resolving transfer amount: %w", err))
	}

	for _, sc := range cfg.Run.Shooters {
		spec, err := shooterSpec(sc, pool, setupResult, erc20Amount)
		if err != nil {
			return err
		}
		logger.Info("running shooter", slog.String("name", sc.Name), slog.Uint64("shoot", sc.Shoot))
		if err := rt.Run(shootCtx, spec); err != nil {
			logger.Error("shooter failed", slog.String("name", sc.Name), slog.String("error", err.Error()))
			return err
		}
	}

	for _, rb := range cfg.Run.ReadBenches {
		readParams, err := loadReadParams(rb.ParametersLocation)
		if err != nil {
			return errkind.New(errkind.Config, fmt.Errorf("read_benches[%s].parameters_location: %w", rb.Name, err))
		}
		spec := shooter.Spec{
			Name:       rb.Name,
			Amount:     rb.NumRequests,
			IsRead:     true,
			ReadMethod: rb.Method,
			ReadParams: readParams,
		}
		logger.Info("running read bench", slog.String("name", rb.Name), slog.Uint64("num_requests", rb.NumRequests))
		if err := rt.Run(shootCtx, spec); err != nil {
			logger.Error("read bench failed", slog.String("name", rb.Name), slog.String("error", err.Error()))
			return err
		}
	}

	stopWatcher()
	werr := <-watcherErr
	close(events)
	relayWG.Wait()
	aggWG.Wait()
	if werr != nil {
		logger.Error("block watcher failed", slog.String("error", werr.Error()))
		return werr
	}

	snapshots := aggregator.AllShooters(int(cfg.Report.NumBlocks))
	rep := report.FromSnapshots(cfg.Setup.NumAccounts, snapshots)
	if err := report.Write(cfg.Report.OutputLocation, rep); err != nil {
		logger.Error("writing report", slog.String("error", err.Error()))
		return err
	}
	logger.Info("report written", slog.String("path", cfg.Report.OutputLocation))

	if cfg.Report.HistoryDBPath != "" {
		if err := recordHistory(cfg.Report.HistoryDBPath, rep, logger); err != nil {
			logger.Warn("recording history failed", slog.String("error", err.Error()))
		}
	}

	return nil
}

// observePrometheus mirrors one aggregator-bound event into the live
// metric set, keeping the dashboard in step with the run rather than only
// reflecting the final report.
func observePrometheus(m *metrics.PrometheusMetrics, ev metrics.Event) {
	switch {
	case ev.Sample != nil:
		m.ObserveSample(*ev.Sample)
	case ev.Block != nil && ev.Block.TxCount > 0:
		m.ObserveBlock(float64(ev.Block.TxCount))
	}
}

// loadReadParams reads a read bench's parameters_location, a JSON file
// holding one array of parameter lists for "starknet_call"-style requests
// (e.g. [["0x1","pending"], ["0x2","pending"]]), cycled across the bench's
// num_requests calls (see shooter.Spec.ReadParams). An unset location is
// not an error: the bench then calls its method with no parameters.
func loadReadParams(location string) ([][]any, error) {
	if location == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", location, err)
	}
	var params [][]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", location, err)
	}
	return params, nil
}

func shooterSpec(sc config.ShooterConfig, pool *account.Pool, setupResult *setup.Result, erc20Amount felt.Element) (shooter.Spec, error) {
	switch sc.Name {
	case "transfer":
		return shooter.Spec{
			Name:   sc.Name,
			Amount: sc.Shoot,
			Build:  shooter.TransferBuilder(pool, setupResult.ERC20Address, erc20Amount),
		}, nil
	case "mint":
		return shooter.Spec{
			Name:   sc.Name,
			Amount: sc.Shoot,
			Build:  shooter.MintBuilder(setupResult.ERC721Address),
		}, nil
	default:
		return shooter.Spec{}, errkind.New(errkind.Config, fmt.Errorf("unknown shooter %q", sc.Name))
	}
}

// serveMetrics exposes the live Prometheus metrics on addr for the
// lifetime of the process; a scrape failure or listener error only
// affects the optional dashboard, never the benchmark itself.
func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", slog.String("error", err.Error()))
	}
}

func recordHistory(dbPath string, rep report.Report, logger *slog.Logger) error {
	history, err := report.OpenHistory(dbPath)
	if err != nil {
		return err
	}
	defer history.Close()

	id, err := history.Record(rep)
	if err != nil {
		return err
	}
	logger.Info("history recorded", slog.Int64("run_id", id))
	return nil
}
