package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polywhaler/config"
	"github.com/alejandrodnm/polywhaler/internal/adapters/feed"
	"github.com/alejandrodnm/polywhaler/internal/adapters/notify"
	"github.com/alejandrodnm/polywhaler/internal/adapters/polymarket"
	"github.com/alejandrodnm/polywhaler/internal/adapters/storage"
	"github.com/alejandrodnm/polywhaler/internal/adapters/tradelog"
	"github.com/alejandrodnm/polywhaler/internal/application/bot"
	"github.com/alejandrodnm/polywhaler/internal/control"
	"github.com/alejandrodnm/polywhaler/internal/domain"
	"github.com/alejandrodnm/polywhaler/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	preflight := flag.Bool("preflight", false, "validate credentials and connectivity, then exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full cycle table (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	mode := "live"
	if cfg.DryRun() {
		mode = "paper"
	}

	slog.Info("polywhaler starting",
		"config", *configPath,
		"interval", cfg.PollInterval(),
		"mode", mode,
		"min_grade", cfg.Feed.MinGrade,
		"stop_on_block", cfg.StopOnBlock(),
	)

	executor, err := buildExecutor(cfg)
	if err != nil {
		slog.Error("failed to build executor", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *preflight {
		if err := executor.Preflight(ctx, ""); err != nil {
			slog.Error("preflight failed", "err", err)
			os.Exit(1)
		}
		slog.Info("preflight ok", "mode", executor.Mode())
		return
	}

	ledger, err := storage.NewSQLiteLedger(cfg.Ledger.DSN, cfg.LedgerTTL(), cfg.EventGrace())
	if err != nil {
		slog.Error("failed to open ledger", "err", err, "dsn", cfg.Ledger.DSN)
		os.Exit(1)
	}
	defer ledger.Close()

	trades := tradelog.NewWriter(cfg.TradeLog.Path)
	defer trades.Close()

	gate, err := bot.NewTimeGate(cfg.Window.Start, cfg.Window.End, cfg.Window.Timezone)
	if err != nil {
		slog.Error("invalid trading window", "err", err)
		os.Exit(1)
	}

	feedClient := feed.NewClient(cfg.Feed.BaseURL, cfg.Feed.APIKey)

	pipeline := bot.NewPipeline(bot.PipelineConfig{
		MinGrade:        domain.Grade(cfg.Feed.MinGrade),
		Freshness:       cfg.Freshness(),
		MaxPerCycle:     cfg.Poll.MaxBetsPerCycle,
		Bankroll:        cfg.Staking.Bankroll,
		KellyFraction:   cfg.Staking.KellyFraction,
		MinStake:        cfg.Staking.MinStake,
		MaxStake:        cfg.Staking.MaxStake,
		FixedStake:      cfg.Staking.FixedStake,
		LowROIThreshold: cfg.Staking.LowROIThreshold,
	}, ledger, executor, trades, feedClient, gate)

	scheduler := bot.NewScheduler(bot.SchedulerConfig{
		Interval:    cfg.PollInterval(),
		JitterRatio: cfg.Poll.JitterRatio,
		BackoffBase: cfg.BackoffBase(),
		BackoffMax:  cfg.BackoffMax(),
		StopOnBlock: cfg.StopOnBlock(),
		Query: ports.CandidateQuery{
			WindowMinutes:          cfg.Feed.WindowMinutes,
			MinGrade:               domain.Grade(cfg.Feed.MinGrade),
			Limit:                  cfg.FetchLimit(),
			RequireMicrostructure:  cfg.Feed.RequireMicrostructure,
			MarketQualityThreshold: cfg.Feed.MarketQualityThreshold,
		},
	}, feedClient, pipeline, bot.NewGovernor(cfg.Poll.MaxCallsPerHour), gate, ledger,
		notify.NewConsole(*table), executor.Mode())

	runner := bot.NewRunner(scheduler)
	runner.Start(ctx)
	defer runner.Stop()

	if cfg.Control.Enabled {
		srv := control.NewServer(cfg.Control.Addr, cfg.Control.Token, runner, executor, ctx)
		if err := srv.ListenAndServe(ctx); err != nil {
			slog.Error("control server exited with error", "err", err)
			os.Exit(1)
		}
	} else {
		// Sin plano de control nadie puede rearrancar el loop: un
		// stop del scheduler (p.ej. stop-on-block) es terminal.
		select {
		case <-ctx.Done():
		case <-runner.Done():
			if err := runner.Err(); err != nil && ctx.Err() == nil {
				slog.Error("scheduler stopped, exiting", "err", err)
				os.Exit(1)
			}
		}
	}

	slog.Info("polywhaler stopped cleanly")
}

// buildExecutor elige entre el executor simulado y el live según la
// configuración. El live valida la private key al construirse.
func buildExecutor(cfg *config.Config) (ports.OrderExecutor, error) {
	if cfg.DryRun() {
		return polymarket.NewSimulated(), nil
	}
	auth, err := polymarket.NewAuthClient(
		cfg.Trading.CLOBBase,
		cfg.Trading.GammaBase,
		cfg.Trading.PrivateKey,
		cfg.Trading.ChainID,
	)
	if err != nil {
		return nil, err
	}
	return polymarket.NewTradingClient(auth), nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
