package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/solterm/trading-core/internal/alerts"
	"github.com/solterm/trading-core/internal/api"
	"github.com/solterm/trading-core/internal/autonomous"
	"github.com/solterm/trading-core/internal/cache"
	"github.com/solterm/trading-core/internal/engine"
	"github.com/solterm/trading-core/internal/events"
	"github.com/solterm/trading-core/internal/execution"
	"github.com/solterm/trading-core/internal/launchpad"
	"github.com/solterm/trading-core/internal/marketdata"
	"github.com/solterm/trading-core/internal/metrics"
	"github.com/solterm/trading-core/internal/ml"
	"github.com/solterm/trading-core/internal/providers"
	"github.com/solterm/trading-core/internal/store"
	"github.com/solterm/trading-core/pkg/types"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (optional, env vars apply either way)")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	logger, err := setupLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := types.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	bus := events.NewBus(logger, 256, 2)
	bus.SetDropHook(m.EventsDropped.Inc)
	bus.Start(ctx)

	orch, err := providers.New(logger, cfg.Providers, m)
	if err != nil {
		logger.Fatal("failed to configure providers", zap.Error(err))
	}
	orch.SetOnSwitch(func(name string, tier types.ProviderTier, free bool) {
		logger.Warn("primary providers exhausted, trying fallback",
			zap.String("provider", name),
			zap.String("tier", string(tier)),
			zap.Bool("free", free))
	})

	var backend execution.Backend
	if cfg.Engine.Mode == types.ModeLive {
		backend, err = execution.NewHTTPBackend(cfg.Backend, logger)
		if err != nil {
			logger.Fatal("live mode needs an execution backend", zap.Error(err))
		}
	} else {
		backend = execution.NewSimulator(logger)
	}

	scanners := make([]launchpad.Scanner, 0, len(cfg.Engine.Platforms))
	for _, p := range cfg.Engine.Platforms {
		switch p {
		case types.PlatformPumpFun:
			scanners = append(scanners, launchpad.NewPumpFun("", "", logger))
		case types.PlatformBonkFun:
			scanners = append(scanners, launchpad.NewBonkFun("", "", logger))
		default:
			logger.Warn("unknown platform in config, skipping", zap.String("platform", string(p)))
		}
	}

	eng, err := engine.New(cfg.Engine, backend, scanners, bus, m, logger)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}
	if cfg.Engine.UseAIAnalysis {
		// When the backend has no analysis endpoint, the provider
		// orchestrator serves the AI overlay instead.
		eng.SetAnalyzer(providers.NewTokenAnalyzer(orch, logger))
	}

	st, err := store.New(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal("failed to open data dir", zap.Error(err))
	}

	agent := autonomous.NewAgent(cfg.Agent, eng, st, bus, m, logger)
	eng.SetOnPositionClosed(agent.OnPositionClosed)

	md := marketdata.NewClient(cfg.MarketData, logger)
	resultCache := cache.New(cfg.Cache, logger)
	defer resultCache.Close()

	alertManager := alerts.NewManager(cfg.Alerts, marketSource{md}, alerts.Analyzers{
		Patterns:  ml.NewTrendRecognizer(logger),
		Sentiment: ml.NewCompositeSentiment(logger),
		Anomaly:   ml.NewZScoreDetector(logger),
	}, resultCache, bus, m, logger)
	alertManager.SetOnTrigger(func(a alerts.Alert) {
		logger.Info("notification",
			zap.String("alert", a.ID),
			zap.String("symbol", a.Symbol),
			zap.String("message", a.Message))
	})

	server := api.NewServer(cfg.Server, api.Deps{
		Engine:    eng,
		Agent:     agent,
		Alerts:    alertManager,
		Providers: orch,
		Metrics:   m,
		Bus:       bus,
	}, logger)

	if err := eng.Start(ctx); err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}
	if err := agent.Start(ctx); err != nil {
		logger.Fatal("failed to start agent", zap.Error(err))
	}
	if err := server.Start(ctx); err != nil {
		logger.Fatal("failed to start http server", zap.Error(err))
	}

	logger.Info("trading core up",
		zap.String("mode", string(cfg.Engine.Mode)),
		zap.Int("platforms", len(scanners)),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", zap.String("signal", sig.String()))

	eng.Stop()
	agent.Stop()
	alertManager.Stop()
	if err := server.Stop(context.Background()); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	bus.Stop()
	cancel()
	logger.Info("shutdown complete")
}

// marketSource adapts the market data client to the alert engine's source.
type marketSource struct {
	c *marketdata.Client
}

func (s marketSource) Quote(ctx context.Context, symbol string) (*types.Quote, error) {
	return s.c.GetQuote(ctx, symbol)
}

func (s marketSource) History(ctx context.Context, symbol string) ([]types.HistoricalPoint, error) {
	return s.c.GetHistoricalQuotes(ctx, symbol, "1h", 48)
}

func setupLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		lvl,
	)
	return zap.New(core, zap.AddCaller()), nil
}
