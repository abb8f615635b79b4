package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"volume_maker/internal/config"
	"volume_maker/internal/engine"
	"volume_maker/internal/exchange"
	"volume_maker/internal/infrastructure/metrics"
	"volume_maker/internal/journal"
	"volume_maker/internal/oracle"
	"volume_maker/internal/safety"
	"volume_maker/internal/trading/book"
	"volume_maker/internal/trading/tracker"
	"volume_maker/pkg/concurrency"
	"volume_maker/pkg/liveserver"
	"volume_maker/pkg/logging"
	"volume_maker/pkg/telemetry"

	"github.com/shopspring/decimal"
)

var configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		*configFile = envConfig
	}

	// Load configuration (default config runs against the mock exchange)
	cfg := config.DefaultConfig()
	if _, err := os.Stat(*configFile); err == nil {
		loadedCfg, err := config.LoadConfig(*configFile)
		if err != nil {
			bootLogger, _ := logging.NewZapLogger("INFO")
			bootLogger.Fatal("Failed to load config file", "file", *configFile, "error", err)
		}
		cfg = loadedCfg
	}

	// Telemetry before the logger so the otelzap bridge attaches
	tel, err := telemetry.Setup("volume_maker")
	if err != nil {
		bootLogger, _ := logging.NewZapLogger("INFO")
		bootLogger.Fatal("Failed to initialize telemetry", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logging.GetGlobalLogger().Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		logger, _ = logging.NewZapLogger("INFO")
		logger.Warn("Invalid log level, falling back to INFO", "level", cfg.System.LogLevel)
	}
	logging.SetGlobalLogger(logger)
	defer logger.Sync()

	logger.Info("Starting volume maker",
		"exchange", cfg.App.Exchange,
		"symbol", cfg.Trading.Symbol,
		"config", cfg.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Exchange and reference price source
	exch, err := exchange.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize exchange", "error", err)
	}
	priceOracle, err := oracle.New(cfg.Oracle, exch, cfg.Trading.Symbol)
	if err != nil {
		logger.Fatal("Failed to initialize price oracle", "error", err)
	}

	// Preflight checks are advisory; a degraded start is logged, not fatal
	checkCtx, checkCancel := context.WithTimeout(rootCtx, 30*time.Second)
	for _, res := range safety.NewChecker(exch, cfg, logger).Run(checkCtx) {
		if !res.OK() {
			logger.Warn("Preflight check failed", "check", res.Name, "error", res.Err)
		}
	}
	checkCancel()

	// Trading loops
	records := book.NewRecordSet()
	maintainer := book.NewMaintainer(maintainerConfig(cfg), exch, priceOracle, records,
		book.NewRandomJitter(cfg.Trading.WashPriceJitter, cfg.Trading.WashSizeJitter), logger)
	fillTracker := tracker.NewTracker(tracker.Config{
		Symbol:     cfg.Trading.Symbol,
		BaseSpread: decimal.NewFromFloat(cfg.Trading.BaseSpread),
		BatchSize:  cfg.Timing.PollBatchSize,
	}, exch, records, logger)

	// Optional fill journal
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			logger.Fatal("Failed to open fill journal", "path", cfg.Journal.Path, "error", err)
		}
		defer j.Close()
		fillTracker.SetJournal(j)
		logger.Info("Fill journal enabled", "path", cfg.Journal.Path)
	}

	// Optional websocket live server, broadcasting through a bounded pool so a
	// slow observer never stalls the tracker loop
	broadcastPool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "Broadcast",
		MaxWorkers:  4,
		MaxCapacity: 256,
		NonBlocking: true,
	}, logger)
	defer broadcastPool.Stop()

	var liveSrv *liveserver.Server
	if cfg.LiveServer.Enabled {
		hub := liveserver.NewHub(logger)
		go hub.Run(rootCtx)
		liveSrv = liveserver.NewServer(hub, logger, cfg.LiveServer.AllowedOrigins)
		go func() {
			if err := liveSrv.Start(rootCtx, cfg.LiveServer.Addr); err != nil {
				logger.Error("Live server failed", "error", err)
			}
		}()
		fillTracker.SetOnFill(func(f tracker.Fill) {
			if err := broadcastPool.Submit(func() {
				liveSrv.Broadcast(liveserver.NewFillMessage(f))
			}); err != nil {
				logger.Warn("Dropped fill broadcast", "error", err)
			}
		})
	}

	// Metrics scrape endpoint
	var metricsSrv *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsSrv = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsSrv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Stop(ctx)
		}()
	}

	eng := engine.New(engine.Config{
		Symbol:       cfg.Trading.Symbol,
		CancelOnExit: cfg.System.CancelOnExit,
	}, exch, maintainer, fillTracker,
		engine.NewIntervalTicker(time.Duration(cfg.Timing.PlaceIntervalMs)*time.Millisecond),
		engine.NewIntervalTicker(time.Duration(cfg.Timing.PollIntervalMs)*time.Millisecond),
		logger)

	if cfg.Timing.StatusIntervalMs > 0 {
		eng.SetStatusReporter(
			engine.NewIntervalTicker(time.Duration(cfg.Timing.StatusIntervalMs)*time.Millisecond),
			func() {
				snap := fillTracker.Stats().Snapshot()
				logger.Info("Status",
					"total_volume", snap.TotalVolume.String(),
					"buy_volume", snap.BuyVolume.String(),
					"sell_volume", snap.SellVolume.String(),
					"real_fills", snap.RealFills,
					"wash_fills", snap.WashFills,
					"total_profit", snap.TotalProfit.String(),
					"best_profit", snap.BestProfit.String(),
					"open_orders", records.Len(),
					"pool", broadcastPool.Stats())
				if liveSrv != nil {
					broadcastPool.Submit(func() {
						liveSrv.Broadcast(liveserver.NewStatsMessage(snap))
						liveSrv.Broadcast(liveserver.NewOrdersMessage(records.All()))
					})
				}
			})
	}

	if err := eng.Run(rootCtx); err != nil {
		logger.Error("Engine shutdown reported errors", "error", err)
	}
	logger.Info("Volume maker stopped")
}

func maintainerConfig(cfg *config.Config) book.Config {
	t := cfg.Trading
	return book.Config{
		Symbol:              t.Symbol,
		QuoteAsset:          t.QuoteAsset,
		TargetOrdersPerSide: t.TargetOrdersPerSide,
		ExcessCeiling:       t.ExcessCeiling,
		TargetDepthNotional: decimal.NewFromFloat(t.TargetDepthNotional),
		BaseSpread:          decimal.NewFromFloat(t.BaseSpread),
		SpreadStep:          decimal.NewFromFloat(t.SpreadStep),
		FeeBuffer:           decimal.NewFromFloat(t.FeeBuffer),
		MinFreeThreshold:    decimal.NewFromFloat(t.MinFreeThreshold),
		UsableFraction:      decimal.NewFromFloat(t.UsableFraction),
		MaxOrderNotional:    decimal.NewFromFloat(t.MaxOrderNotional),
		MinOrderNotional:    decimal.NewFromFloat(t.MinOrderNotional),
		WashPairsPerCycle:   t.WashPairsPerCycle,
		PriceDecimals:       t.PriceDecimals,
		QuantityDecimals:    t.QuantityDecimals,
		OrderPace:           time.Duration(cfg.Timing.OrderPaceMs) * time.Millisecond,
	}
}
