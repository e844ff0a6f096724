package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradearena/config"
	"tradearena/internal/adapters/binanceclient"
	"tradearena/internal/adapters/decision"
	"tradearena/internal/adapters/logger"
	"tradearena/internal/adapters/natsbus"
	"tradearena/internal/adapters/sqlite"
	"tradearena/internal/app"
	"tradearena/internal/domain"
	"tradearena/internal/ledger"
	"tradearena/internal/ports"
	"tradearena/internal/simulator"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	switch cfg.LogBackend {
	case "text":
		appLogger = logger.NewTextLogger(cfg.LogLevel)
	case "console":
		appLogger = logger.NewZerologConsoleLogger(cfg.LogLevel)
	default:
		appLogger = logger.NewZerologLogger(cfg.LogLevel)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "backend": cfg.LogBackend})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	if err := seedDefaultStrategies(context.Background(), repo, appLogger); err != nil {
		log.Fatalf("FATAL: Failed to seed default strategies: %v", err)
	}

	// 4. Initialize Market Data Source (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 5. Initialize Event Broadcaster
	var broadcaster ports.EventBroadcaster = natsbus.Noop{}
	if cfg.NATSURL != "" {
		bus, err := natsbus.New(natsbus.Config{URL: cfg.NATSURL, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to connect to NATS: %v", err)
		}
		defer bus.Close()
		broadcaster = bus
	} else {
		appLogger.Info(context.Background(), "No NATS_URL configured, event broadcasting disabled")
	}

	// 6. Initialize Portfolio Ledger
	book, err := ledger.New(ledger.Config{
		StartingCash:   cfg.StartingCash,
		CommissionRate: cfg.CommissionRate,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize portfolio ledger: %v", err)
	}

	// 7. Initialize Execution Simulator
	simCfg := simulator.DefaultConfig()
	if cfg.MaxOrderValueUSD > 0 {
		simCfg.MaxOrderValueUSD = cfg.MaxOrderValueUSD
	}
	if cfg.RejectionProbability > 0 {
		simCfg.BaseRejectionProbability = cfg.RejectionProbability
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sim, err := simulator.New(simCfg, rng, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize execution simulator: %v", err)
	}

	// 8. Initialize Decision Invoker
	invoker, err := decision.NewRandomInvoker(appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize decision invoker: %v", err)
	}

	// 9. Initialize Application Service
	service, err := app.NewService(
		cfg,
		appLogger,
		binanceClient,
		invoker,
		sim,
		book,
		repo,
		repo,
		repo,
		broadcaster,
	)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	// 10. Metrics endpoint (optional)
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			appLogger.Info(context.Background(), "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				appLogger.Error(context.Background(), err, "Metrics endpoint failed")
			}
		}()
	}

	// 11. Start the Service
	if err := service.Run(context.Background()); err != nil {
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// seedDefaultStrategies creates a small default agent roster on first run so
// a fresh database produces activity immediately. Modes alternate so each
// trigger style is exercised.
func seedDefaultStrategies(ctx context.Context, strategies ports.StrategyRepository, appLogger ports.Logger) error {
	existing, err := strategies.ListStrategies(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	defaults := []domain.AgentStrategyConfig{
		{AgentID: 1, TriggerMode: domain.TriggerRealtime, PriceThresholdPct: 0.01, Enabled: true},
		{AgentID: 2, TriggerMode: domain.TriggerInterval, IntervalSeconds: 150, Enabled: true},
		{AgentID: 3, TriggerMode: domain.TriggerTickBatch, TickBatchSize: 100, Enabled: true},
	}
	for i := range defaults {
		if err := strategies.UpsertStrategy(ctx, &defaults[i]); err != nil {
			return err
		}
	}
	appLogger.Info(ctx, "Seeded default agent strategies", map[string]interface{}{"count": len(defaults)})
	return nil
}
