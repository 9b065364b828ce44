package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"tradeEngine/config"
	"tradeEngine/internal/adapters/binancegw"
	"tradeEngine/internal/adapters/logger"
	"tradeEngine/internal/adapters/memgw"
	"tradeEngine/internal/adapters/sqlite"
	"tradeEngine/internal/engine"
	"tradeEngine/internal/eventbus"
	"tradeEngine/internal/ledger"
	"tradeEngine/internal/persist"
	"tradeEngine/internal/ports"
	"tradeEngine/internal/recorder"
	"tradeEngine/internal/risk"
	"tradeEngine/internal/runtime"
	"tradeEngine/internal/strategies"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Event Bus
	bus, err := eventbus.New(eventbus.Config{
		Logger:        appLogger,
		QueueSize:     cfg.EventQueueSize,
		TimerInterval: cfg.TimerInterval,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize event bus: %v", err)
	}
	appLogger.AttachBus(bus)

	// 4. Initialize Store and Persistence Worker
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize document store")
		log.Fatalf("FATAL: Failed to initialize document store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing document store")
		}
	}()

	worker, err := persist.NewWorker(persist.Config{
		Logger:    appLogger,
		Store:     store,
		QueueSize: cfg.PersistQueueSize,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize persistence worker")
		log.Fatalf("FATAL: Failed to initialize persistence worker: %v", err)
	}

	// 5. Initialize Position Ledger and Risk Manager
	book, err := ledger.New(ledger.Config{
		Logger:               appLogger,
		SplitCloseExchanges:  cfg.SplitCloseExchanges,
		TodayPenaltyProducts: cfg.TodayPenaltyProducts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize position ledger")
		log.Fatalf("FATAL: Failed to initialize position ledger: %v", err)
	}

	riskManager, err := risk.NewManager(risk.Config{
		MaxOrderVolume: cfg.RiskMaxOrderVolume,
		MaxTotalOrders: cfg.RiskMaxTotalOrders,
		MaxFlowCount:   cfg.RiskMaxFlowCount,
		MaxCancelCount: cfg.RiskMaxCancelCount,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize risk manager")
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}

	// 6. Register Strategy Classes
	registry := runtime.NewRegistry()
	strategies.RegisterAll(registry)

	// 7. Initialize the Engine
	eng, err := engine.New(engine.Config{
		Logger:   appLogger,
		Bus:      bus,
		Ledger:   book,
		Risk:     riskManager,
		Registry: registry,
		Worker:   worker,
		Store:    store,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize engine")
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}

	// 8. Initialize Gateway
	var gw ports.Gateway
	switch cfg.Gateway {
	case config.GatewayBinance:
		gw, err = binancegw.New(binancegw.Config{
			APIKey:               cfg.APIKey,
			SecretKey:            cfg.SecretKey,
			UseTestnet:           cfg.IsTestnet,
			Logger:               appLogger,
			Publisher:            bus,
			Symbols:              cfg.Symbols,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
	default:
		gw, err = memgw.New(memgw.Config{
			Logger:    appLogger,
			Publisher: bus,
		})
	}
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize gateway")
		log.Fatalf("FATAL: Failed to initialize gateway: %v", err)
	}
	eng.AddGateway(gw)

	// 9. Initialize the Tick Recorder
	tickRecorder, err := recorder.New(recorder.Config{
		Logger: appLogger,
		Worker: worker,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize tick recorder")
		log.Fatalf("FATAL: Failed to initialize tick recorder: %v", err)
	}
	tickRecorder.Register(bus)

	// 10. Start the Engine and Load Strategies
	ctx := context.Background()
	eng.Start(ctx)

	strategyConfigs, err := config.LoadStrategies(cfg.StrategiesFile)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load strategy configuration")
		eng.Stop()
		log.Fatalf("FATAL: Failed to load strategy configuration: %v", err)
	}
	for _, sc := range strategyConfigs {
		if err := eng.LoadStrategy(sc); err != nil {
			appLogger.Warn(ctx, "Strategy not loaded", map[string]interface{}{"name": sc.Name, "error": err.Error()})
		}
	}
	eng.InitStrategies()
	eng.StartStrategies()
	appLogger.Info(ctx, "Engine running", map[string]interface{}{"strategies": len(eng.Runtime().Names()), "gateway": gw.Name()})

	// 11. Wait for Shutdown Signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLogger.Info(ctx, "Shutdown signal received", map[string]interface{}{"signal": sig.String()})

	eng.Stop()
	appLogger.Info(ctx, "Application finished gracefully.")
}
