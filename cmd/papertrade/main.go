// Command papertrade runs the engine against the in-process simulated
// gateway with a synthetic random-walk price feed. It exercises the whole
// pipeline end to end without touching a real venue.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeEngine/internal/adapters/logger"
	"tradeEngine/internal/adapters/memgw"
	"tradeEngine/internal/domain"
	"tradeEngine/internal/engine"
	"tradeEngine/internal/eventbus"
	"tradeEngine/internal/ledger"
	"tradeEngine/internal/risk"
	"tradeEngine/internal/runtime"
	"tradeEngine/internal/strategies"
)

func main() {
	var (
		instrument = flag.String("instrument", "ETHUSDT.SIM", "instrument id to trade")
		startPrice = flag.Float64("price", 2000, "starting price of the random walk")
		interval   = flag.Duration("interval", 100*time.Millisecond, "tick interval")
		className  = flag.String("strategy", "DoubleMA", "strategy class to run")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "random walk seed")
	)
	flag.Parse()

	appLogger := logger.NewStdLogger(logger.LevelInfo)
	ctx := context.Background()

	bus, err := eventbus.New(eventbus.Config{Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize event bus: %v", err)
	}

	book, err := ledger.New(ledger.Config{Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize position ledger: %v", err)
	}
	riskManager, err := risk.NewManager(risk.Config{}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}

	registry := runtime.NewRegistry()
	strategies.RegisterAll(registry)

	eng, err := engine.New(engine.Config{
		Logger:   appLogger,
		Bus:      bus,
		Ledger:   book,
		Risk:     riskManager,
		Registry: registry,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}

	gw, err := memgw.New(memgw.Config{
		Logger:    appLogger,
		Publisher: bus,
		Contracts: []domain.Contract{{
			Instrument: *instrument,
			Symbol:     *instrument,
			Exchange:   "SIM",
			Size:       1,
			PriceTick:  0.01,
		}},
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize simulated gateway: %v", err)
	}
	eng.AddGateway(gw)
	eng.Start(ctx)

	if err := eng.LoadStrategy(runtime.StrategyConfig{
		Name:       "paper",
		ClassName:  *className,
		Instrument: *instrument,
	}); err != nil {
		log.Fatalf("FATAL: Failed to load strategy: %v", err)
	}
	eng.InitStrategies()
	eng.StartStrategies()

	// Synthetic feed: a random walk around the starting price.
	feedStop := make(chan struct{})
	go func() {
		rng := rand.New(rand.NewSource(*seed))
		price := *startPrice
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-feedStop:
				return
			case <-ticker.C:
				price += (rng.Float64() - 0.5) * price * 0.001
				now := time.Now().UTC()
				tick := domain.Tick{
					Instrument: *instrument,
					Symbol:     *instrument,
					Exchange:   "SIM",
					LastPrice:  price,
					LastVolume: 1,
					Date:       now.Format("20060102"),
					Time:       now.Format("15:04:05.000"),
					Timestamp:  now,
				}
				for i := 0; i < domain.DepthLevels; i++ {
					tick.BidPrice[i] = price - 0.01*float64(i+1)
					tick.AskPrice[i] = price + 0.01*float64(i+1)
					tick.BidVolume[i] = 10
					tick.AskVolume[i] = 10
				}
				gw.PushTick(tick)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(feedStop)
	eng.Stop()

	snapshot := eng.PositionSnapshot(*instrument)
	net, _ := eng.Runtime().NetPosition("paper")
	appLogger.Info(ctx, "Final position", map[string]interface{}{
		"instrument": *instrument,
		"long":       snapshot.Long.Position,
		"short":      snapshot.Short.Position,
		"netTarget":  net,
	})
}
