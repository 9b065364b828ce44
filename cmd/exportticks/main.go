// Command exportticks dumps the ticks recorded for one instrument into a
// CSV file for offline analysis.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"

	"tradeEngine/internal/adapters/logger"
	"tradeEngine/internal/adapters/sqlite"
	"tradeEngine/internal/domain"
	"tradeEngine/internal/utils"
)

func main() {
	var (
		dbPath     = flag.String("db", "./data/trade_engine.db", "path to the engine database")
		instrument = flag.String("instrument", "", "instrument id to export (required)")
		outPath    = flag.String("out", "ticks.csv", "output CSV file")
	)
	flag.Parse()

	if *instrument == "" {
		log.Fatal("FATAL: -instrument is required")
	}

	appLogger := logger.NewStdLogger(logger.LevelInfo)
	store, err := sqlite.NewStore(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	var ticks []domain.Tick
	err = store.Scan(ctx, "ticks."+*instrument, func(key string, doc []byte) error {
		var tick domain.Tick
		if err := json.Unmarshal(doc, &tick); err != nil {
			appLogger.Warn(ctx, "Skipping undecodable tick", map[string]interface{}{"key": key, "error": err.Error()})
			return nil
		}
		ticks = append(ticks, tick)
		return nil
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to scan recorded ticks: %v", err)
	}

	if err := utils.WriteTicksToCSV(ticks, *outPath); err != nil {
		log.Fatalf("FATAL: Failed to write CSV: %v", err)
	}
	appLogger.Info(ctx, "Export complete", map[string]interface{}{"instrument": *instrument, "ticks": len(ticks), "file": *outPath})
}
