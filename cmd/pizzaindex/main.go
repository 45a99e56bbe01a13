package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/pizzaindex/internal/config"
	"github.com/rewired-gh/pizzaindex/internal/engine"
	"github.com/rewired-gh/pizzaindex/internal/logger"
	"github.com/rewired-gh/pizzaindex/internal/market"
	"github.com/rewired-gh/pizzaindex/internal/models"
	"github.com/rewired-gh/pizzaindex/internal/places"
	"github.com/rewired-gh/pizzaindex/internal/server"
	"github.com/rewired-gh/pizzaindex/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	defs, err := cfg.SensorDefinitions()
	if err != nil {
		logger.Fatal("Invalid sensor configuration: %v", err)
	}

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	placesClient := places.NewClient(
		cfg.Places.BaseURL,
		cfg.Places.Timeout,
		cfg.Places.MaxRetries,
		cfg.Places.RetryDelayBase,
	)
	marketClient := market.NewClient(cfg.Market.BaseURL, cfg.Market.Timeout)

	dashboard := server.New(cfg.Server, cfg.Market, defs, store, marketClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	dashboard.Start(serverErr)

	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cleaning up...")
		case err := <-serverErr:
			logger.Error("Dashboard server failed: %v", err)
		}
		cancel()
	}()

	discoverPlaces(ctx, defs, placesClient, store, cfg.Places.FetchDelay)

	logger.Info("Starting polling service (interval: %v, sensors: %d)",
		cfg.PollInterval, len(defs))

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Polling cycle failed: %v", err)
		} else {
			if consecutiveFailures > 0 {
				logger.Info("Polling recovered after %d consecutive failure(s)", consecutiveFailures)
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial polling cycle")
	handleCycleResult(runPollCycle(ctx, defs, placesClient, store, dashboard, cfg.Places.FetchDelay))

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := dashboard.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Dashboard shutdown: %v", err)
			}
			shutdownCancel()
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled polling cycle")
			handleCycleResult(runPollCycle(ctx, defs, placesClient, store, dashboard, cfg.Places.FetchDelay))
		}
	}
}

// discoverPlaces resolves each sensor's venue once and caches it. A failed
// discovery is logged and retried implicitly on the next restart; the
// popularity fetch works from the query string either way.
func discoverPlaces(ctx context.Context, defs []models.SensorDefinition, client *places.Client, store *storage.Storage, delay time.Duration) {
	for _, def := range defs {
		if ctx.Err() != nil {
			return
		}
		cached, err := store.GetPlace(def.ID)
		if err != nil {
			logger.Warn("Failed to read place cache for %s: %v", def.ID, err)
		}
		if cached != nil {
			logger.Debug("Sensor %s already resolved to %q", def.ID, cached.Name)
			continue
		}

		place, err := client.Resolve(ctx, def.ID, def.Query)
		if err != nil {
			logger.Warn("Failed to resolve sensor %s: %v", def.ID, err)
			continue
		}
		if err := store.SavePlace(place); err != nil {
			logger.Warn("Failed to cache place for %s: %v", def.ID, err)
			continue
		}
		logger.Info("Resolved sensor %s to %q (%s)", def.ID, place.Name, place.Address)
		pause(ctx, delay)
	}
}

// runPollCycle fetches one reading per sensor, assembles a snapshot, and
// persists it. Per-sensor fetch failures become indeterminate readings and
// never abort the batch; a batch with zero determinate sensors keeps the
// previous snapshot in place.
func runPollCycle(
	ctx context.Context,
	defs []models.SensorDefinition,
	client *places.Client,
	store storage.SnapshotStore,
	dashboard *server.Server,
	fetchDelay time.Duration,
) error {
	startTime := time.Now()
	logger.Info("Starting polling cycle")

	capturedAt := time.Now()
	readings := make([]models.SensorReading, 0, len(defs))
	determinate := 0
	for i, def := range defs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 {
			pause(ctx, fetchDelay)
		}

		reading := models.SensorReading{SensorID: def.ID}
		pop, err := client.FetchPopularity(ctx, def.Query, capturedAt)
		if err != nil {
			logger.Warn("Sensor %s fetch failed, treating as indeterminate: %v", def.ID, err)
		} else {
			reading.Live = pop.Current
			reading.Usual = pop.Usual
			reading.Hourly = pop.Hourly
		}
		if reading.Determinate() {
			determinate++
		}
		readings = append(readings, reading)
	}

	dashboard.SetReadings(readings, capturedAt)
	logger.Debug("Collected %d readings (%d determinate)", len(readings), determinate)

	snapshot, err := engine.Assemble(defs, readings, capturedAt)
	if errors.Is(err, engine.ErrInsufficientData) {
		logger.Info("No determinate sensors this cycle, keeping previous snapshot")
		return nil
	}
	if err != nil {
		return err
	}

	if err := store.Put(snapshot); err != nil {
		return err
	}

	logger.Info("Snapshot %s: composite=%.1f level=%s sensors=%d (cycle took %v)",
		snapshot.ID, snapshot.CompositeScore, snapshot.Level, len(snapshot.Deviations),
		time.Since(startTime))
	return nil
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
