// Command recalld is the minimal process that keeps a Recall service
// warm: it opens the engine against a data root, runs the periodic
// maintenance sweep on a fixed interval, and shuts down cleanly on
// SIGINT/SIGTERM. The HTTP surface, CLI, and MCP wrapper that would
// normally front this process are out of scope and live elsewhere; this
// binary only proves the wiring from cmd down to internal/engine.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kittclouds/recall"
	"github.com/kittclouds/recall/internal/obs"
)

func main() {
	dataRoot := flag.String("data-root", envOr("RECALL_DATA_ROOT", "./data"), "directory holding config/, data/, cache/ and logs/")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "zerolog level")
	maintenanceEvery := flag.Duration("maintenance-interval", 5*time.Minute, "how often to run the periodic maintenance sweep")
	flag.Parse()

	log := obs.New(*dataRoot, *logLevel)

	svc, err := recall.Open(*dataRoot, log)
	if err != nil {
		log.Fatal().Err(err).Str("data_root", *dataRoot).Msg("failed to open recall service")
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error().Err(err).Msg("error closing recall service")
		}
	}()

	log.Info().Str("data_root", *dataRoot).Dur("maintenance_interval", *maintenanceEvery).Msg("recalld started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runMaintenanceLoop(gctx, svc, *maintenanceEvery, log)
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		log.Error().Err(err).Msg("recalld exiting with error")
	}
	log.Info().Msg("recalld shutting down")
}

func runMaintenanceLoop(ctx context.Context, svc *recall.Service, every time.Duration, log zerolog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			log.Debug().Msg("running maintenance sweep")
			svc.RunMaintenance(ctx)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
