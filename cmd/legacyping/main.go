// main is the entry point of the legacyping application.
// It queries servers once, runs the HTTP API with the poller, or executes maintenance tasks.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/legacyping/internal/config"
	"github.com/woozymasta/legacyping/internal/logger"
	"github.com/woozymasta/legacyping/internal/maintenance"
	"github.com/woozymasta/legacyping/internal/storage"
)

func main() {
	cfg := config.Parse()

	closeLog := logger.Setup(cfg.Logger)
	defer closeLog()

	switch {
	case cfg.FakeListen != "":
		runFake(cfg.FakeListen)
	case cfg.Maintenance():
		runMaintenance(cfg)
	case cfg.Server.Serve:
		serve(cfg)
	default:
		if failed := queryOnce(cfg, os.Stdout); failed > 0 {
			closeLog()
			os.Exit(1)
		}
	}
}

func runMaintenance(cfg *config.Config) {
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	maintenance.Run(cfg, store)
}
