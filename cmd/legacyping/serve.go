package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/legacyping/internal/config"
	"github.com/woozymasta/legacyping/internal/fake"
	"github.com/woozymasta/legacyping/internal/geoip"
	"github.com/woozymasta/legacyping/internal/poller"
	"github.com/woozymasta/legacyping/internal/server"
	"github.com/woozymasta/legacyping/internal/storage"
)

func serve(cfg *config.Config) {
	log.Info().Msg("Starting legacyping service...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	targets, err := poller.ParseTargets(cfg.Poller.Targets)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid poll target")
	}

	geoProvider := openGeoIP(ctx, cfg.GeoIP)
	defer func() {
		if err := geoProvider.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing GeoIP provider")
		}
	}()

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	// Init server
	srvHandler := server.New(store, geoProvider, cfg)
	srvHandler.StartWorkers()

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srvHandler.Run(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5*time.Second + cfg.Query.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Background poller
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poller.New(targets, store, geoProvider, cfg.Poller, cfg.Query.Timeout).Run(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop workers (wait queue done)
	srvHandler.StopWorkers()
	<-pollDone

	log.Info().Msg("Server exited")
}

// openGeoIP returns nil when the database is disabled or unusable.
func openGeoIP(ctx context.Context, cfg config.GeoIP) *geoip.Provider {
	if cfg.Path == "" {
		log.Info().Msg("GeoIP disabled")
		return nil
	}

	log.Info().Msg("Checking GeoIP database...")
	if err := geoip.EnsureDB(ctx, cfg.Path, cfg.URL, cfg.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}

	provider, err := geoip.Open(cfg.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		return nil
	}

	return provider
}

// runFake serves random legacy status responses until interrupted.
func runFake(addr string) {
	srv, err := fake.Listen(addr, fake.RandomResponder(20))
	if err != nil {
		log.Fatal().Err(err).Str("address", addr).Msg("Failed to start fake server")
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		_ = srv.Close()
	}()

	log.Info().Str("address", srv.Address().String()).Msg("Fake legacy server listening")
	srv.Serve()
}
