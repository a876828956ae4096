// Package maintenance provide tools for cleaning the database.
package maintenance

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/legacyping/internal/config"
)

// Pruner is the subset of storage used by maintenance tasks.
type Pruner interface {
	DeleteSamplesBefore(t time.Time) (int64, error)
	DeleteOfflineServers() (int64, error)
}

// Run checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(cfg *config.Config, store Pruner) bool {
	if !cfg.Maintenance() {
		return false
	}

	if age := cfg.Storage.PruneSamples; age > 0 {
		before := time.Now().Add(-age)
		log.Info().Time("before", before).Msg("Pruning old samples...")

		count, err := store.DeleteSamplesBefore(before)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune samples")
		} else {
			log.Info().Int64("deleted", count).Msg("Sample prune finished")
		}
	}

	if cfg.Storage.PruneOffline {
		log.Info().Msg("Pruning servers never seen online...")

		count, err := store.DeleteOfflineServers()
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune servers")
		} else {
			log.Info().Int64("deleted", count).Msg("Server prune finished")
		}
	}

	return true
}
