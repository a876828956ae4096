// Package poller periodically queries a set of servers and records the results.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/legacyping/internal/config"
	"github.com/woozymasta/legacyping/internal/legacy"
	"github.com/woozymasta/legacyping/internal/models"
	"golang.org/x/time/rate"
)

// Recorder persists query results.
type Recorder interface {
	RecordResult(res models.Result) error
}

// CountryResolver maps a host to an ISO country code. Empty means unknown.
type CountryResolver interface {
	HostCountryCode(ctx context.Context, host string) string
}

// Poller runs rounds of status queries over a fixed target list.
type Poller struct {
	store   Recorder
	geo     CountryResolver
	limiter *rate.Limiter
	targets []legacy.Address

	timeout  time.Duration
	interval time.Duration
	workers  int
}

// Summary describes one finished round.
type Summary struct {
	RunID    string
	Duration time.Duration
	Total    int
	Online   int
	Failed   int
}

// New creates a poller. geo may be nil.
func New(targets []legacy.Address, store Recorder, geo CountryResolver, opts config.Poller, timeout time.Duration) *Poller {
	limit := rate.Inf
	burst := 1
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
		burst = max(1, int(opts.Rate))
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Poller{
		store:    store,
		geo:      geo,
		limiter:  rate.NewLimiter(limit, burst),
		targets:  targets,
		timeout:  timeout,
		interval: opts.Interval,
		workers:  workers,
	}
}

// ParseTargets parses "host[:port]" strings, dropping duplicates.
func ParseTargets(raw []string) ([]legacy.Address, error) {
	seen := make(map[uint64]struct{}, len(raw))
	targets := make([]legacy.Address, 0, len(raw))

	for _, s := range raw {
		addr, err := legacy.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", s, err)
		}

		hash := xxhash.Sum64String(addr.String())
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		targets = append(targets, addr)
	}

	return targets, nil
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	if len(p.targets) == 0 {
		log.Warn().Msg("No poll targets configured, poller idle")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce queries every target once using the worker pool.
func (p *Poller) RunOnce(ctx context.Context) Summary {
	start := time.Now()
	runID := uuid.NewString()

	jobs := make(chan legacy.Address, len(p.targets))
	var (
		wg     sync.WaitGroup
		online atomic.Int64
		failed atomic.Int64
	)

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range jobs {
				if err := p.limiter.Wait(ctx); err != nil {
					failed.Add(1)
					continue
				}

				res := Check(ctx, addr, p.timeout, p.geo)
				res.RunID = runID
				if res.Online {
					online.Add(1)
				} else {
					failed.Add(1)
				}

				if err := p.store.RecordResult(res); err != nil {
					log.Error().Err(err).Str("target", addr.String()).Msg("Failed to record result")
				}
			}
		}()
	}

	for _, addr := range p.targets {
		jobs <- addr
	}
	close(jobs)
	wg.Wait()

	summary := Summary{
		RunID:    runID,
		Duration: time.Since(start),
		Total:    len(p.targets),
		Online:   int(online.Load()),
		Failed:   int(failed.Load()),
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("total", summary.Total).
		Int("online", summary.Online).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Poll round finished")

	return summary
}

// Check queries one server and converts the outcome to a storable result.
// geo may be nil.
func Check(ctx context.Context, addr legacy.Address, timeout time.Duration, geo CountryResolver) models.Result {
	logCtx := log.With().
		Str("host", addr.Host).
		Uint16("port", addr.Port).
		Logger()

	start := time.Now()
	status, err := legacy.Query(ctx, addr, timeout)
	latency := time.Since(start)

	res := models.Result{
		CheckedAt: start.UTC(),
		Host:      addr.Host,
		Port:      int(addr.Port),
		Latency:   latency,
	}

	if geo != nil {
		res.CountryCode = geo.HostCountryCode(ctx, addr.Host)
	}

	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = legacy.Kind(err)
		logCtx.Debug().Err(err).Str("kind", res.ErrorKind).Dur("latency", latency).Msg("Status query failed")
		return res
	}

	res.Online = true
	res.MOTD = status.MOTD
	res.Protocol = status.Protocol
	res.Version = status.Version
	res.Players = status.Players
	res.MaxPlayers = status.MaxPlayers

	logCtx.Trace().
		Int("players", status.Players).
		Int("max_players", status.MaxPlayers).
		Dur("latency", latency).
		Msg("Status query succeeded")

	return res
}
