// Package server implements the HTTP API, middleware, and background check workers.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/woozymasta/legacyping/internal/config"
	"github.com/woozymasta/legacyping/internal/poller"
)

const (
	queueSize = 1000
	workers   = 10

	// lookupTimeout is added to the query timeout for the country lookup of a queued check.
	lookupTimeout = 5 * time.Second
)

// New creates a new Server instance with the provided storage, country resolver, and configuration.
// geo may be nil.
func New(store Store, geo poller.CountryResolver, cfg *config.Config) *Server {
	hostMap := make(map[uint64]struct{})
	for _, host := range cfg.Server.AllowedHosts {
		hostMap[hashHost(host)] = struct{}{}
	}

	return &Server{
		storage:        store,
		geo:            geo,
		allowedHosts:   hostMap,
		authToken:      cfg.Server.AuthToken,
		timeout:        cfg.Query.Timeout,
		jobTimeout:     cfg.Query.Timeout + lookupTimeout,
		trustProxy:     cfg.Server.TrustProxy,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
		softLimitDur:   cfg.RateLimit.SoftLimitDur,

		queue:    make(chan checkJob, queueSize),
		shutdown: make(chan struct{}),
	}
}

// StartWorkers initializes the background worker pool for check jobs
// and the cache cleanup routine.
func (s *Server) StartWorkers() {
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	go s.gcSoftLimitCache()
}

// StopWorkers gracefully stops the background workers and closes the job queue.
func (s *Server) StopWorkers() {
	close(s.shutdown)
	close(s.queue)
	s.wg.Wait()
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/status", s.RateLimitMiddleware(http.HandlerFunc(s.handleStatus)))
	mux.Handle("GET /api/version", http.HandlerFunc(handleVersion))

	mux.Handle("POST /api/check", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleCheck)))
	mux.Handle("GET /api/servers", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleServers)))
	mux.Handle("GET /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleGetServer)))
	mux.Handle("DELETE /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleDeleteServer)))

	return s.LoggingMiddleware(mux)
}

// hostAllowed reports whether live queries may target host.
func (s *Server) hostAllowed(host string) bool {
	if len(s.allowedHosts) == 0 {
		return true
	}
	_, ok := s.allowedHosts[hashHost(host)]
	return ok
}

func hashHost(host string) uint64 {
	return xxhash.Sum64String(strings.ToLower(strings.TrimSpace(host)))
}

// gcSoftLimitCache periodically cleans up expired entries from the soft limit cache.
func (s *Server) gcSoftLimitCache() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			now := time.Now()
			s.seenCache.Range(func(key, value any) bool {
				if t, ok := value.(time.Time); !ok || now.Sub(t) > s.softLimitDur {
					s.seenCache.Delete(key)
				}
				return true
			})
		}
	}
}
