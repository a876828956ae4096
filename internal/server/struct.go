package server

import (
	"sync"
	"time"

	"github.com/woozymasta/legacyping/internal/legacy"
	"github.com/woozymasta/legacyping/internal/models"
	"github.com/woozymasta/legacyping/internal/poller"
)

// Store is the persistence layer used by the handlers.
type Store interface {
	RecordResult(res models.Result) error
	GetServers() ([]models.Server, error)
	GetServer(host string, port int) (*models.Server, error)
	GetSamples(host string, port, limit int) ([]models.Sample, error)
	DeleteServer(host string, port int) error
}

// Server holds the dependencies, configuration, and runtime state required
// to handle HTTP requests and background check processing.
type Server struct {
	// storage provides access to stored servers and their history.
	storage Store

	// geo resolves server hosts to country codes. It can be nil.
	geo poller.CountryResolver

	// allowedHosts is a set of hashed host names (using xxhash) that live queries
	// may target. Empty means any host.
	allowedHosts map[uint64]struct{}

	// queue passes check jobs from HTTP handlers to background workers.
	queue chan checkJob

	// shutdown broadcasts a stop signal to background routines.
	shutdown chan struct{}

	// seenCache tracks recently queued targets for the soft limit.
	seenCache sync.Map

	// authToken is the secret token required to access administrative API endpoints.
	authToken string

	// wg waits for background workers before shutdown completes.
	wg sync.WaitGroup

	// timeout bounds each status query.
	timeout time.Duration

	// jobTimeout bounds a whole background check, country lookup included.
	jobTimeout time.Duration

	// hardLimitCount is the maximum number of live queries per client IP
	// within the hardLimitWin duration.
	hardLimitCount int

	// hardLimitWin is the time window duration for the hard rate limiter.
	hardLimitWin time.Duration

	// softLimitDur is how long a queued target is ignored by further check requests.
	softLimitDur time.Duration

	// trustProxy indicates whether X-Forwarded-For or CF-Connecting-IP are trusted.
	trustProxy bool
}

// checkJob is a unit of work for the background workers.
type checkJob struct {
	Addr legacy.Address

	// Requester is the client IP that asked for the check, for logging only.
	Requester string
}

// checkRequest is the body of POST /api/check.
type checkRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// statusResponse is returned by the live query endpoint.
type statusResponse struct {
	legacy.Status
	Host      string `json:"host"`
	Port      uint16 `json:"port"`
	LatencyMs int64  `json:"latency_ms"`
}

// errorResponse is returned when a live query fails.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// serverDetails is returned by GET /api/server.
type serverDetails struct {
	Server  *models.Server  `json:"server"`
	Samples []models.Sample `json:"samples"`
}
