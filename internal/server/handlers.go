package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/legacyping/internal/legacy"
	"github.com/woozymasta/legacyping/internal/models"
	"github.com/woozymasta/legacyping/internal/poller"
	"github.com/woozymasta/legacyping/internal/vars"
)

const maxCheckBody = 1024

// handleStatus performs a live legacy ping to a server.
// Query params: ?host=mc.example.com&port=25565[&plain=1]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseTarget(w, r)
	if !ok {
		return
	}

	if !s.hostAllowed(addr.Host) {
		log.Debug().Str("host", addr.Host).Msg("Live query to host not allowed")
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "host not allowed"})
		return
	}

	start := time.Now()
	status, err := legacy.Query(r.Context(), addr, s.timeout)
	if err != nil {
		kind := legacy.Kind(err)
		code := http.StatusBadGateway
		if kind == legacy.KindTimeout {
			code = http.StatusGatewayTimeout
		}

		writeJSON(w, code, errorResponse{Error: err.Error(), Kind: kind})
		return
	}

	if r.URL.Query().Get("plain") != "" {
		status.MOTD = legacy.StripFormatting(status.MOTD)
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:    *status,
		Host:      addr.Host,
		Port:      addr.Port,
		LatencyMs: time.Since(start).Milliseconds(),
	})
}

// handleCheck queues an asynchronous check whose result is stored.
// Repeated requests for the same target within the soft limit are accepted but ignored.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ip := GetRealIP(r, s.trustProxy)
	r.Body = http.MaxBytesReader(w, r.Body, maxCheckBody)

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("Invalid JSON")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if req.Port == 0 {
		req.Port = int(legacy.DefaultPort)
	}
	if req.Host == "" || req.Port < 1 || req.Port > 65535 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid host or port"})
		return
	}

	job := checkJob{
		Addr:      legacy.Address{Host: req.Host, Port: uint16(req.Port)},
		Requester: ip,
	}

	// Soft Limit
	key := job.Addr.String()
	if val, ok := s.seenCache.Load(key); ok {
		if lastSeen, ok := val.(time.Time); ok && time.Since(lastSeen) < s.softLimitDur {
			log.Trace().Str("target", key).Msg("Dropped by soft limit hit")
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "already queued"})
			return
		}
	}

	select {
	case s.queue <- job:
		s.seenCache.Store(key, time.Now())
		log.Trace().Str("target", key).Str("ip", ip).Msg("Check queued")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	default:
		log.Warn().Str("target", key).Msg("Queue full, check dropped")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "queue full"})
	}
}

// worker is a background goroutine that processes jobs from the check queue.
func (s *Server) worker() {
	defer s.wg.Done()

	for job := range s.queue {
		s.processJob(job)
	}
}

// processJob queries the target, resolves its country and stores the result.
func (s *Server) processJob(job checkJob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	res := poller.Check(ctx, job.Addr, s.timeout, s.geo)
	res.RunID = "api"

	if err := s.storage.RecordResult(res); err != nil {
		log.Error().Err(err).Str("target", job.Addr.String()).Msg("Failed to save check result")
		return
	}

	log.Debug().
		Str("target", job.Addr.String()).
		Str("requester", job.Requester).
		Bool("online", res.Online).
		Msg("Check saved")
}

// handleServers returns a JSON list of all stored servers.
func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	servers, err := s.storage.GetServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch servers")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	if servers == nil {
		servers = []models.Server{}
	}

	writeJSON(w, http.StatusOK, servers)
}

// handleGetServer returns a stored server with its recent samples.
// Query params: ?host=mc.example.com&port=25565[&limit=100]
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseTarget(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	server, err := s.storage.GetServer(addr.Host, int(addr.Port))
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch server")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}
	if server == nil {
		http.NotFound(w, r)
		return
	}

	samples, err := s.storage.GetSamples(addr.Host, int(addr.Port), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch samples")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}
	if samples == nil {
		samples = []models.Sample{}
	}

	writeJSON(w, http.StatusOK, serverDetails{Server: server, Samples: samples})
}

// handleDeleteServer removes a stored server and its history.
// Query params: ?host=mc.example.com&port=25565
func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseTarget(w, r)
	if !ok {
		return
	}

	if err := s.storage.DeleteServer(addr.Host, int(addr.Port)); err != nil {
		log.Error().Err(err).
			Str("host", addr.Host).
			Uint16("port", addr.Port).
			Msg("Failed to delete server")

		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("host", addr.Host).
		Uint16("port", addr.Port).
		Msg("Server deleted manually")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server deleted"})
}

// handleVersion returns build information.
func handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}

// parseTarget reads host and optional port query params, writing a 400 on failure.
func parseTarget(w http.ResponseWriter, r *http.Request) (legacy.Address, bool) {
	host := r.URL.Query().Get("host")
	if host == "" {
		http.Error(w, "Missing host", http.StatusBadRequest)
		return legacy.Address{}, false
	}

	addr := legacy.Address{Host: host, Port: legacy.DefaultPort}
	if portStr := r.URL.Query().Get("port"); portStr != "" {
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || port == 0 {
			http.Error(w, "Invalid port", http.StatusBadRequest)
			return legacy.Address{}, false
		}
		addr.Port = uint16(port)
	}

	return addr, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
