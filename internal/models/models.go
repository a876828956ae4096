// Package models defines the data structures used for API responses and database persistence.
package models

import "time"

// Result is the outcome of one status query, as handed to storage.
type Result struct {
	CheckedAt   time.Time     `json:"checked_at"`
	RunID       string        `json:"run_id,omitempty"`
	Host        string        `json:"host"`
	CountryCode string        `json:"country_code,omitempty"`
	MOTD        string        `json:"motd,omitempty"`
	Protocol    string        `json:"protocol,omitempty"`
	Version     string        `json:"version,omitempty"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	Latency     time.Duration `json:"latency"`
	Port        int           `json:"port"`
	Players     int           `json:"players"`
	MaxPlayers  int           `json:"max_players"`
	Online      bool          `json:"online"`
}

// Server represents a monitored server stored in the database.
// Status fields keep the values of the last successful query.
type Server struct {
	FirstSeen   *time.Time `json:"first_seen,omitempty"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	LastChecked time.Time  `json:"last_checked"`
	Host        string     `json:"host"`
	CountryCode string     `json:"country_code"`
	MOTD        string     `json:"motd"`
	Protocol    string     `json:"protocol"`
	Version     string     `json:"version"`
	LastError   string     `json:"last_error,omitempty"`
	Port        int        `json:"port"`
	Players     int        `json:"players"`
	MaxPlayers  int        `json:"max_players"`
	Checks      int64      `json:"checks"`
	Failures    int64      `json:"failures"`
	Online      bool       `json:"online"`
}

// Sample is one row of query history for a server.
type Sample struct {
	CheckedAt  time.Time `json:"checked_at"`
	RunID      string    `json:"run_id"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	Players    int       `json:"players"`
	MaxPlayers int       `json:"max_players"`
	Online     bool      `json:"online"`
}
