// Package storage handles database connections, schema migrations, and data operations using SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/woozymasta/legacyping/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// RecordResult stores a query outcome: the server row is upserted and a sample appended.
// A failed query only touches bookkeeping columns, so the last known status survives.
func (r *Repository) RecordResult(res models.Result) error {
	var (
		failures  int
		firstSeen sql.NullTime
		lastSeen  sql.NullTime
	)
	if res.Online {
		firstSeen = sql.NullTime{Time: res.CheckedAt, Valid: true}
		lastSeen = firstSeen
	} else {
		failures = 1
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
	INSERT INTO servers (
		host, port, country_code, motd, protocol, version, players, max_players,
		online, last_error, checks, failures, first_seen, last_seen, last_checked
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
	ON CONFLICT(host, port) DO UPDATE SET
		checks       = checks + 1,
		failures     = failures + excluded.failures,
		online       = excluded.online,
		last_error   = excluded.last_error,
		last_checked = excluded.last_checked,

		-- Keep known country if lookup failed
		country_code = CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE servers.country_code END,

		-- Status fields change only on successful queries
		motd        = CASE WHEN excluded.online THEN excluded.motd ELSE servers.motd END,
		protocol    = CASE WHEN excluded.online THEN excluded.protocol ELSE servers.protocol END,
		version     = CASE WHEN excluded.online THEN excluded.version ELSE servers.version END,
		players     = CASE WHEN excluded.online THEN excluded.players ELSE servers.players END,
		max_players = CASE WHEN excluded.online THEN excluded.max_players ELSE servers.max_players END,

		first_seen = COALESCE(servers.first_seen, excluded.first_seen),
		last_seen  = COALESCE(excluded.last_seen, servers.last_seen);
	`,
		res.Host, res.Port, res.CountryCode, res.MOTD, res.Protocol, res.Version, res.Players, res.MaxPlayers,
		res.Online, res.Error, failures, firstSeen, lastSeen, res.CheckedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert server: %w", err)
	}

	_, err = tx.Exec(`
	INSERT INTO samples (run_id, host, port, online, players, max_players, latency_ms, error_kind, checked_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.RunID, res.Host, res.Port, res.Online, res.Players, res.MaxPlayers,
		res.Latency.Milliseconds(), res.ErrorKind, res.CheckedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert sample: %w", err)
	}

	return tx.Commit()
}

const serverColumns = `
	host, port, country_code, motd, protocol, version, players, max_players,
	online, last_error, checks, failures, first_seen, last_seen, last_checked`

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (models.Server, error) {
	var (
		s         models.Server
		firstSeen sql.NullTime
		lastSeen  sql.NullTime
	)

	err := row.Scan(
		&s.Host, &s.Port, &s.CountryCode, &s.MOTD, &s.Protocol, &s.Version, &s.Players, &s.MaxPlayers,
		&s.Online, &s.LastError, &s.Checks, &s.Failures, &firstSeen, &lastSeen, &s.LastChecked,
	)
	if err != nil {
		return s, err
	}

	if firstSeen.Valid {
		s.FirstSeen = &firstSeen.Time
	}
	if lastSeen.Valid {
		s.LastSeen = &lastSeen.Time
	}

	return s, nil
}

// GetServers retrieves all servers, most recently checked first.
func (r *Repository) GetServers() ([]models.Server, error) {
	rows, err := r.db.Query(`SELECT` + serverColumns + ` FROM servers ORDER BY last_checked DESC, host, port`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var servers []models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return servers, nil
}

// GetServer retrieves one server. It returns nil without error if the server is unknown.
func (r *Repository) GetServer(host string, port int) (*models.Server, error) {
	row := r.db.QueryRow(`SELECT`+serverColumns+` FROM servers WHERE host = ? AND port = ?`, host, port)

	s, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// GetSamples returns up to limit most recent samples of a server, newest first.
func (r *Repository) GetSamples(host string, port, limit int) ([]models.Sample, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(`
		SELECT run_id, online, players, max_players, latency_ms, error_kind, checked_at
		FROM samples
		WHERE host = ? AND port = ?
		ORDER BY checked_at DESC, id DESC
		LIMIT ?
	`, host, port, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var samples []models.Sample
	for rows.Next() {
		var s models.Sample
		if err := rows.Scan(&s.RunID, &s.Online, &s.Players, &s.MaxPlayers, &s.LatencyMs, &s.ErrorKind, &s.CheckedAt); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// DeleteServer removes a server and its history.
func (r *Repository) DeleteServer(host string, port int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM samples WHERE host = ? AND port = ?`, host, port); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM servers WHERE host = ? AND port = ?`, host, port); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// DeleteSamplesBefore removes history older than t.
func (r *Repository) DeleteSamplesBefore(t time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM samples WHERE checked_at < ?`, t.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOfflineServers removes servers that never answered a query, with their history.
func (r *Repository) DeleteOfflineServers() (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(`
		DELETE FROM samples WHERE EXISTS (
			SELECT 1 FROM servers s
			WHERE s.host = samples.host AND s.port = samples.port AND s.last_seen IS NULL
		)`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	res, err := tx.Exec(`DELETE FROM servers WHERE last_seen IS NULL`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	count, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	return count, tx.Commit()
}
