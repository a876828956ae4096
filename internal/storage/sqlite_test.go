package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/woozymasta/legacyping/internal/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 2; i++ {
		repo, err := New(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}

		var count int
		if err := repo.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if count == 0 {
			t.Fatal("no migrations recorded")
		}
		_ = repo.Close()
	}
}

func TestRecordResultKeepsLastKnownStatus(t *testing.T) {
	repo := newTestRepo(t)
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	online := models.Result{
		CheckedAt:   t0,
		RunID:       "run-1",
		Host:        "mc.example.com",
		Port:        25565,
		CountryCode: "DE",
		MOTD:        "§aHello",
		Protocol:    "78",
		Version:     "1.6.4",
		Players:     3,
		MaxPlayers:  20,
		Latency:     42 * time.Millisecond,
		Online:      true,
	}
	if err := repo.RecordResult(online); err != nil {
		t.Fatalf("record online: %v", err)
	}

	offline := models.Result{
		CheckedAt: t0.Add(time.Minute),
		RunID:     "run-2",
		Host:      "mc.example.com",
		Port:      25565,
		Error:     "query mc.example.com:25565: timed out",
		ErrorKind: "timeout",
	}
	if err := repo.RecordResult(offline); err != nil {
		t.Fatalf("record offline: %v", err)
	}

	s, err := repo.GetServer("mc.example.com", 25565)
	if err != nil {
		t.Fatalf("get server: %v", err)
	}
	if s == nil {
		t.Fatal("server not found")
	}

	if s.Online {
		t.Error("server should be offline after failed check")
	}
	if s.MOTD != "§aHello" || s.Players != 3 || s.MaxPlayers != 20 || s.Version != "1.6.4" {
		t.Errorf("last known status lost: %+v", s)
	}
	if s.CountryCode != "DE" {
		t.Errorf("country = %q", s.CountryCode)
	}
	if s.Checks != 2 || s.Failures != 1 {
		t.Errorf("checks=%d failures=%d", s.Checks, s.Failures)
	}
	if s.LastError == "" {
		t.Error("last error not stored")
	}
	if s.FirstSeen == nil || s.LastSeen == nil || !s.LastSeen.Equal(t0) {
		t.Errorf("seen timestamps = %v / %v", s.FirstSeen, s.LastSeen)
	}

	samples, err := repo.GetSamples("mc.example.com", 25565, 10)
	if err != nil {
		t.Fatalf("get samples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples", len(samples))
	}
	if samples[0].RunID != "run-2" || samples[0].Online || samples[0].ErrorKind != "timeout" {
		t.Errorf("newest sample = %+v", samples[0])
	}
	if samples[1].LatencyMs != 42 || !samples[1].Online {
		t.Errorf("oldest sample = %+v", samples[1])
	}
}

func TestGetServerUnknown(t *testing.T) {
	repo := newTestRepo(t)

	s, err := repo.GetServer("nowhere", 1)
	if err != nil {
		t.Fatalf("get server: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil, got %+v", s)
	}
}

func TestDeleteOperations(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now().UTC()

	results := []models.Result{
		{CheckedAt: now.Add(-48 * time.Hour), Host: "a", Port: 1, Online: true, Players: 1, MaxPlayers: 2},
		{CheckedAt: now, Host: "a", Port: 1, Online: true, Players: 2, MaxPlayers: 2},
		{CheckedAt: now, Host: "dead", Port: 2, ErrorKind: "connection"},
	}
	for _, res := range results {
		if err := repo.RecordResult(res); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	pruned, err := repo.DeleteSamplesBefore(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("delete samples: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned %d samples, want 1", pruned)
	}

	removed, err := repo.DeleteOfflineServers()
	if err != nil {
		t.Fatalf("delete offline: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed %d servers, want 1", removed)
	}

	servers, err := repo.GetServers()
	if err != nil {
		t.Fatalf("get servers: %v", err)
	}
	if len(servers) != 1 || servers[0].Host != "a" {
		t.Fatalf("servers = %+v", servers)
	}

	if err := repo.DeleteServer("a", 1); err != nil {
		t.Fatalf("delete server: %v", err)
	}
	samples, err := repo.GetSamples("a", 1, 0)
	if err != nil {
		t.Fatalf("get samples: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("history not removed: %d samples", len(samples))
	}
}
