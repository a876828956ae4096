package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/woozymasta/legacyping/internal/config"
	"github.com/woozymasta/legacyping/internal/fake"
	"github.com/woozymasta/legacyping/internal/legacy"
	"github.com/woozymasta/legacyping/internal/models"
	"github.com/woozymasta/legacyping/internal/storage"
)

const testToken = "secret"

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.AuthToken = testToken
	cfg.Query.Timeout = 300 * time.Millisecond
	cfg.RateLimit.HardLimitCount = 100
	cfg.RateLimit.HardLimitWin = time.Minute
	cfg.RateLimit.SoftLimitDur = time.Minute
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, http.Handler, *storage.Repository) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srv := New(store, nil, cfg)
	return srv, srv.Run(), store
}

func startStatusServer(t *testing.T, st legacy.Status) *fake.Server {
	t.Helper()

	respond, err := fake.StatusResponder(st)
	if err != nil {
		t.Fatal(err)
	}
	mc, err := fake.Start("127.0.0.1:0", respond)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mc.Close() })

	return mc
}

func do(t *testing.T, h http.Handler, method, target, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLiveStatus(t *testing.T) {
	mc := startStatusServer(t, legacy.Status{MOTD: "§aHi there", Protocol: "78", Version: "1.6.4", Players: 2, MaxPlayers: 10})
	_, h, _ := newTestServer(t, testConfig())

	rec := do(t, h, http.MethodGet, fmt.Sprintf("/api/status?host=127.0.0.1&port=%d", mc.Address().Port), "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Players != 2 || resp.MaxPlayers != 10 || resp.MOTD != "§aHi there" || resp.Port != mc.Address().Port {
		t.Fatalf("response = %+v", resp)
	}

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/api/status?host=127.0.0.1&port=%d&plain=1", mc.Address().Port), "", false)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MOTD != "Hi there" {
		t.Fatalf("plain motd = %q", resp.MOTD)
	}
}

func TestLiveStatusErrors(t *testing.T) {
	silent, err := fake.Start("127.0.0.1:0", fake.Silent())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = silent.Close() })

	broken, err := fake.Start("127.0.0.1:0", fake.Static([]byte{0x02}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = broken.Close() })

	_, h, _ := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		target string
		code   int
		kind   string
	}{
		{"missing host", "/api/status", http.StatusBadRequest, ""},
		{"bad port", "/api/status?host=a&port=99999", http.StatusBadRequest, ""},
		{"timeout", fmt.Sprintf("/api/status?host=127.0.0.1&port=%d", silent.Address().Port), http.StatusGatewayTimeout, legacy.KindTimeout},
		{"protocol", fmt.Sprintf("/api/status?host=127.0.0.1&port=%d", broken.Address().Port), http.StatusBadGateway, legacy.KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "", false)
			if rec.Code != tt.code {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.code, rec.Body)
			}
			if tt.kind == "" {
				return
			}

			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Kind != tt.kind || resp.Error == "" {
				t.Fatalf("response = %+v", resp)
			}
		})
	}
}

func TestLiveStatusAllowlist(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedHosts = []string{"Play.Example.com"}
	_, h, _ := newTestServer(t, cfg)

	rec := do(t, h, http.MethodGet, "/api/status?host=127.0.0.1", "", false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestLiveStatusRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.HardLimitCount = 2
	_, h, _ := newTestServer(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, h, http.MethodGet, "/api/status", "", false).Code)
	}

	if codes[0] != http.StatusBadRequest || codes[1] != http.StatusBadRequest || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	_, h, _ := newTestServer(t, testConfig())

	for _, path := range []string{"/api/servers", "/api/server?host=a"} {
		if rec := do(t, h, http.MethodGet, path, "", false); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}

	rec := do(t, h, http.MethodGet, "/api/servers", "", true)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("servers: %d %s", rec.Code, rec.Body)
	}

	if rec := do(t, h, http.MethodGet, "/api/server?host=unknown", "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown server: %d", rec.Code)
	}
}

func TestCheckQueueStoresResult(t *testing.T) {
	mc := startStatusServer(t, legacy.Status{MOTD: "queued", Players: 5, MaxPlayers: 6})
	srv, h, _ := newTestServer(t, testConfig())
	srv.StartWorkers()

	body := fmt.Sprintf(`{"host":"127.0.0.1","port":%d}`, mc.Address().Port)

	rec := do(t, h, http.MethodPost, "/api/check", body, true)
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"queued"`) {
		t.Fatalf("check: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/api/check", body, true)
	if !strings.Contains(rec.Body.String(), "already queued") {
		t.Fatalf("soft limit not applied: %s", rec.Body)
	}

	// drain the queue
	srv.StopWorkers()

	target := fmt.Sprintf("/api/server?host=127.0.0.1&port=%d", mc.Address().Port)
	rec = do(t, h, http.MethodGet, target, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get server: %d %s", rec.Code, rec.Body)
	}

	var details serverDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &details); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !details.Server.Online || details.Server.MOTD != "queued" || details.Server.Players != 5 {
		t.Fatalf("server = %+v", details.Server)
	}
	if len(details.Samples) != 1 || details.Samples[0].RunID != "api" {
		t.Fatalf("samples = %+v", details.Samples)
	}

	rec = do(t, h, http.MethodDelete, target, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, target, "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("after delete: %d", rec.Code)
	}
}

func TestCheckRejectsBadInput(t *testing.T) {
	_, h, _ := newTestServer(t, testConfig())

	for _, body := range []string{`not json`, `{"port":25565}`, `{"host":"a","port":70000}`} {
		if rec := do(t, h, http.MethodPost, "/api/check", body, true); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", body, rec.Code)
		}
	}
}

func TestVersion(t *testing.T) {
	_, h, _ := newTestServer(t, testConfig())

	rec := do(t, h, http.MethodGet, "/api/version", "", false)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"name"`) {
		t.Fatalf("version: %d %s", rec.Code, rec.Body)
	}
}

func TestGetRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")

	if got := GetRealIP(req, false); got != "10.0.0.1" {
		t.Errorf("untrusted = %s", got)
	}
	if got := GetRealIP(req, true); got != "1.2.3.4" {
		t.Errorf("trusted = %s", got)
	}
}

func TestDeleteServer(t *testing.T) {
	_, h, store := newTestServer(t, testConfig())

	err := store.RecordResult(models.Result{
		CheckedAt: time.Now().UTC(),
		RunID:     "test",
		Host:      "mc.example.com",
		Port:      25566,
		Online:    true,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	target := "/api/server?host=mc.example.com&port=25566"

	if rec := do(t, h, http.MethodDelete, target, "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("delete without token: %d", rec.Code)
	}
	if srv, err := store.GetServer("mc.example.com", 25566); err != nil || srv == nil {
		t.Fatalf("server gone after unauthorized delete: %v %v", srv, err)
	}

	for _, bad := range []string{"/api/server", "/api/server?host=mc.example.com&port=0"} {
		if rec := do(t, h, http.MethodDelete, bad, "", true); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", bad, rec.Code)
		}
	}

	rec := do(t, h, http.MethodDelete, target, "", true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body)
	}
	if srv, err := store.GetServer("mc.example.com", 25566); err != nil || srv != nil {
		t.Fatalf("server still stored: %v %v", srv, err)
	}
}

// hangingGeo blocks until the lookup context ends.
type hangingGeo struct {
	hadDeadline atomic.Bool
}

func (g *hangingGeo) HostCountryCode(ctx context.Context, _ string) string {
	_, ok := ctx.Deadline()
	g.hadDeadline.Store(ok)
	<-ctx.Done()
	return ""
}

func TestProcessJobBoundsCountryLookup(t *testing.T) {
	mc := startStatusServer(t, legacy.Status{MOTD: "geo", Players: 1, MaxPlayers: 2})
	srv, _, store := newTestServer(t, testConfig())

	geo := &hangingGeo{}
	srv.geo = geo
	srv.jobTimeout = 500 * time.Millisecond

	done := make(chan struct{})
	go func() {
		srv.processJob(checkJob{Addr: mc.Address(), Requester: "127.0.0.1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("processJob did not return while the country lookup hung")
	}

	if !geo.hadDeadline.Load() {
		t.Fatal("country lookup ran without a deadline")
	}

	stored, err := store.GetServer("127.0.0.1", int(mc.Address().Port))
	if err != nil || stored == nil {
		t.Fatalf("result not stored: %v %v", stored, err)
	}
	if !stored.Online || stored.CountryCode != "" {
		t.Fatalf("stored = %+v", stored)
	}
}
