package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raskol/raskol/internal/raskol"
)

func echoUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"usage":{"total_tokens":42}}`))
	}))
}

func TestForwardMissingAuth(t *testing.T) {
	t.Parallel()
	upstreamTS := echoUpstream(t)
	defer upstreamTS.Close()
	h, _, _ := newTestServer(t, raskol.Limits{}, upstreamTS)

	req := httptest.NewRequest(http.MethodPost, "/v1/echo", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestForwardHappyPath(t *testing.T) {
	t.Parallel()
	upstreamTS := echoUpstream(t)
	defer upstreamTS.Close()
	h, idsvc, store := newTestServer(t, raskol.Limits{}, upstreamTS)

	tok := mustMint(t, idsvc, "u1", raskol.RoleHacker)
	req := httptest.NewRequest(http.MethodPost, "/v1/echo", strings.NewReader(`{"n":1}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	stats, err := store.StatsFor(req.Context(), "u1", raskol.TodayUTC(time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if stats.HitCount != 1 {
		t.Errorf("hit count = %d, want 1", stats.HitCount)
	}
}

func TestForwardRoleInsufficient(t *testing.T) {
	t.Parallel()
	upstreamTS := echoUpstream(t)
	defer upstreamTS.Close()
	h, idsvc, _ := newTestServer(t, raskol.Limits{}, upstreamTS)

	tok := mustMint(t, idsvc, "u1", raskol.RoleUser)
	req := httptest.NewRequest(http.MethodPost, "/v1/echo", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestForwardRateLimited(t *testing.T) {
	t.Parallel()
	upstreamTS := echoUpstream(t)
	defer upstreamTS.Close()
	h, idsvc, _ := newTestServer(t, raskol.Limits{MinHitIntervalSeconds: 5}, upstreamTS)

	tok := mustMint(t, idsvc, "u1", raskol.RoleHacker)
	for i, wantCode := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/v1/echo", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != wantCode {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, wantCode)
		}
		if i == 1 && rec.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header on rate-limited response")
		}
	}
}

func TestPingAndStats(t *testing.T) {
	t.Parallel()
	upstreamTS := echoUpstream(t)
	defer upstreamTS.Close()
	h, idsvc, _ := newTestServer(t, raskol.Limits{}, upstreamTS)
	tok := mustMint(t, idsvc, "u1", raskol.RoleHacker)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("ping: status=%d body=%q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status=%d", rec.Code)
	}
	var stats raskol.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.UID != "u1" {
		t.Errorf("uid = %q, want u1", stats.UID)
	}
}

func TestTotalStatsRequiresAdmin(t *testing.T) {
	t.Parallel()
	upstreamTS := echoUpstream(t)
	defer upstreamTS.Close()
	h, idsvc, _ := newTestServer(t, raskol.Limits{}, upstreamTS)

	hackerTok := mustMint(t, idsvc, "u1", raskol.RoleHacker)
	req := httptest.NewRequest(http.MethodGet, "/total-stats", nil)
	req.Header.Set("Authorization", "Bearer "+hackerTok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("hacker status = %d, want 403", rec.Code)
	}

	adminTok := mustMint(t, idsvc, "u2", raskol.RoleAdmin)
	req = httptest.NewRequest(http.MethodGet, "/total-stats", nil)
	req.Header.Set("Authorization", "Bearer "+adminTok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}
}
