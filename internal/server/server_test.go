package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raskol/raskol/internal/admission"
	"github.com/raskol/raskol/internal/identity"
	"github.com/raskol/raskol/internal/raskol"
	"github.com/raskol/raskol/internal/storage/sqlite"
	"github.com/raskol/raskol/internal/upstream"
)

const (
	testSecret   = "shared-secret"
	testIssuer   = "raskol"
	testAudience = "clients"
)

// redirectTransport sends every request to a local httptest.Server instead
// of the real upstream host, so tests never touch the network.
type redirectTransport struct {
	target string // e.g. "127.0.0.1:NNNN", stripped of scheme
}

func (rt *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = rt.target
	return http.DefaultTransport.RoundTrip(req)
}

// newTestServer wires a real identity service, a temp-file sqlite store, an
// admission controller with the given limits, and an upstream client
// pointed at upstreamTS.
func newTestServer(t *testing.T, limits raskol.Limits, upstreamTS *httptest.Server) (http.Handler, *identity.Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(t.TempDir()+"/test.db", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	idsvc, err := identity.New(testSecret, testIssuer, testAudience)
	if err != nil {
		t.Fatal(err)
	}

	host := strings.TrimPrefix(upstreamTS.URL, "http://")
	client := upstream.New(&redirectTransport{target: host}, host, "upstream-secret", nil)

	h := New(Deps{
		Identity:   idsvc,
		Admission:  admission.New(store, limits),
		Accounting: store,
		Upstream:   client,
	})
	return h, idsvc, store
}

func mustMint(t *testing.T, s *identity.Service, uid string, role raskol.Role) string {
	t.Helper()
	tok, err := s.Mint(uid, time.Minute, role)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}
