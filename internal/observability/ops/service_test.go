package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"relaybot/internal/storage"
	"relaybot/pkg/logx"
)

func get(t *testing.T, h http.Handler, target string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		r.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHealthAndStats(t *testing.T) {
	req := require.New(t)
	s := New(Config{}, logx.Nop(), func() any { return map[string]int{"listeners": 2} }, nil)
	h := s.Handler(Config{})

	w := get(t, h, "/healthz")
	req.Equal(http.StatusOK, w.Code)
	req.Equal("ok", w.Body.String())

	w = get(t, h, "/stats")
	req.Equal(http.StatusOK, w.Code)
	req.Equal("application/json", w.Header().Get("Content-Type"))
	var got map[string]int
	req.NoError(json.Unmarshal(w.Body.Bytes(), &got))
	req.Equal(2, got["listeners"])

	req.Equal(http.StatusNotFound, get(t, h, "/audit").Code)
}

func TestAuth(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil, nil)
	h := s.Handler(Config{Token: "s3cret"})

	require.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz").Code)
	require.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz?token=nope").Code)
	require.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz", "Authorization", "Bearer nope").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/healthz?token=s3cret").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/healthz", "Authorization", "Bearer s3cret").Code)
}

func TestAuditEndpoint(t *testing.T) {
	req := require.New(t)
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "audit")}, logx.Nop())
	req.NoError(err)
	defer st.Close()

	ctx := context.Background()
	req.NoError(st.AppendAudit(ctx, storage.AuditEntry{Store: "listeners", TargetID: 1, Added: true}))
	req.NoError(st.AppendAudit(ctx, storage.AuditEntry{Store: "ignored", TargetID: 2, Added: true}))
	req.NoError(st.AppendAudit(ctx, storage.AuditEntry{Store: "ignored", TargetID: 3}))

	h := New(Config{}, logx.Nop(), nil, st).Handler(Config{})

	var got []storage.AuditEntry
	w := get(t, h, "/audit/ignored?limit=1")
	req.Equal(http.StatusOK, w.Code)
	req.NoError(json.Unmarshal(w.Body.Bytes(), &got))
	req.Len(got, 1)
	req.Equal(int64(3), got[0].TargetID)

	w = get(t, h, "/audit?target=1")
	req.NoError(json.Unmarshal(w.Body.Bytes(), &got))
	req.Len(got, 1)
	req.Equal("listeners", got[0].Store)

	w = get(t, h, "/audit?target=9")
	req.Equal("[]\n", w.Body.String())

	req.Equal(http.StatusBadRequest, get(t, h, "/audit?target=x").Code)
	req.Equal(http.StatusBadRequest, get(t, h, "/audit?limit=-1").Code)
}

func TestPprofUnderPrefix(t *testing.T) {
	h := New(Config{}, logx.Nop(), nil, nil).Handler(Config{Prefix: "ops/pprof"})
	w := get(t, h, "/ops/pprof/")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "goroutine")

	w = get(t, h, "/ops/pprof")
	require.Equal(t, http.StatusPermanentRedirect, w.Code)
}

func TestStartRefusesPublicBindWithoutToken(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop(), nil, nil)
	require.Error(t, s.Start(context.Background()))
	require.Nil(t, s.Supervisor())

	s = New(Config{Enabled: false, Addr: "0.0.0.0:0"}, logx.Nop(), nil, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Nil(t, s.Supervisor())
}

func TestIsLoopbackAddr(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"10.0.0.1:80":    false,
		"garbage":        false,
	} {
		require.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}

func TestNormalizePrefix(t *testing.T) {
	require.Equal(t, "/debug/pprof/", normalizePrefix(""))
	require.Equal(t, "/x/", normalizePrefix("x"))
	require.Equal(t, "/x/", normalizePrefix("/x/"))
}
