package security

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dependable-calls/dce/internal/observability"
	"github.com/dependable-calls/dce/internal/rbac"
)

type fakeRepo struct {
	stored []StoredReport
}

func (f *fakeRepo) Insert(_ context.Context, report StoredReport) error {
	f.stored = append(f.stored, report)
	return nil
}

func (f *fakeRepo) List(_ context.Context, severity *string, _, _ int) ([]StoredReport, int, error) {
	var out []StoredReport
	for _, report := range f.stored {
		if severity != nil && report.Severity != *severity {
			continue
		}
		out = append(out, report)
	}
	return out, len(out), nil
}

func (f *fakeRepo) DeleteOlderThan(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func newTestHandler(t *testing.T, limit int) (*Handler, *fakeRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &fakeRepo{}
	limiter := NewReportLimiter(client, limit, time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, repo, limiter, observability.NewMetrics(), rbac.Middleware{}), repo
}

func postReport(h *Handler, body, remoteAddr string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.MountRoutes(r)
	req := httptest.NewRequest(http.MethodPost, "/csp-report", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/csp-report")
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const sampleReport = `{
	"csp-report": {
		"document-uri": "https://dce.example/dashboard",
		"violated-directive": "script-src",
		"effective-directive": "script-src-elem",
		"blocked-uri": "https://evil.com/inject.js"
	}
}`

func TestReceiveStoresClassifiedReport(t *testing.T) {
	h, repo := newTestHandler(t, 10)

	rec := postReport(h, sampleReport, "203.0.113.9:4411")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	require.Len(t, repo.stored, 1)
	stored := repo.stored[0]
	assert.Equal(t, SeverityCritical, stored.Severity)
	assert.Contains(t, stored.ThreatPatterns, "data_exfiltration")
	assert.Equal(t, "203.0.113.9", stored.ClientIP)
	assert.Equal(t, "script-src-elem", stored.ViolatedDirective)
}

func TestReceiveRateLimited(t *testing.T) {
	h, repo := newTestHandler(t, 3)

	for i := 0; i < 3; i++ {
		rec := postReport(h, sampleReport, "203.0.113.9:4411")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	rec := postReport(h, sampleReport, "203.0.113.9:4411")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, repo.stored, 3)

	// A different client is not affected.
	rec = postReport(h, sampleReport, "198.51.100.7:9000")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReceiveRejectsMalformedPayload(t *testing.T) {
	h, repo := newTestHandler(t, 10)

	rec := postReport(h, `{not json`, "203.0.113.9:4411")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postReport(h, `{"csp-report":{}}`, "203.0.113.9:4411")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.stored)
}
