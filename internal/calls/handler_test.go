package calls_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dependable-calls/dce/internal/calls"
	"github.com/dependable-calls/dce/internal/rbac"
	"github.com/dependable-calls/dce/internal/shared"
	_ "github.com/dependable-calls/dce/testing"
)

type stubRepo struct {
	calls []calls.Call
	stats *calls.CampaignStats
}

func (s *stubRepo) Get(ctx context.Context, id int64) (*calls.Call, error) {
	for _, call := range s.calls {
		if call.ID == id {
			return &call, nil
		}
	}
	return nil, calls.ErrNotFound
}

func (s *stubRepo) List(ctx context.Context, req calls.ListCallsRequest) ([]calls.Call, int, error) {
	out := make([]calls.Call, 0, len(s.calls))
	for _, call := range s.calls {
		if req.CampaignID != nil && call.CampaignID != *req.CampaignID {
			continue
		}
		if req.Status != nil && string(call.Status) != *req.Status {
			continue
		}
		out = append(out, call)
	}
	return out, len(out), nil
}

func (s *stubRepo) StatsByCampaign(ctx context.Context, campaignID int64) (*calls.CampaignStats, error) {
	return s.stats, nil
}

// newRouter mounts the handler behind a session-loading middleware the way
// the app router does, so the auth guard sees a real session.
func newRouter(t *testing.T, repo calls.Repository, authenticated bool) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := calls.NewHandler(logger, calls.NewService(repo), rbac.Middleware{})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessionManager.Load(req.Context(), req)
			if err != nil {
				t.Fatalf("load session: %v", err)
			}
			if authenticated {
				sess.SetUser("42")
			}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/calls", handler.MountRoutes)
	r.Route("/campaigns", handler.MountCampaignRoutes)
	return r
}

func TestListCalls(t *testing.T) {
	repo := &stubRepo{calls: []calls.Call{
		{ID: 1, CampaignID: 5, SupplierID: 3, Status: calls.StatusCompleted, Duration: 120, Billable: true, ChargeAmount: 45, PayoutAmount: 30},
		{ID: 2, CampaignID: 6, SupplierID: 3, Status: calls.StatusFailed},
	}}
	router := newRouter(t, repo, true)

	req := httptest.NewRequest(http.MethodGet, "/calls?campaign_id=5", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var out struct {
		Calls      []calls.Call      `json:"calls"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	require.Len(t, out.Calls, 1)
	assert.Equal(t, int64(1), out.Calls[0].ID)
	assert.Equal(t, 1, out.Pagination.Total)
}

func TestListCallsBadTimeFilter(t *testing.T) {
	router := newRouter(t, &stubRepo{}, true)

	req := httptest.NewRequest(http.MethodGet, "/calls?from=notatime", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestListCallsRequiresAuth(t *testing.T) {
	router := newRouter(t, &stubRepo{}, false)

	req := httptest.NewRequest(http.MethodGet, "/calls", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestShowCall(t *testing.T) {
	repo := &stubRepo{calls: []calls.Call{{ID: 9, CampaignID: 5, Status: calls.StatusConnected}}}
	router := newRouter(t, repo, true)

	req := httptest.NewRequest(http.MethodGet, "/calls/9", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	var call calls.Call
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &call))
	assert.Equal(t, calls.StatusConnected, call.Status)
}

func TestShowCallNotFound(t *testing.T) {
	router := newRouter(t, &stubRepo{}, true)

	req := httptest.NewRequest(http.MethodGet, "/calls/404", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestCampaignStats(t *testing.T) {
	repo := &stubRepo{stats: &calls.CampaignStats{
		CampaignID: 5, TotalCalls: 40, Connected: 30, Billable: 24,
		AvgDuration: 95.5, TotalCharge: 1080, TotalPayout: 720, ConversionPct: 60,
	}}
	router := newRouter(t, repo, true)

	req := httptest.NewRequest(http.MethodGet, "/campaigns/5/calls/stats", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var stats calls.CampaignStats
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &stats))
	assert.Equal(t, 40, stats.TotalCalls)
	assert.Equal(t, float64(60), stats.ConversionPct)
}