package security

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dependable-calls/dce/internal/observability"
	"github.com/dependable-calls/dce/internal/platform/httpx"
	"github.com/dependable-calls/dce/internal/rbac"
	"github.com/dependable-calls/dce/internal/shared"
)

const maxReportBody = 64 << 10

type Handler struct {
	logger  *slog.Logger
	repo    Repository
	limiter *ReportLimiter
	metrics *observability.Metrics
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, repo Repository, limiter *ReportLimiter, metrics *observability.Metrics, rbacMW rbac.Middleware) *Handler {
	return &Handler{
		logger:  logger,
		repo:    repo,
		limiter: limiter,
		metrics: metrics,
		rbac:    rbacMW,
	}
}

func (h *Handler) MountRoutes(r chi.Router) {
	// Browsers post reports without credentials.
	r.Post("/csp-report", h.Receive)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("admin"))
		r.Get("/csp-reports", h.List)
	})
}

// Receive accepts a browser CSP violation report. Accepted reports return
// 204; the browser never reads the body.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	clientIP := clientAddr(r)
	if !h.limiter.Allow(r.Context(), clientIP) {
		httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "report rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxReportBody))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unreadable body")
		return
	}

	var payload CSPReportPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid report payload")
		return
	}
	report := payload.Report
	if report.DocumentURI == "" && report.ViolatedDirective == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "empty report")
		return
	}

	patterns, severity := Classify(report)
	stored := StoredReport{
		DocumentURI:       report.DocumentURI,
		ViolatedDirective: report.EffectiveDirectiveOrViolated(),
		BlockedURI:        report.BlockedURI,
		SourceFile:        report.SourceFile,
		ScriptSample:      truncate(report.ScriptSample, 200),
		Severity:          severity,
		ThreatPatterns:    patterns,
		ClientIP:          clientIP,
		UserAgent:         truncate(r.UserAgent(), 255),
	}
	if err := h.repo.Insert(r.Context(), stored); err != nil {
		// The browser will not retry; log and acknowledge anyway.
		h.logger.Error("store csp report", slog.Any("error", err))
	}

	h.metrics.AddCSPReport(severity)
	if severity == SeverityCritical || severity == SeverityHigh {
		h.logger.Warn("csp violation",
			slog.String("severity", severity),
			slog.Any("patterns", patterns),
			slog.String("blocked_uri", report.BlockedURI),
			slog.String("document_uri", report.DocumentURI),
			slog.String("client_ip", clientIP),
		)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var severity *string
	if v := r.URL.Query().Get("severity"); v != "" {
		if _, ok := severityRank[v]; !ok {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown severity")
			return
		}
		severity = &v
	}
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	reports, total, err := h.repo.List(r.Context(), severity, limit, offset)
	if err != nil {
		h.logger.Error("list csp reports", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	page := offset/limit + 1
	httpx.JSON(w, http.StatusOK, map[string]any{
		"reports":    reports,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

// clientAddr returns the remote IP without the port. RealIP middleware has
// already rewritten RemoteAddr from X-Forwarded-For.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
