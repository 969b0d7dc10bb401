package campaigns

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dependable-calls/dce/internal/platform/httpx"
	"github.com/dependable-calls/dce/internal/rbac"
	"github.com/dependable-calls/dce/internal/shared"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      rbacMW,
		validator: validator.New(),
	}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("buyer", "admin"))
		r.Post("/", h.Create)
		r.Patch("/{id}", h.Update)
		r.Post("/{id}/transition", h.Transition)
		r.Delete("/{id}", h.Archive)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	req := ListCampaignsRequest{Limit: 50}

	if v := r.URL.Query().Get("status"); v != "" {
		req.Status = &v
	}
	if v := r.URL.Query().Get("vertical"); v != "" {
		req.Vertical = &v
	}
	if v := r.URL.Query().Get("search"); v != "" {
		req.Search = &v
	}
	if v := r.URL.Query().Get("buyer_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			req.BuyerID = &id
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			req.Limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			req.Offset = parsed
		}
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	campaigns, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list campaigns", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	page := req.Offset/req.Limit + 1
	httpx.JSON(w, http.StatusOK, map[string]any{
		"campaigns":  campaigns,
		"pagination": shared.NewPagination(page, req.Limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	campaign, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "get campaign", id)
		return
	}
	httpx.JSON(w, http.StatusOK, campaign)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if actor.admin() && req.BuyerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "buyer_id required")
		return
	}

	campaign, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		h.respondError(w, err, "create campaign", 0)
		return
	}
	httpx.JSON(w, http.StatusCreated, campaign)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req UpdateCampaignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	campaign, err := h.service.Update(r.Context(), actor, id, req)
	if err != nil {
		h.respondError(w, err, "update campaign", id)
		return
	}
	httpx.JSON(w, http.StatusOK, campaign)
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	campaign, err := h.service.Transition(r.Context(), actor, id, Status(req.Status))
	if err != nil {
		h.respondError(w, err, "transition campaign", id)
		return
	}
	httpx.JSON(w, http.StatusOK, campaign)
}

func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.Archive(r.Context(), actor, id); err != nil {
		h.respondError(w, err, "archive campaign", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// actor resolves the acting principal from the session. A buyer without a
// buyer profile is rejected here, before any campaign is touched.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	userID, ok := rbac.CurrentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return Actor{}, false
	}
	actor, err := h.service.ResolveActor(r.Context(), userID, rbac.CurrentRole(r))
	if err != nil {
		h.respondError(w, err, "resolve actor", userID)
		return Actor{}, false
	}
	return actor, true
}

func (h *Handler) campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid campaign ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error, op string, id int64) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "campaign not found")
	case errors.Is(err, ErrAlreadyExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "campaign not owned by current user")
	default:
		h.logger.Error(op, slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
