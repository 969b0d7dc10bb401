package blog

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
	// The published feed is public.
	r.Get("/", h.ListPublished)
	r.Get("/slug/{slug}", h.ShowBySlug)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("admin"))
		r.Get("/all", h.ListAll)
		r.Get("/{id}", h.Show)
		r.Post("/", h.Create)
		r.Patch("/{id}", h.Update)
		r.Post("/{id}/publish", h.Publish)
		r.Post("/{id}/unpublish", h.Unpublish)
		r.Delete("/{id}", h.Archive)
	})
}

func (h *Handler) ListPublished(w http.ResponseWriter, r *http.Request) {
	req, ok := h.listRequest(w, r)
	if !ok {
		return
	}
	posts, total, err := h.service.ListPublished(r.Context(), req)
	if err != nil {
		h.respondError(w, err, "list published posts")
		return
	}
	h.renderList(w, posts, total, req)
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	req, ok := h.listRequest(w, r)
	if !ok {
		return
	}
	if v := r.URL.Query().Get("status"); v != "" {
		req.Status = &v
		if err := h.validator.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}
	posts, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, err, "list posts")
		return
	}
	h.renderList(w, posts, total, req)
}

func (h *Handler) ShowBySlug(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.GetPublishedBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondError(w, err, "get post by slug")
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}
	post, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "get post")
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	authorID, okAuth := rbac.CurrentUserID(r)
	if !okAuth {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	post, err := h.service.Create(r.Context(), authorID, req)
	if err != nil {
		h.respondError(w, err, "create post")
		return
	}
	httpx.JSON(w, http.StatusCreated, post)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}
	var req UpdatePostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	post, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err, "update post")
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}
	post, err := h.service.Publish(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "publish post")
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}
	post, err := h.service.Unpublish(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "unpublish post")
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}
	if err := h.service.Archive(r.Context(), id); err != nil {
		h.respondError(w, err, "archive post")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRequest(w http.ResponseWriter, r *http.Request) (ListPostsRequest, bool) {
	req := ListPostsRequest{Limit: 20}
	if v := r.URL.Query().Get("tag"); v != "" {
		req.Tag = &v
	}
	if v := r.URL.Query().Get("search"); v != "" {
		req.Search = &v
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
		return req, false
	}
	return req, true
}

func (h *Handler) renderList(w http.ResponseWriter, posts []Post, total int, req ListPostsRequest) {
	page := req.Offset/req.Limit + 1
	httpx.JSON(w, http.StatusOK, map[string]any{
		"posts":      posts,
		"pagination": shared.NewPagination(page, req.Limit, total),
	})
}

func (h *Handler) postID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid post ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "post not found")
	case errors.Is(err, ErrSlugTaken):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
