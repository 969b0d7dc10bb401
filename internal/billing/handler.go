package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dependable-calls/dce/internal/platform/httpx"
	"github.com/dependable-calls/dce/internal/rbac"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "DCE-Signature"

const maxWebhookBody = 1 << 20

type Handler struct {
	logger     *slog.Logger
	service    *Service
	dispatcher *Dispatcher
	verifier   *SignatureVerifier
	rbac       rbac.Middleware
	validator  *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, dispatcher *Dispatcher, verifier *SignatureVerifier, rbacMW rbac.Middleware) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		dispatcher: dispatcher,
		verifier:   verifier,
		rbac:       rbacMW,
		validator:  validator.New(),
	}
}

func (h *Handler) MountRoutes(r chi.Router) {
	// The provider authenticates with the signature header, not a session.
	r.Post("/webhook", h.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("admin"))
		r.Post("/invoices", h.CreateInvoice)
		r.Post("/invoices/{id}/finalize", h.FinalizeInvoice)
		r.Delete("/invoices/{id}", h.VoidInvoice)
		r.Post("/payouts/{id}/status", h.UpdatePayoutStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("buyer", "admin"))
		r.Get("/invoices", h.ListInvoices)
		r.Get("/invoices/{id}", h.ShowInvoice)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("supplier", "admin"))
		r.Post("/payouts", h.RequestPayout)
		r.Get("/payouts", h.ListPayouts)
		r.Get("/payouts/{id}", h.ShowPayout)
		r.Delete("/payouts/{id}", h.CancelPayout)
	})
}

// Webhook receives signed events from the payment provider. The raw body is
// read before decoding because the signature covers the exact bytes sent.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unreadable body")
		return
	}

	if err := h.verifier.Verify(r.Header.Get(SignatureHeader), body); err != nil {
		h.logger.Warn("webhook signature rejected", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "signature verification failed")
		return
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid event payload")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), event)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			// Acknowledge types we do not handle so the provider stops retrying.
			h.logger.Info("webhook event ignored",
				slog.String("type", event.Type),
				slog.String("event_id", event.ID),
			)
			httpx.JSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
			return
		}
		h.logger.Error("webhook dispatch", slog.Any("error", err), slog.String("event_id", event.ID))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": result.Duplicate})
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := rbac.CurrentUserID(r)
	inv, err := h.service.CreateInvoice(r.Context(), actorID, req)
	if err != nil {
		h.respondError(w, err, "create invoice")
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) FinalizeInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actorID, _ := rbac.CurrentUserID(r)
	inv, err := h.service.FinalizeInvoice(r.Context(), actorID, id)
	if err != nil {
		h.respondError(w, err, "finalize invoice")
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) VoidInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actorID, _ := rbac.CurrentUserID(r)
	if err := h.service.VoidInvoice(r.Context(), actorID, id); err != nil {
		h.respondError(w, err, "void invoice")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var buyerID *int64
	var status *string
	if v := r.URL.Query().Get("buyer_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			buyerID = &id
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status = &v
	}
	invoices, err := h.service.ListInvoices(r.Context(), actor, buyerID, status)
	if err != nil {
		h.respondError(w, err, "list invoices")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) ShowInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err, "get invoice")
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	// supplier_id is honored for admins only; suppliers settle their own
	// balance.
	var req struct {
		SupplierID int64 `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if actor.Role == "admin" && req.SupplierID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "supplier_id required")
		return
	}
	payout, err := h.service.RequestPayout(r.Context(), actor, req.SupplierID)
	if err != nil {
		h.respondError(w, err, "request payout")
		return
	}
	httpx.JSON(w, http.StatusCreated, payout)
}

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var supplierID *int64
	var status *string
	if v := r.URL.Query().Get("supplier_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			supplierID = &id
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status = &v
	}
	payouts, err := h.service.ListPayouts(r.Context(), actor, supplierID, status)
	if err != nil {
		h.respondError(w, err, "list payouts")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payouts": payouts})
}

func (h *Handler) ShowPayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	payout, err := h.service.GetPayout(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err, "get payout")
		return
	}
	httpx.JSON(w, http.StatusOK, payout)
}

func (h *Handler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelPayout(r.Context(), actor, id); err != nil {
		h.respondError(w, err, "cancel payout")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdatePayoutStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req PayoutStatusInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := rbac.CurrentUserID(r)
	payout, err := h.service.UpdatePayoutStatus(r.Context(), actorID, id, req)
	if err != nil {
		h.respondError(w, err, "update payout status")
		return
	}
	httpx.JSON(w, http.StatusOK, payout)
}

// actor resolves the acting principal from the session. A supplier or buyer
// without a matching profile is rejected before any record is touched.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	userID, ok := rbac.CurrentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return Actor{}, false
	}
	actor, err := h.service.ResolveActor(r.Context(), userID, rbac.CurrentRole(r))
	if err != nil {
		h.respondError(w, err, "resolve actor")
		return Actor{}, false
	}
	return actor, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "billing record not found")
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrNothingToSettle):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrProviderRefRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "billing record not owned by current user")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
