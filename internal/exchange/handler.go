package exchange

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/brecho-erp/brecho-erp/internal/money"
	"github.com/brecho-erp/brecho-erp/internal/platform/httpx"
	"github.com/brecho-erp/brecho-erp/internal/shared"
)

const listPageLimit = 50

// Handler manages troca HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.request)
	r.Get("/", h.listByStatus)
	r.Get("/{id}", h.get)
	r.Get("/{id}/violations", h.preview)
	r.Get("/sale/{saleID}", h.listBySale)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/cancel", h.cancel)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,min=5"`
}

type trocaResponse struct {
	Troca
	DifferenceDisplay string `json:"difference_display"`
	RefundDisplay     string `json:"refund_display"`
}

func toResponse(t Troca) trocaResponse {
	return trocaResponse{
		Troca:             t,
		DifferenceDisplay: money.FormatBRL(t.Difference),
		RefundDisplay:     money.FormatBRL(t.RefundedAmount),
	}
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	t, err := h.service.Request(r.Context(), req)
	if err != nil {
		h.respondError(w, "request troca", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(t))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get troca", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	violations, err := h.service.Preview(r.Context(), id)
	if err != nil {
		h.respondError(w, "preview troca", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"ok":         len(violations) == 0,
		"violations": violations,
	})
}

func (h *Handler) listBySale(w http.ResponseWriter, r *http.Request) {
	saleID, ok := h.pathID(w, r, "saleID")
	if !ok {
		return
	}
	trocas, err := h.service.ListBySale(r.Context(), saleID)
	if err != nil {
		h.respondError(w, "list trocas by sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(trocas))
}

func (h *Handler) listByStatus(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if status == "" {
		status = StatusSolicitado
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	trocas, err := h.service.ListByStatus(r.Context(), status, listPageLimit, (page-1)*listPageLimit)
	if err != nil {
		h.respondError(w, "list trocas", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(trocas))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	staffID, err := shared.OperatorID(r)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
		return
	}
	t, err := h.service.Approve(r.Context(), id, staffID, shared.IdempotencyKey(r))
	if err != nil {
		h.respondError(w, "approve troca", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	staffID, err := shared.OperatorID(r)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	t, err := h.service.Reject(r.Context(), id, staffID, req.Reason)
	if err != nil {
		h.respondError(w, "reject troca", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.service.Complete(r.Context(), id, shared.IdempotencyKey(r))
	if err != nil {
		h.respondError(w, "complete troca", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.respondError(w, "cancel troca", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(t))
}

func toResponses(trocas []Troca) []trocaResponse {
	out := make([]trocaResponse, 0, len(trocas))
	for _, t := range trocas {
		out = append(out, toResponse(t))
	}
	return out
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "numeric id required")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var ruleErr *RuleViolationError
	switch {
	case errors.As(err, &ruleErr):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":      "Rule Violations",
			"status":     http.StatusUnprocessableEntity,
			"violations": ruleErr.Violations,
		})
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
