package credit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/brecho-erp/brecho-erp/internal/money"
	"github.com/brecho-erp/brecho-erp/internal/platform/httpx"
	"github.com/brecho-erp/brecho-erp/internal/shared"
)

// Handler manages credit HTTP endpoints.
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
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/release", h.release)
	r.Post("/{id}/use", h.use)
	r.Post("/{id}/payout", h.payOut)
	r.Get("/fornecedora/{fornecedoraID}", h.listByFornecedora)
	r.Get("/fornecedora/{fornecedoraID}/summary", h.summary)
}

type createRequest struct {
	FornecedoraID int64           `json:"fornecedora_id" validate:"required"`
	SaleID        int64           `json:"sale_id" validate:"required"`
	ProductID     int64           `json:"product_id" validate:"required"`
	SaleValue     decimal.Decimal `json:"sale_value"`
	Percentage    decimal.Decimal `json:"percentage"`
	SaleDate      time.Time       `json:"sale_date" validate:"required"`
}

type useRequest struct {
	Mode UsageMode `json:"mode" validate:"required"`
}

type creditResponse struct {
	Credit
	AmountDisplay       string `json:"amount_display"`
	ValueWithBonus      string `json:"value_with_bonus"`
	DaysUntilMaturation int    `json:"days_until_maturation"`
}

func (h *Handler) toResponse(c Credit) creditResponse {
	return creditResponse{
		Credit:              c,
		AmountDisplay:       money.FormatBRL(c.Amount),
		ValueWithBonus:      c.ValueWithBonus().StringFixed(2),
		DaysUntilMaturation: c.DaysUntilMaturation(time.Now()),
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.CreateFromSale(r.Context(), SaleDetails{
		FornecedoraID: req.FornecedoraID,
		SaleID:        req.SaleID,
		ProductID:     req.ProductID,
		SaleValue:     req.SaleValue,
		Percentage:    req.Percentage,
		SaleDate:      req.SaleDate,
	})
	if err != nil {
		h.respondError(w, "create credit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.toResponse(c))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(c))
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.service.Release(r.Context(), id)
	if err != nil {
		h.respondError(w, "release credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(c))
}

func (h *Handler) use(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req useRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.Use(r.Context(), id, req.Mode, shared.IdempotencyKey(r))
	if err != nil {
		h.respondError(w, "use credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(c))
}

func (h *Handler) payOut(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.service.PayOut(r.Context(), id, shared.IdempotencyKey(r))
	if err != nil {
		h.respondError(w, "pay out credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toResponse(c))
}

func (h *Handler) listByFornecedora(w http.ResponseWriter, r *http.Request) {
	fornecedoraID, ok := h.pathID(w, r, "fornecedoraID")
	if !ok {
		return
	}
	credits, err := h.service.ListByFornecedora(r.Context(), fornecedoraID)
	if err != nil {
		h.respondError(w, "list credits", err)
		return
	}
	out := make([]creditResponse, 0, len(credits))
	for _, c := range credits {
		out = append(out, h.toResponse(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	fornecedoraID, ok := h.pathID(w, r, "fornecedoraID")
	if !ok {
		return
	}
	sum, err := h.service.SummaryFor(r.Context(), fornecedoraID)
	if err != nil {
		h.respondError(w, "credit summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
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
	switch {
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
