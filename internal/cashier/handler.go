package cashier

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/brecho-erp/brecho-erp/internal/money"
	"github.com/brecho-erp/brecho-erp/internal/platform/httpx"
	"github.com/brecho-erp/brecho-erp/internal/shared"
)

// Handler manages register session HTTP endpoints.
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
	r.Post("/", h.open)
	r.Get("/current", h.current)
	r.Get("/{id}", h.get)
	r.Post("/{id}/movements", h.recordMovement)
	r.Post("/{id}/close", h.close)
}

type openRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type movementRequest struct {
	Type          MovementType    `json:"type" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"required"`
	PaymentMethod *PaymentMethod  `json:"payment_method,omitempty"`
}

type closeRequest struct {
	CountedBalance decimal.Decimal `json:"counted_balance"`
	Notes          string          `json:"notes"`
}

type sessionResponse struct {
	CashSession
	ExpectedBalance    string           `json:"expected_balance"`
	ExpectedDisplay    string           `json:"expected_display"`
	DiscrepancyLabel   DiscrepancyLabel `json:"discrepancy_label"`
	DiscrepancyDisplay string           `json:"discrepancy_display,omitempty"`
}

func toResponse(s CashSession) sessionResponse {
	resp := sessionResponse{
		CashSession:      s,
		ExpectedBalance:  s.ExpectedBalance().StringFixed(2),
		ExpectedDisplay:  money.FormatBRL(s.ExpectedBalance()),
		DiscrepancyLabel: s.DiscrepancyLabel(),
	}
	if s.Discrepancy != nil {
		resp.DiscrepancyDisplay = money.FormatBRL(*s.Discrepancy)
	}
	return resp
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	operatorID, err := shared.OperatorID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Operator Required", err.Error())
		return
	}
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	sess, err := h.service.Open(r.Context(), operatorID, req.OpeningBalance)
	if err != nil {
		h.respondError(w, "open session", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(sess))
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	operatorID, err := shared.OperatorID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Operator Required", err.Error())
		return
	}
	sess, err := h.service.OpenForOperator(r.Context(), operatorID)
	if err != nil {
		h.respondError(w, "current session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(sess))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(sess))
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sess, m, err := h.service.RecordMovement(r.Context(), id, MovementInput{
		Type:          req.Type,
		Amount:        req.Amount,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
	}, shared.IdempotencyKey(r))
	if err != nil {
		h.respondError(w, "record movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, struct {
		Session  sessionResponse `json:"session"`
		Movement Movement        `json:"movement"`
	}{toResponse(sess), m})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	sess, err := h.service.Close(r.Context(), id, req.CountedBalance, req.Notes, shared.IdempotencyKey(r))
	if err != nil {
		h.respondError(w, "close session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(sess))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
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
	case errors.Is(err, ErrSessionClosed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Session Closed", err.Error())
	case errors.Is(err, ErrSessionAlreadyOpen):
		httpx.Problem(w, http.StatusConflict, "Session Already Open", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
