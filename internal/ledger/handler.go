package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/orderdesk/orderdesk/internal/observability"
	"github.com/orderdesk/orderdesk/internal/platform/httpx"
	"github.com/orderdesk/orderdesk/internal/shared"
)

// Handler serves the payment endpoints nested under an order.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		metrics:  metrics,
	}
}

// MountRoutes registers the payment routes on the orders router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{id}/payments", h.recordPayment)
	r.Get("/{id}/payments", h.listPayments)
	r.Post("/{id}/payments/{paymentID}/cancel", h.cancelPayment)
	r.Get("/{id}/receipt", h.receipt)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	payment, err := h.service.Record(r.Context(), RecordInput{
		OrderID:        orderID,
		OrgID:          actor.OrgID,
		Amount:         req.Amount,
		Method:         req.Method,
		Reference:      req.Reference,
		RecordedBy:     actor.UserID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.logFailure(r, "record payment", err, orderID)
		httpx.RespondError(w, mapNotFound(err))
		return
	}
	if h.metrics != nil {
		h.metrics.PaymentsRecorded.Inc()
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	payments, err := h.service.Payments(r.Context(), actor.OrgID, orderID)
	if err != nil {
		h.logFailure(r, "list payments", err, orderID)
		httpx.RespondError(w, mapNotFound(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	paymentID, ok := pathID(w, r, "paymentID")
	if !ok {
		return
	}

	payment, err := h.service.Cancel(r.Context(), actor.OrgID, paymentID, actor.UserID)
	if err != nil {
		h.logFailure(r, "cancel payment", err, paymentID)
		httpx.RespondError(w, mapNotFound(err))
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	receipt, err := h.service.OrderReceipt(r.Context(), actor.OrgID, orderID)
	if err != nil {
		h.logFailure(r, "order receipt", err, orderID)
		httpx.RespondError(w, mapNotFound(err))
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) logFailure(r *http.Request, op string, err error, id int64) {
	if errors.Is(err, shared.ErrNotFound) || errors.Is(err, httpx.ErrValidation) ||
		errors.Is(err, httpx.ErrConflict) || errors.Is(err, httpx.ErrUnprocessable) ||
		errors.Is(err, httpx.ErrDuplicate) {
		return
	}
	h.logger.Error(op, slog.Any("error", err), slog.Int64("id", id), slog.String("path", r.URL.Path))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return 0, false
	}
	return id, true
}

func mapNotFound(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return httpx.ErrNotFound
	}
	return err
}
