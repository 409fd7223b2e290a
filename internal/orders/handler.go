package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/orderdesk/orderdesk/internal/platform/httpx"
	"github.com/orderdesk/orderdesk/internal/shared"
)

// Handler serves the order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	query    *QueryService
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, query *QueryService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		query:    query,
		validate: validator.New(),
	}
}

// MountRoutes registers the order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{id}", h.getOrder)
	r.Post("/{id}/cancel", h.cancelOrder)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	in := CreateOrderInput{
		ClientID:       req.ClientID,
		WorkerID:       req.WorkerID,
		Kind:           req.Kind,
		Notes:          req.Notes,
		Lines:          make([]LineInput, 0, len(req.Lines)),
		IdempotencyKey: req.IdempotencyKey,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput{
			ItemID:    line.ItemID,
			Name:      line.Name,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
			IsCustom:  line.IsCustom,
		})
	}
	if req.InitialPayment != nil {
		in.InitialPayment = &InitialPayment{
			Amount:    req.InitialPayment.Amount,
			Method:    req.InitialPayment.Method,
			Reference: req.InitialPayment.Reference,
		}
	}

	order, err := h.service.CreateOrder(r.Context(), actor, in)
	if err != nil {
		h.respondCreateError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

// respondCreateError keeps the partial-failure contract visible to callers:
// a stage failure that left an order behind reports the order id so the
// caller can retry the payment or inspect the voided order.
func (h *Handler) respondCreateError(w http.ResponseWriter, r *http.Request, err error) {
	var stageErr *StageError
	if errors.As(err, &stageErr) && stageErr.OrderID != 0 {
		status := http.StatusConflict
		switch {
		case errors.Is(err, httpx.ErrUnprocessable):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, httpx.ErrValidation):
			status = http.StatusBadRequest
		case !errors.Is(err, httpx.ErrConflict) && !errors.Is(err, httpx.ErrDuplicate):
			status = http.StatusInternalServerError
			h.logger.Error("create order", slog.Any("error", err), slog.String("stage", string(stageErr.Stage)))
		}
		httpx.JSON(w, status, map[string]any{
			"title":    "Order Creation Failed",
			"status":   status,
			"detail":   shared.UserSafeMessage(stageErr.Err),
			"stage":    stageErr.Stage,
			"order_id": stageErr.OrderID,
		})
		return
	}

	if isInternal(err) {
		h.logger.Error("create order", slog.Any("error", err))
	}
	httpx.RespondError(w, mapShared(err))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	q := ListOrdersQuery{
		Status: r.URL.Query().Get("status"),
		From:   r.URL.Query().Get("from"),
		To:     r.URL.Query().Get("to"),
		Search: r.URL.Query().Get("search"),
	}
	q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	q.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))

	summaries, pagination, err := h.query.List(r.Context(), actor, q)
	if err != nil {
		if isInternal(err) {
			h.logger.Error("list orders", slog.Any("error", err))
		}
		httpx.RespondError(w, mapShared(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders": summaries,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		if isInternal(err) {
			h.logger.Error("get order", slog.Any("error", err), slog.Int64("id", id))
		}
		httpx.RespondError(w, mapShared(err))
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.Cancel(r.Context(), actor, id)
	if err != nil {
		if isInternal(err) {
			h.logger.Error("cancel order", slog.Any("error", err), slog.Int64("id", id))
		}
		httpx.RespondError(w, mapShared(err))
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return 0, false
	}
	return id, true
}

func mapShared(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return httpx.ErrNotFound
	}
	return err
}

func isInternal(err error) bool {
	return !errors.Is(err, shared.ErrNotFound) &&
		!errors.Is(err, httpx.ErrValidation) &&
		!errors.Is(err, httpx.ErrConflict) &&
		!errors.Is(err, httpx.ErrUnprocessable) &&
		!errors.Is(err, httpx.ErrDuplicate) &&
		!errors.Is(err, httpx.ErrNotFound)
}
