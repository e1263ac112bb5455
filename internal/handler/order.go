package handler

import (
	"errors"
	"net/http"

	"github.com/efreitasn/exchangesim/internal/domain"
	"github.com/efreitasn/exchangesim/internal/service"
	"github.com/go-chi/chi/v5"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// addOrderRequest is the JSON request body for POST /orders/buy and
// POST /orders/sell.
type addOrderRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
	UUID     string `json:"uuid"`
}

// Buy handles POST /orders/buy.
func (h *OrderHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.add(w, r, h.orderSvc.SubmitBuy)
}

// Sell handles POST /orders/sell.
func (h *OrderHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.add(w, r, h.orderSvc.SubmitSell)
}

func (h *OrderHandler) add(w http.ResponseWriter, r *http.Request, submit func(service.SubmitOrderRequest) (domain.Order, error)) {
	var req addOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, err := submit(service.SubmitOrderRequest{
		UUID:     req.UUID,
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			WriteError(w, http.StatusBadRequest, "validation_error", ve.Message)
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	w.Header().Set("Location", "/orders/"+order.UUID)
	WriteJSON(w, http.StatusCreated, order)
}

// Get handles GET /orders/{uuid}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	order, ok := h.orderSvc.Get(uuid)
	if !ok {
		WriteError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	WriteJSON(w, http.StatusOK, order)
}

// Cancel handles DELETE /orders/{uuid}. Cancelling an unknown or
// already-cancelled order succeeds; an order mid-match responds 423 so the
// client can retry once the matching pass releases it.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	err := h.orderSvc.Cancel(uuid)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, domain.ErrOrderLocked):
		WriteError(w, http.StatusLocked, "order_locked", "order is locked for matching, retry later")
	case errors.Is(err, domain.ErrOrderNotCancellable):
		WriteError(w, http.StatusMethodNotAllowed, "order_not_cancellable", "order cannot be cancelled in its current state")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
