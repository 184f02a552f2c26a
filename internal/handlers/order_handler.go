package handlers

import (
	"context"
	"net/http"

	"marketplace-api/internal/middleware"
	"marketplace-api/internal/models"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type orderService interface {
	PlaceOrder(ctx context.Context, userID string, req *models.PlaceOrderRequest) (*models.Order, error)
	ListMyOrders(ctx context.Context, userID string) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, req *models.UpdateOrderStatusRequest) (*models.Order, error)
}

type OrderHandler struct {
	orders orderService
	logger zerolog.Logger
}

func NewOrderHandler(orders orderService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req models.PlaceOrderRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), userID, &req)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListMyOrders(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateOrderStatusRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	orderID := mux.Vars(r)["id"]
	order, err := h.orders.UpdateOrderStatus(r.Context(), orderID, &req)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	userID, _ := middleware.GetUserID(r)
	h.logger.Info().
		Str("order_id", orderID).
		Str("status", string(order.Status)).
		Str("changed_by", userID).
		Msg("Order status updated")

	respondWithJSON(w, http.StatusOK, order)
}
