package handlers

import (
	"context"
	"net/http"

	"marketplace-api/internal/models"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type cartService interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	AddItem(ctx context.Context, userID string, req *models.CartItemRequest) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID string, req *models.CartItemRequest) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*models.Cart, error)
}

type CartHandler struct {
	carts  cartService
	logger zerolog.Logger
}

func NewCartHandler(carts cartService, logger zerolog.Logger) *CartHandler {
	return &CartHandler{
		carts:  carts,
		logger: logger,
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req models.CartItemRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	cart, err := h.carts.AddItem(r.Context(), userID, &req)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req models.CartItemRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	cart, err := h.carts.UpdateItemQuantity(r.Context(), userID, &req)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(r.Context(), userID, mux.Vars(r)["productId"])
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, cart)
}
