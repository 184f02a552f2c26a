package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"marketplace-api/internal/models"

	"github.com/rs/zerolog"
)

const maxWebhookBodyBytes = 65536

type paymentService interface {
	CreatePaymentIntent(ctx context.Context, req *models.PaymentIntentRequest) (*models.PaymentIntentResponse, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type PaymentHandler struct {
	payments paymentService
	logger   zerolog.Logger
}

func NewPaymentHandler(payments paymentService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger,
	}
}

func (h *PaymentHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentIntentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	resp, err := h.payments.CreatePaymentIntent(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// Webhook needs the untouched body for signature verification.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Request body is too large")
			return
		}
		h.logger.Error().Err(err).Msg("Error reading webhook body")
		respondWithError(w, http.StatusServiceUnavailable, "read_failed", "Failed to read request body")
		return
	}

	if err := h.payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		respondWithServiceError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, models.WebhookResponse{Received: true})
}
