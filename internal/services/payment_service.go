package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"marketplace-api/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

const stripeEventPaymentSucceeded = "payment_intent.succeeded"

// PaymentIntentCreator is satisfied by the stripe client's PaymentIntents.
type PaymentIntentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// OrderPayments is the part of the order service payments depend on.
type OrderPayments interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, orderID, paymentIntentID string) error
}

type PaymentService struct {
	intents       PaymentIntentCreator
	orders        OrderPayments
	currency      string
	webhookSecret string
	logger        zerolog.Logger
}

func NewPaymentService(intents PaymentIntentCreator, orders OrderPayments, currency, webhookSecret string, logger zerolog.Logger) *PaymentService {
	return &PaymentService{
		intents:       intents,
		orders:        orders,
		currency:      strings.ToLower(currency),
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

func (s *PaymentService) CreatePaymentIntent(ctx context.Context, req *models.PaymentIntentRequest) (*models.PaymentIntentResponse, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.OrderID == "" && req.Amount == 0 {
		return nil, validationError("amount must be greater than 0")
	}
	if s.intents == nil {
		return nil, newError(ErrUnavailable, "Payments are not configured")
	}

	// An intent tied to an order is always charged the order total.
	if req.OrderID != "" {
		order, err := s.orders.GetOrder(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		if order.PaymentStatus == models.PaymentStatusPaid {
			return nil, newError(ErrConflict, "Order is already paid")
		}
		total := minorUnits(order.TotalAmount)
		if req.Amount != 0 && req.Amount != total {
			return nil, validationError("amount does not match order total")
		}
		req.Amount = total
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(s.currency),
	}
	params.Context = ctx
	if req.OrderID != "" {
		params.AddMetadata("order_id", req.OrderID)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		s.logger.Error().Err(err).Int64("amount", req.Amount).Str("order_id", req.OrderID).Msg("Error creating payment intent")
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
			return nil, newError(ErrUpstream, stripeErr.Msg)
		}
		return nil, newError(ErrUpstream, "Payment provider request failed")
	}

	s.logger.Info().Str("payment_intent_id", pi.ID).Int64("amount", req.Amount).Msg("Payment intent created")
	return &models.PaymentIntentResponse{ClientSecret: pi.ClientSecret}, nil
}

// HandleWebhook verifies a Stripe event and marks the referenced order paid
// when a payment intent succeeds. Other event types are acknowledged.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhookSecret == "" {
		return newError(ErrUnavailable, "Webhook is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rejected webhook with invalid signature")
		return validationError("Invalid webhook signature")
	}

	if event.Type != stripeEventPaymentSucceeded {
		s.logger.Debug().Str("event_type", string(event.Type)).Msg("Ignoring webhook event")
		return nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return validationError("Invalid payment intent payload")
	}

	orderID := pi.Metadata["order_id"]
	if orderID == "" {
		s.logger.Info().Str("payment_intent_id", pi.ID).Msg("Payment succeeded without order reference")
		return nil
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn().Str("order_id", orderID).Str("payment_intent_id", pi.ID).Msg("Payment succeeded for unknown order")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}

	// A mismatch is acknowledged and the order stays unpaid.
	want := minorUnits(order.TotalAmount)
	if pi.Amount != want || !strings.EqualFold(string(pi.Currency), s.currency) {
		s.logger.Warn().
			Str("order_id", orderID).
			Str("payment_intent_id", pi.ID).
			Int64("amount", pi.Amount).
			Int64("expected_amount", want).
			Str("currency", string(pi.Currency)).
			Msg("Payment does not match order total")
		return nil
	}

	err = s.orders.MarkOrderPaid(ctx, orderID, pi.ID)
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn().Str("order_id", orderID).Str("payment_intent_id", pi.ID).Msg("Payment succeeded for unknown order")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	return nil
}

// minorUnits converts a two-decimal amount to the smallest currency unit.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
