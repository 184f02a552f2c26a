package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
	TypeOrderPaid          = "order.paid"
)

type OrderEvent struct {
	Type          string           `json:"type"`
	OrderID       string           `json:"orderId"`
	UserID        string           `json:"userId,omitempty"`
	Status        string           `json:"status,omitempty"`
	PaymentStatus string           `json:"paymentStatus,omitempty"`
	TotalAmount   *decimal.Decimal `json:"totalAmount,omitempty"`
	OccurredAt    time.Time        `json:"occurredAt"`
}

// Publisher delivers order events. Delivery is best effort; callers log
// failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close()
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }

func (NopPublisher) Close() {}
