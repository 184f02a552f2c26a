package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"userId"`
	Items           []OrderItem            `json:"items"`
	TotalAmount     decimal.Decimal        `json:"totalAmount"`
	Status          OrderStatus            `json:"status"`
	PaymentStatus   PaymentStatus          `json:"paymentStatus"`
	PaymentIntentID string                 `json:"paymentIntentId,omitempty"`
	ShippingInfo    map[string]interface{} `json:"shippingInfo"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type PlaceOrderRequest struct {
	ShippingInfo map[string]interface{} `json:"shippingInfo"`
}

type UpdateOrderStatusRequest struct {
	Status        string `json:"status" validate:"required,oneof=pending processing shipped delivered"`
	PaymentStatus string `json:"paymentStatus" validate:"omitempty,oneof=pending paid"`
}
