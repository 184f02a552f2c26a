package models

type PaymentIntentRequest struct {
	// Amount is in minor units. With an OrderID it may be omitted and is
	// taken from the order total.
	Amount  int64  `json:"amount" validate:"gte=0"`
	OrderID string `json:"orderId,omitempty"`
}

type PaymentIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}
