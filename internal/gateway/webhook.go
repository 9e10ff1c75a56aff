package gateway

import (
	"encoding/json"
	"fmt"
)

// Webhook event names acted upon
const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentAuthorized = "payment.authorized"
)

// Webhook headers
const (
	HeaderSignature = "X-Razorpay-Signature"
	HeaderEventID   = "X-Razorpay-Event-Id"
)

// WebhookEvent is the envelope POSTed by the gateway.
type WebhookEvent struct {
	Entity    string         `json:"entity"`
	AccountID string         `json:"account_id"`
	Event     string         `json:"event"`
	Contains  []string       `json:"contains"`
	Payload   WebhookPayload `json:"payload"`
	CreatedAt int64          `json:"created_at"`
}

type WebhookPayload struct {
	Payment *PaymentWrapper `json:"payment,omitempty"`
}

type PaymentWrapper struct {
	Entity PaymentEntity `json:"entity"`
}

// PaymentEntity is the subset of the payment entity used for reconciliation.
type PaymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Email    string `json:"email"`
}

// ParseWebhookEvent decodes an already verified body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook body: %w", err)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("webhook body has no event type")
	}
	return &event, nil
}

// IsPaymentSuccess reports whether the event confirms money was received.
func (e *WebhookEvent) IsPaymentSuccess() bool {
	return e.Event == EventPaymentCaptured || e.Event == EventPaymentAuthorized
}

// PaymentEntity returns the nested payment entity, or nil.
func (e *WebhookEvent) PaymentEntity() *PaymentEntity {
	if e.Payload.Payment == nil {
		return nil
	}
	return &e.Payload.Payment.Entity
}
