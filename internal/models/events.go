package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types published on the payment events topic
const (
	EventTypeOrderPaid        = "ORDER_PAID"
	EventTypeCourseEnrolled   = "COURSE_ENROLLED"
	EventTypeEnrollmentFailed = "ENROLLMENT_FAILED"
)

// Paths that can confirm a payment
const (
	PaymentSourceClient  = "client"
	PaymentSourceWebhook = "webhook"
	PaymentSourceFree    = "free"
	PaymentSourceRetry   = "retry"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderPaidEvent published when a payment order flips to paid
type OrderPaidEvent struct {
	BaseEvent
	OrderID          uuid.UUID `json:"order_id"`
	CourseID         uuid.UUID `json:"course_id"`
	StudentID        uuid.UUID `json:"student_id"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	PaidAt           time.Time `json:"paid_at"`
	Source           string    `json:"source"`
}

// CourseEnrolledEvent published when membership actually changed
type CourseEnrolledEvent struct {
	BaseEvent
	CourseID  uuid.UUID `json:"course_id"`
	StudentID uuid.UUID `json:"student_id"`
	Source    string    `json:"source"`
}

// EnrollmentFailedEvent asks the retry worker to re-apply an enrollment
type EnrollmentFailedEvent struct {
	BaseEvent
	CourseID  uuid.UUID `json:"course_id"`
	StudentID uuid.UUID `json:"student_id"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
}
