package service

import (
	"context"
	"time"

	"course-payment-service/internal/models"

	"github.com/google/uuid"
)

// CourseStore resolves catalog entries.
type CourseStore interface {
	GetCourseByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// UserStore resolves accounts for role checks.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// PaymentOrderStore persists payment orders. MarkPaymentOrderPaid must be an
// atomic conditional update on the paid flag.
type PaymentOrderStore interface {
	CreatePaymentOrder(ctx context.Context, order *models.PaymentOrder) error
	GetPaymentOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error)
	MarkPaymentOrderPaid(ctx context.Context, c *models.PaymentConfirmation) (*models.PaymentOrder, bool, error)
	GetPaymentOrdersByStudent(ctx context.Context, studentID uuid.UUID) ([]models.PaymentOrder, error)
}

// EnrollmentStore performs field-scoped set inserts on both sides of the
// enrollment relation.
type EnrollmentStore interface {
	AddStudentToCourse(ctx context.Context, courseID, studentID uuid.UUID) (bool, error)
	AddCourseToStudent(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)
	GetStudentEnrollments(ctx context.Context, studentID uuid.UUID) ([]models.CourseEnrollment, error)
}

// InvoiceStore persists and queries invoices.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *models.Invoice) (bool, error)
	GetInvoiceByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	GetInvoicesByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Invoice, error)
	GetPaidInvoicesByCreator(ctx context.Context, creatorID uuid.UUID) ([]models.Invoice, error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishCourseEnrolled(ctx context.Context, event *models.CourseEnrolledEvent) error
	PublishEnrollmentFailed(ctx context.Context, event *models.EnrollmentFailedEvent) error
}

// WebhookDeduper remembers delivered webhook event ids.
type WebhookDeduper interface {
	MarkWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ForgetWebhookEvent(ctx context.Context, eventID string) error
}
