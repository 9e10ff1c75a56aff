package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Course is the catalog entry being sold. Price is in major currency units.
type Course struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Price       float64   `db:"price" json:"price"`
	CreatorID   uuid.UUID `db:"creator_id" json:"creator_id"`
	IsPublished bool      `db:"is_published" json:"is_published"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// User is read-only here; accounts are owned by the auth service.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PaymentOrder is one attempt to buy one course through the gateway.
type PaymentOrder struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	CourseID         uuid.UUID  `db:"course_id" json:"course_id"`
	StudentID        uuid.UUID  `db:"student_id" json:"student_id"`
	GatewayOrderID   string     `db:"gateway_order_id" json:"razorpay_order_id"`
	GatewayPaymentID *string    `db:"gateway_payment_id" json:"razorpay_payment_id,omitempty"`
	GatewaySignature *string    `db:"gateway_signature" json:"-"`
	Amount           int64      `db:"amount" json:"amount"`
	Currency         string     `db:"currency" json:"currency"`
	Paid             bool       `db:"paid" json:"is_paid"`
	PaidAt           *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	Method           string     `db:"method" json:"method"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// PaymentConfirmation carries the fields written by the false->true
// transition of PaymentOrder.Paid.
type PaymentConfirmation struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Method           string
	PaidAt           time.Time
}

// CourseEnrollment is the user-side entry of the enrollment relation.
type CourseEnrollment struct {
	StudentID         uuid.UUID     `db:"student_id" json:"student_id"`
	CourseID          uuid.UUID     `db:"course_id" json:"course_id"`
	EnrolledAt        time.Time     `db:"enrolled_at" json:"enrolled_at"`
	Progress          int           `db:"progress" json:"progress"`
	CompletedLectures pq.StringArray `db:"completed_lectures" json:"completed_lectures"`
}

// Invoice is issued once per paid order.
type Invoice struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	InvoiceNumber string     `db:"invoice_number" json:"invoice_number"`
	OrderID       uuid.UUID  `db:"order_id" json:"order_id"`
	StudentID     uuid.UUID  `db:"student_id" json:"student_id"`
	CourseID      uuid.UUID  `db:"course_id" json:"course_id"`
	CourseTitle   string     `db:"course_title" json:"course_title,omitempty"`
	Amount        int64      `db:"amount" json:"amount"`
	Tax           int64      `db:"tax" json:"tax"`
	Total         int64      `db:"total" json:"total"`
	Currency      string     `db:"currency" json:"currency"`
	Status        string     `db:"status" json:"status"`
	InvoiceType   string     `db:"invoice_type" json:"invoice_type"`
	IssuedAt      time.Time  `db:"issued_at" json:"issued_at"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Payment methods
const (
	PaymentMethodUPI        = "upi"
	PaymentMethodCard       = "card"
	PaymentMethodNetbanking = "netbanking"
	PaymentMethodWallet     = "wallet"
	PaymentMethodAll        = "all"
)

// NormalizePaymentMethod maps a gateway method tag onto the stored set,
// falling back to "all" for anything unknown.
func NormalizePaymentMethod(method string) string {
	switch method {
	case PaymentMethodUPI, PaymentMethodCard, PaymentMethodNetbanking, PaymentMethodWallet:
		return method
	default:
		return PaymentMethodAll
	}
}

// Invoice statuses
const (
	InvoiceStatusPaid     = "paid"
	InvoiceStatusPending  = "pending"
	InvoiceStatusFailed   = "failed"
	InvoiceStatusRefunded = "refunded"
)

// Invoice types
const (
	InvoiceTypeOneTime      = "one-time"
	InvoiceTypeSubscription = "subscription"
)

// User roles
const (
	RoleEducator = "educator"
	RoleStudent  = "student"
)
