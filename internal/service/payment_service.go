package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"course-payment-service/internal/gateway"
	"course-payment-service/internal/models"
	"course-payment-service/internal/signature"
	"course-payment-service/internal/store"
	"course-payment-service/internal/util"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultWebhookDedupeTTL = 24 * time.Hour

// PaymentSettings holds the non-secret knobs of the payment flow plus the
// webhook secret.
type PaymentSettings struct {
	Currency         string
	WebhookSecret    string
	WebhookDedupeTTL time.Duration
}

// PaymentService drives a course purchase from gateway order to enrollment.
// The client callback and the webhook converge on one conditional update of
// the order's paid flag.
type PaymentService struct {
	courses   CourseStore
	orders    PaymentOrderStore
	enroller  *Enroller
	gateway   gateway.Gateway
	publisher EventPublisher
	dedupe    WebhookDeduper
	settings  PaymentSettings
	receiptID func() string
	now       func() time.Time
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service. dedupe may be nil.
func NewPaymentService(
	courses CourseStore,
	orders PaymentOrderStore,
	enroller *Enroller,
	gw gateway.Gateway,
	publisher EventPublisher,
	dedupe WebhookDeduper,
	settings PaymentSettings,
) (*PaymentService, error) {
	receiptID, err := nanoid.Standard(15)
	if err != nil {
		return nil, fmt.Errorf("failed to init receipt id generator: %w", err)
	}

	if settings.Currency == "" {
		settings.Currency = "INR"
	}
	if settings.WebhookDedupeTTL == 0 {
		settings.WebhookDedupeTTL = defaultWebhookDedupeTTL
	}

	return &PaymentService{
		courses:   courses,
		orders:    orders,
		enroller:  enroller,
		gateway:   gw,
		publisher: publisher,
		dedupe:    dedupe,
		settings:  settings,
		receiptID: receiptID,
		now:       time.Now,
		logger:    util.GetLogger(),
	}, nil
}

// CreateOrderResponse is handed to the browser checkout
type CreateOrderResponse struct {
	Key          string         `json:"key"`
	Order        *gateway.Order `json:"order"`
	LocalOrderID uuid.UUID      `json:"localOrderId"`
	Mode         string         `json:"mode"`
}

// VerifyPaymentRequest is the checkout callback payload
type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

// VerifyPaymentResponse is returned after a successful verification
type VerifyPaymentResponse struct {
	Message string `json:"message"`
}

// AmountInMinorUnits converts a major-unit price to paise. Non-finite
// prices map to 0.
func AmountInMinorUnits(price float64) int64 {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0
	}
	return int64(math.Round(price * 100))
}

// CreateOrder opens a gateway order for the course and records it locally.
// The gateway is called before anything is persisted.
func (s *PaymentService) CreateOrder(ctx context.Context, studentID, courseID uuid.UUID) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreateOrder",
		attribute.String("course_id", courseID.String()),
		attribute.String("student_id", studentID.String()))
	defer span.End()

	course, err := s.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.PaymentOrdersRejectedTotal.WithLabelValues("course_not_found").Inc()
			return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
		}
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to load course: %w", err)
	}

	amount := AmountInMinorUnits(course.Price)
	if amount <= 0 {
		util.PaymentOrdersRejectedTotal.WithLabelValues("invalid_amount").Inc()
		return nil, fmt.Errorf("course %s priced %.2f: %w", courseID, course.Price, ErrInvalidAmount)
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, &gateway.OrderRequest{
		Amount:         amount,
		Currency:       s.settings.Currency,
		Receipt:        "rcpt_" + s.receiptID(),
		PaymentCapture: true,
		Notes: map[string]string{
			"course_id":  courseID.String(),
			"student_id": studentID.String(),
		},
	})
	if err != nil {
		util.PaymentOrdersRejectedTotal.WithLabelValues("gateway_error").Inc()
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	order := &models.PaymentOrder{
		ID:             uuid.New(),
		CourseID:       course.ID,
		StudentID:      studentID,
		GatewayOrderID: gwOrder.ID,
		Amount:         amount,
		Currency:       s.settings.Currency,
		Method:         models.PaymentMethodAll,
	}

	if err := s.orders.CreatePaymentOrder(ctx, order); err != nil {
		s.logger.Error("Gateway order opened but not persisted",
			zap.String("gateway_order_id", gwOrder.ID),
			zap.String("course_id", courseID.String()),
			zap.Error(err))
		util.PaymentOrdersRejectedTotal.WithLabelValues("db_error").Inc()
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to persist payment order: %w", err)
	}

	util.PaymentOrdersCreatedTotal.Inc()
	s.logger.Info("Payment order created",
		zap.String("order_id", order.ID.String()),
		zap.String("gateway_order_id", order.GatewayOrderID),
		zap.Int64("amount", amount))

	return &CreateOrderResponse{
		Key:          s.gateway.KeyID(),
		Order:        gwOrder,
		LocalOrderID: order.ID,
		Mode:         s.gateway.Mode(),
	}, nil
}

// VerifyPayment handles the checkout callback. A second submission of an
// already paid order fails with ErrAlreadyProcessed.
func (s *PaymentService) VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) (*VerifyPaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyPayment",
		attribute.String("gateway_order_id", req.OrderID))
	defer span.End()

	if !s.gateway.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature) {
		util.PaymentsVerifiedTotal.WithLabelValues("signature_mismatch").Inc()
		s.logger.Warn("Payment signature mismatch",
			zap.String("gateway_order_id", req.OrderID),
			zap.String("gateway_payment_id", req.PaymentID))
		return nil, ErrSignatureMismatch
	}

	order, err := s.orders.GetPaymentOrderByGatewayID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.PaymentsVerifiedTotal.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("payment order %s: %w", req.OrderID, ErrNotFound)
		}
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to load payment order: %w", err)
	}

	if order.Paid {
		util.PaymentsVerifiedTotal.WithLabelValues("already_paid").Inc()
		return nil, ErrAlreadyProcessed
	}

	paid, won, err := s.orders.MarkPaymentOrderPaid(ctx, &models.PaymentConfirmation{
		GatewayOrderID:   req.OrderID,
		GatewayPaymentID: req.PaymentID,
		Signature:        req.Signature,
		PaidAt:           s.now().UTC(),
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}
	if !won {
		// the webhook got there between the read and the update
		util.PaymentsVerifiedTotal.WithLabelValues("already_paid").Inc()
		return nil, ErrAlreadyProcessed
	}

	util.PaymentsVerifiedTotal.WithLabelValues("verified").Inc()
	s.completePaidOrder(ctx, paid, models.PaymentSourceClient)

	return &VerifyPaymentResponse{Message: "Payment verified and enrolled"}, nil
}

// HandleWebhook verifies and applies one gateway webhook delivery. Once the
// signature and envelope are valid it returns nil regardless of what the
// event meant for local state.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, sig, eventID string) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	if s.settings.WebhookSecret == "" {
		util.WebhooksReceivedTotal.WithLabelValues("unknown", "not_configured").Inc()
		return ErrNotConfigured
	}

	if !signature.VerifyWebhook(body, sig, s.settings.WebhookSecret) {
		util.WebhooksReceivedTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		s.logger.Warn("Webhook signature mismatch", zap.Int("body_bytes", len(body)))
		return ErrInvalidSignature
	}

	event, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		util.WebhooksReceivedTotal.WithLabelValues("unknown", "malformed").Inc()
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	span.SetAttributes(attribute.String("event", event.Event))

	if eventID != "" && s.dedupe != nil {
		first, err := s.dedupe.MarkWebhookEvent(ctx, eventID, s.settings.WebhookDedupeTTL)
		if err != nil {
			s.logger.Warn("Webhook dedupe unavailable", zap.String("event_id", eventID), zap.Error(err))
		} else if !first {
			util.WebhooksReceivedTotal.WithLabelValues(event.Event, "duplicate").Inc()
			s.logger.Info("Duplicate webhook delivery", zap.String("event_id", eventID))
			return nil
		}
	}

	if !event.IsPaymentSuccess() {
		util.WebhooksReceivedTotal.WithLabelValues(event.Event, "ignored").Inc()
		s.logger.Debug("Acknowledging unhandled webhook event", zap.String("event", event.Event))
		return nil
	}

	outcome, err := s.reconcilePayment(ctx, event)
	if err != nil {
		util.RecordError(span, err)
		s.logger.Error("Webhook reconciliation failed",
			zap.String("event", event.Event),
			zap.String("event_id", eventID),
			zap.Error(err))
		if eventID != "" && s.dedupe != nil {
			if ferr := s.dedupe.ForgetWebhookEvent(ctx, eventID); ferr != nil {
				s.logger.Warn("Failed to clear webhook marker", zap.Error(ferr))
			}
		}
		outcome = "error"
	}

	util.WebhooksReceivedTotal.WithLabelValues(event.Event, outcome).Inc()
	return nil
}

// reconcilePayment marks the referenced order paid if nobody has yet.
func (s *PaymentService) reconcilePayment(ctx context.Context, event *gateway.WebhookEvent) (string, error) {
	entity := event.PaymentEntity()
	if entity == nil || entity.OrderID == "" || entity.ID == "" {
		s.logger.Warn("Payment webhook without order or payment id", zap.String("event", event.Event))
		return "missing_ids", nil
	}

	order, err := s.orders.GetPaymentOrderByGatewayID(ctx, entity.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Webhook for unknown order",
				zap.String("gateway_order_id", entity.OrderID),
				zap.String("gateway_payment_id", entity.ID))
			return "unknown_order", nil
		}
		return "", fmt.Errorf("failed to load payment order: %w", err)
	}

	if order.Paid {
		return "already_paid", nil
	}

	if entity.Amount != 0 && entity.Amount != order.Amount {
		s.logger.Warn("Webhook amount differs from order amount",
			zap.String("gateway_order_id", entity.OrderID),
			zap.Int64("order_amount", order.Amount),
			zap.Int64("webhook_amount", entity.Amount))
	}

	paid, won, err := s.orders.MarkPaymentOrderPaid(ctx, &models.PaymentConfirmation{
		GatewayOrderID:   entity.OrderID,
		GatewayPaymentID: entity.ID,
		Method:           models.NormalizePaymentMethod(entity.Method),
		PaidAt:           s.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to mark order paid: %w", err)
	}
	if !won {
		return "already_paid", nil
	}

	s.completePaidOrder(ctx, paid, models.PaymentSourceWebhook)
	return "reconciled", nil
}

// completePaidOrder runs the follow-ups of a won paid transition. Failures
// here never undo the payment.
func (s *PaymentService) completePaidOrder(ctx context.Context, order *models.PaymentOrder, source string) {
	util.OrdersPaidTotal.WithLabelValues(source).Inc()

	if _, err := s.enroller.Enroll(ctx, order.CourseID, order.StudentID, source); err != nil {
		s.logger.Error("Enrollment after payment failed, queued for retry",
			zap.String("order_id", order.ID.String()),
			zap.String("course_id", order.CourseID.String()),
			zap.String("student_id", order.StudentID.String()),
			zap.Error(err))

		retry := &models.EnrollmentFailedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeEnrollmentFailed),
			CourseID:  order.CourseID,
			StudentID: order.StudentID,
			Source:    source,
			Reason:    err.Error(),
		}
		if perr := s.publisher.PublishEnrollmentFailed(ctx, retry); perr != nil {
			s.logger.Error("Failed to publish EnrollmentFailed event", zap.Error(perr))
		}
	}

	paidAt := s.now().UTC()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}
	paymentID := ""
	if order.GatewayPaymentID != nil {
		paymentID = *order.GatewayPaymentID
	}

	event := &models.OrderPaidEvent{
		BaseEvent:        models.NewBaseEvent(models.EventTypeOrderPaid),
		OrderID:          order.ID,
		CourseID:         order.CourseID,
		StudentID:        order.StudentID,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Amount:           order.Amount,
		Currency:         order.Currency,
		PaidAt:           paidAt,
		Source:           source,
	}
	if err := s.publisher.PublishOrderPaid(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPaid event",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}
}

// ListOrders returns the student's payment orders, newest first
func (s *PaymentService) ListOrders(ctx context.Context, studentID uuid.UUID) ([]models.PaymentOrder, error) {
	orders, err := s.orders.GetPaymentOrdersByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment orders: %w", err)
	}
	if orders == nil {
		orders = []models.PaymentOrder{}
	}
	return orders, nil
}

// EnrollFree enrolls a student in a course that costs nothing. Priced
// courses must go through CreateOrder.
func (s *PaymentService) EnrollFree(ctx context.Context, studentID, courseID uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.EnrollFree",
		attribute.String("course_id", courseID.String()))
	defer span.End()

	course, err := s.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("course %s: %w", courseID, ErrNotFound)
		}
		return fmt.Errorf("failed to load course: %w", err)
	}

	if AmountInMinorUnits(course.Price) > 0 {
		return ErrPaymentRequired
	}

	if _, err := s.enroller.Enroll(ctx, course.ID, studentID, models.PaymentSourceFree); err != nil {
		util.RecordError(span, err)
		return err
	}
	return nil
}
