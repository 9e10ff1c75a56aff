package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"course-payment-service/internal/models"

	"github.com/google/uuid"
)

const paymentOrderColumns = `id, course_id, student_id, gateway_order_id, gateway_payment_id,
	gateway_signature, amount, currency, paid, paid_at, method, created_at, updated_at`

// CreatePaymentOrder inserts a new unpaid order
func (s *Store) CreatePaymentOrder(ctx context.Context, order *models.PaymentOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Method == "" {
		order.Method = models.PaymentMethodAll
	}

	query := `
		INSERT INTO payment_orders (id, course_id, student_id, gateway_order_id, amount, currency, paid, method)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		order.ID, order.CourseID, order.StudentID, order.GatewayOrderID,
		order.Amount, order.Currency, order.Method,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
}

// GetPaymentOrderByGatewayID retrieves an order by the gateway's order id
func (s *Store) GetPaymentOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := s.db.GetContext(ctx, &order,
		"SELECT "+paymentOrderColumns+" FROM payment_orders WHERE gateway_order_id = $1", gatewayOrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment order %s: %w", gatewayOrderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkPaymentOrderPaid performs the false->true transition of the paid flag
// as a single conditional update. It returns the updated order and true when
// this call won the transition, or nil and false when the order was already
// paid or does not exist.
func (s *Store) MarkPaymentOrderPaid(ctx context.Context, c *models.PaymentConfirmation) (*models.PaymentOrder, bool, error) {
	query := `
		UPDATE payment_orders
		SET paid = TRUE,
		    paid_at = $2,
		    gateway_payment_id = $3,
		    gateway_signature = COALESCE(NULLIF($4, ''), gateway_signature),
		    method = COALESCE(NULLIF($5, ''), method),
		    updated_at = NOW()
		WHERE gateway_order_id = $1 AND paid = FALSE
		RETURNING ` + paymentOrderColumns

	var order models.PaymentOrder
	err := s.db.GetContext(ctx, &order, query,
		c.GatewayOrderID, c.PaidAt, c.GatewayPaymentID, c.Signature, c.Method)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &order, true, nil
}

// GetPaymentOrdersByStudent lists a student's orders, newest first
func (s *Store) GetPaymentOrdersByStudent(ctx context.Context, studentID uuid.UUID) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+paymentOrderColumns+" FROM payment_orders WHERE student_id = $1 ORDER BY created_at DESC", studentID)
	return orders, err
}
