package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"course-payment-service/internal/models"

	"github.com/google/uuid"
)

const invoiceColumns = `i.id, i.invoice_number, i.order_id, i.student_id, i.course_id,
	COALESCE(c.title, '') AS course_title, i.amount, i.tax, i.total, i.currency, i.status,
	i.invoice_type, i.issued_at, i.paid_at, i.created_at`

// CreateInvoice inserts an invoice unless one already exists for the order.
// Returns false when the order was already invoiced.
func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) (bool, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}

	query := `
		INSERT INTO invoices (id, invoice_number, order_id, student_id, course_id, amount, tax, total,
		                      currency, status, invoice_type, issued_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING created_at`

	err := s.db.QueryRowxContext(ctx, query,
		inv.ID, inv.InvoiceNumber, inv.OrderID, inv.StudentID, inv.CourseID, inv.Amount, inv.Tax,
		inv.Total, inv.Currency, inv.Status, inv.InvoiceType, inv.IssuedAt, inv.PaidAt,
	).Scan(&inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetInvoiceByID retrieves an invoice by ID
func (s *Store) GetInvoiceByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.GetContext(ctx, &inv,
		"SELECT "+invoiceColumns+" FROM invoices i LEFT JOIN courses c ON c.id = i.course_id WHERE i.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvoicesByStudent lists a student's invoices, newest first
func (s *Store) GetInvoicesByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.db.SelectContext(ctx, &invoices,
		"SELECT "+invoiceColumns+` FROM invoices i LEFT JOIN courses c ON c.id = i.course_id
		 WHERE i.student_id = $1 ORDER BY i.created_at DESC`, studentID)
	return invoices, err
}

// GetPaidInvoicesByCreator lists paid invoices for courses owned by creatorID
func (s *Store) GetPaidInvoicesByCreator(ctx context.Context, creatorID uuid.UUID) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.db.SelectContext(ctx, &invoices,
		"SELECT "+invoiceColumns+` FROM invoices i JOIN courses c ON c.id = i.course_id
		 WHERE c.creator_id = $1 AND i.status = $2 ORDER BY i.created_at DESC`,
		creatorID, models.InvoiceStatusPaid)
	return invoices, err
}
