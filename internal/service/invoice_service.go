package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"course-payment-service/internal/models"
	"course-payment-service/internal/store"
	"course-payment-service/internal/util"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InvoiceService issues invoices for paid orders and answers invoice queries
type InvoiceService struct {
	store    InvoiceStore
	users    UserStore
	suffixID func() string
	now      func() time.Time
	logger   *zap.Logger
}

// RevenueReport summarizes an educator's paid invoices
type RevenueReport struct {
	Invoices     []models.Invoice `json:"invoices"`
	TotalRevenue int64            `json:"totalRevenue"`
	Count        int              `json:"count"`
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(store InvoiceStore, users UserStore) (*InvoiceService, error) {
	suffixID, err := nanoid.CustomASCII("0123456789ABCDEFGHJKLMNPQRSTUVWXYZ", 6)
	if err != nil {
		return nil, fmt.Errorf("failed to init invoice number generator: %w", err)
	}

	return &InvoiceService{
		store:    store,
		users:    users,
		suffixID: suffixID,
		now:      time.Now,
		logger:   util.GetLogger(),
	}, nil
}

// HandleOrderPaid issues the invoice for a paid order. Replays are no-ops
// because invoices are unique per order.
func (s *InvoiceService) HandleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	ctx, span := util.StartSpan(ctx, "InvoiceService.HandleOrderPaid",
		attribute.String("order_id", event.OrderID.String()))
	defer span.End()

	now := s.now().UTC()
	paidAt := event.PaidAt
	inv := &models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: s.invoiceNumber(now),
		OrderID:       event.OrderID,
		StudentID:     event.StudentID,
		CourseID:      event.CourseID,
		Amount:        event.Amount,
		Tax:           0,
		Total:         event.Amount,
		Currency:      event.Currency,
		Status:        models.InvoiceStatusPaid,
		InvoiceType:   models.InvoiceTypeOneTime,
		IssuedAt:      now,
		PaidAt:        &paidAt,
	}

	created, err := s.store.CreateInvoice(ctx, inv)
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	if !created {
		s.logger.Info("Order already invoiced", zap.String("order_id", event.OrderID.String()))
		return nil
	}

	util.InvoicesIssuedTotal.Inc()
	s.logger.Info("Invoice issued",
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("order_id", event.OrderID.String()),
		zap.Int64("total", inv.Total))
	return nil
}

func (s *InvoiceService) invoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%d-%s", now.UnixMilli(), s.suffixID())
}

// ListForStudent returns the student's invoices, newest first
func (s *InvoiceService) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]models.Invoice, error) {
	invoices, err := s.store.GetInvoicesByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	return invoices, nil
}

// GetForStudent returns one invoice if it belongs to the student
func (s *InvoiceService) GetForStudent(ctx context.Context, studentID, invoiceID uuid.UUID) (*models.Invoice, error) {
	inv, err := s.store.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("invoice %s: %w", invoiceID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv.StudentID != studentID {
		return nil, ErrForbidden
	}
	return inv, nil
}

// EducatorRevenue sums the paid invoices of courses created by educatorID.
// Callers without the educator role get ErrForbidden.
func (s *InvoiceService) EducatorRevenue(ctx context.Context, educatorID uuid.UUID) (*RevenueReport, error) {
	user, err := s.users.GetUserByID(ctx, educatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.Role != models.RoleEducator {
		return nil, ErrForbidden
	}

	invoices, err := s.store.GetPaidInvoicesByCreator(ctx, educatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load revenue: %w", err)
	}

	report := &RevenueReport{Invoices: invoices, Count: len(invoices)}
	if report.Invoices == nil {
		report.Invoices = []models.Invoice{}
	}
	for _, inv := range invoices {
		report.TotalRevenue += inv.Total
	}
	return report, nil
}
