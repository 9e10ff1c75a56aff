package worker

import (
	"context"

	"course-payment-service/internal/broker"
	"course-payment-service/internal/service"
	"course-payment-service/internal/util"

	"go.uber.org/zap"
)

// InvoiceWorker issues invoices for ORDER_PAID events
type InvoiceWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewInvoiceWorker creates a new invoice worker
func NewInvoiceWorker(consumer *broker.Consumer, invoices *service.InvoiceService) *InvoiceWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPaid(invoices.HandleOrderPaid)

	return &InvoiceWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled
func (w *InvoiceWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting invoice worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *InvoiceWorker) Stop() error {
	w.logger.Info("Stopping invoice worker")
	return w.consumer.Close()
}

// EnrollmentRetryWorker re-applies enrollments that failed after payment.
// A failed retry is repeated with backoff by the consumer and the offset is
// committed only once it succeeds.
type EnrollmentRetryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewEnrollmentRetryWorker creates a new enrollment retry worker
func NewEnrollmentRetryWorker(consumer *broker.Consumer, enroller *service.Enroller) *EnrollmentRetryWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnEnrollmentFailed(enroller.HandleEnrollmentFailed)

	return &EnrollmentRetryWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled
func (w *EnrollmentRetryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting enrollment retry worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *EnrollmentRetryWorker) Stop() error {
	w.logger.Info("Stopping enrollment retry worker")
	return w.consumer.Close()
}
