package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"course-payment-service/internal/models"
	"course-payment-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrMalformedEvent marks a message that can never be decoded. Consumers
// skip it instead of retrying.
var ErrMalformedEvent = errors.New("malformed event")

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderPaid publishes OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// PublishCourseEnrolled publishes CourseEnrolled event
func (ep *EventPublisher) PublishCourseEnrolled(ctx context.Context, event *models.CourseEnrolledEvent) error {
	key := fmt.Sprintf("enrollment-%s-%s", event.CourseID, event.StudentID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// PublishEnrollmentFailed publishes EnrollmentFailed event
func (ep *EventPublisher) PublishEnrollmentFailed(ctx context.Context, event *models.EnrollmentFailedEvent) error {
	key := fmt.Sprintf("enrollment-%s-%s", event.CourseID, event.StudentID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onOrderPaid        func(context.Context, *models.OrderPaidEvent) error
	onEnrollmentFailed func(context.Context, *models.EnrollmentFailedEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderPaid registers a handler for OrderPaid events
func (eh *EventHandler) OnOrderPaid(handler func(context.Context, *models.OrderPaidEvent) error) {
	eh.onOrderPaid = handler
}

// OnEnrollmentFailed registers a handler for EnrollmentFailed events
func (eh *EventHandler) OnEnrollmentFailed(handler func(context.Context, *models.EnrollmentFailedEvent) error) {
	eh.onEnrollmentFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	eventType := EventTypeOf(msg)
	if eventType == "" {
		var baseEvent models.BaseEvent
		if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
			return fmt.Errorf("%w: base event: %v", ErrMalformedEvent, err)
		}
		eventType = baseEvent.EventType
	}

	switch eventType {
	case models.EventTypeOrderPaid:
		if eh.onOrderPaid != nil {
			var event models.OrderPaidEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: OrderPaid event: %v", ErrMalformedEvent, err)
			}
			return eh.onOrderPaid(ctx, &event)
		}

	case models.EventTypeEnrollmentFailed:
		if eh.onEnrollmentFailed != nil {
			var event models.EnrollmentFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: EnrollmentFailed event: %v", ErrMalformedEvent, err)
			}
			return eh.onEnrollmentFailed(ctx, &event)
		}

	default:
		eh.logger.Debug("Ignoring event", zap.String("event_type", eventType))
	}

	return nil
}
