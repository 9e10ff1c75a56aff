package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"course-payment-service/internal/models"
	"course-payment-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Enroller applies enrollments. Every call is a pair of set inserts, so it
// is safe to repeat from any number of paths.
type Enroller struct {
	store     EnrollmentStore
	publisher EventPublisher
	logger    *zap.Logger
}

// NewEnroller creates a new enrollment applier
func NewEnroller(store EnrollmentStore, publisher EventPublisher) *Enroller {
	return &Enroller{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Enroll adds the student to the course roster and the course to the
// student's enrollments. Both inserts are attempted even if one fails.
// The returned bool is true if either side changed.
func (e *Enroller) Enroll(ctx context.Context, courseID, studentID uuid.UUID, source string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "Enroller.Enroll",
		attribute.String("course_id", courseID.String()),
		attribute.String("student_id", studentID.String()),
		attribute.String("source", source))
	defer span.End()

	var errs []error

	addedToRoster, err := e.store.AddStudentToCourse(ctx, courseID, studentID)
	if err != nil {
		errs = append(errs, fmt.Errorf("course roster: %w", err))
	}

	addedToUser, err := e.store.AddCourseToStudent(ctx, studentID, courseID)
	if err != nil {
		errs = append(errs, fmt.Errorf("user enrollments: %w", err))
	}

	changed := addedToRoster || addedToUser

	if len(errs) > 0 {
		err := fmt.Errorf("%w: %w", ErrEnrollmentUpdateFailed, errors.Join(errs...))
		util.RecordError(span, err)
		util.EnrollmentsFailedTotal.WithLabelValues(source).Inc()
		return changed, err
	}

	util.EnrollmentsAppliedTotal.WithLabelValues(source, strconv.FormatBool(changed)).Inc()

	if changed {
		e.logger.Info("Student enrolled",
			zap.String("course_id", courseID.String()),
			zap.String("student_id", studentID.String()),
			zap.String("source", source))

		event := &models.CourseEnrolledEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeCourseEnrolled),
			CourseID:  courseID,
			StudentID: studentID,
			Source:    source,
		}
		if err := e.publisher.PublishCourseEnrolled(ctx, event); err != nil {
			e.logger.Error("Failed to publish CourseEnrolled event", zap.Error(err))
		}
	}

	return changed, nil
}

// EnrolledCourses lists the student's enrollment entries
func (e *Enroller) EnrolledCourses(ctx context.Context, studentID uuid.UUID) ([]models.CourseEnrollment, error) {
	entries, err := e.store.GetStudentEnrollments(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	if entries == nil {
		entries = []models.CourseEnrollment{}
	}
	return entries, nil
}

// HandleEnrollmentFailed re-applies an enrollment that failed earlier. An
// error makes the consumer retry the same message.
func (e *Enroller) HandleEnrollmentFailed(ctx context.Context, event *models.EnrollmentFailedEvent) error {
	e.logger.Info("Retrying enrollment",
		zap.String("event_id", event.EventID),
		zap.String("course_id", event.CourseID.String()),
		zap.String("student_id", event.StudentID.String()),
		zap.String("failed_source", event.Source))

	_, err := e.Enroll(ctx, event.CourseID, event.StudentID, models.PaymentSourceRetry)
	return err
}
