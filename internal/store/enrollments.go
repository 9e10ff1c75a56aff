package store

import (
	"context"

	"course-payment-service/internal/models"

	"github.com/google/uuid"
)

// AddStudentToCourse inserts into the course roster. Only the membership row
// is touched. Returns true if the row is new.
func (s *Store) AddStudentToCourse(ctx context.Context, courseID, studentID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO course_students (course_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		courseID, studentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AddCourseToStudent inserts the user-side enrollment entry with zero
// progress. Existing entries keep their progress untouched.
func (s *Store) AddCourseToStudent(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO user_courses (student_id, course_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		studentID, courseID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetStudentEnrollments returns the user's enrolled-course entries
func (s *Store) GetStudentEnrollments(ctx context.Context, studentID uuid.UUID) ([]models.CourseEnrollment, error) {
	var entries []models.CourseEnrollment
	err := s.db.SelectContext(ctx, &entries,
		`SELECT student_id, course_id, enrolled_at, progress, completed_lectures
		 FROM user_courses WHERE student_id = $1 ORDER BY enrolled_at`, studentID)
	return entries, err
}
