package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-cert-api/internal/models"
)

// CourseRepository reads catalog data the engine depends on.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, title, instructor_name, completion_threshold, active, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// CountLectures returns the curriculum size for a course.
func (r *CourseRepository) CountLectures(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM lectures WHERE course_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, courseID); err != nil {
		return 0, fmt.Errorf("count lectures: %w", err)
	}
	return total, nil
}

// ListLectures returns the ordered curriculum for a course.
func (r *CourseRepository) ListLectures(ctx context.Context, courseID string) ([]models.Lecture, error) {
	const query = `SELECT id, course_id, title, position, created_at FROM lectures WHERE course_id = $1 ORDER BY position ASC`
	var lectures []models.Lecture
	if err := r.db.SelectContext(ctx, &lectures, query, courseID); err != nil {
		return nil, fmt.Errorf("list lectures: %w", err)
	}
	return lectures, nil
}

// LectureExists checks that a lecture belongs to the course's curriculum.
func (r *CourseRepository) LectureExists(ctx context.Context, courseID, lectureID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM lectures WHERE course_id = $1 AND id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, courseID, lectureID); err != nil {
		return false, fmt.Errorf("check lecture: %w", err)
	}
	return exists, nil
}

// UpdateThreshold sets the course completion threshold percentage.
func (r *CourseRepository) UpdateThreshold(ctx context.Context, courseID string, threshold int) error {
	const query = `UPDATE courses SET completion_threshold = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, courseID, threshold, time.Now().UTC()); err != nil {
		return fmt.Errorf("update completion threshold: %w", err)
	}
	return nil
}
