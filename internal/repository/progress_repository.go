package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-cert-api/internal/models"
)

// ProgressRepository handles persistence of per-enrollment progress records.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// FindByEnrollment returns the progress record with its lecture rows in
// insertion order. sql.ErrNoRows is returned when no record exists.
func (r *ProgressRepository) FindByEnrollment(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error) {
	const query = `SELECT id, student_id, course_id, completed, completed_at, created_at, updated_at
        FROM course_progress WHERE student_id = $1 AND course_id = $2`
	var record models.CourseProgress
	if err := r.db.GetContext(ctx, &record, query, studentID, courseID); err != nil {
		return nil, err
	}

	const lectureQuery = `SELECT id, progress_id, lecture_id, viewed, viewed_at, progress_pct, created_at, updated_at
        FROM lecture_progress WHERE progress_id = $1 ORDER BY created_at ASC, id ASC`
	if err := r.db.SelectContext(ctx, &record.Lectures, lectureQuery, record.ID); err != nil {
		return nil, fmt.Errorf("list lecture progress: %w", err)
	}
	return &record, nil
}

// FindOrCreate returns the progress record for the enrollment, creating an
// empty one when missing. Concurrent creates collapse to a single row via
// the (student_id, course_id) uniqueness constraint.
func (r *ProgressRepository) FindOrCreate(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error) {
	record, err := r.FindByEnrollment(ctx, studentID, courseID)
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("find progress record: %w", err)
	}

	now := time.Now().UTC()
	const insert = `INSERT INTO course_progress (id, student_id, course_id, completed, created_at, updated_at)
        VALUES ($1, $2, $3, FALSE, $4, $4)
        ON CONFLICT (student_id, course_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), studentID, courseID, now); err != nil {
		return nil, fmt.Errorf("create progress record: %w", err)
	}
	return r.FindByEnrollment(ctx, studentID, courseID)
}

// UpsertLecture inserts or updates a single lecture progress row.
func (r *ProgressRepository) UpsertLecture(ctx context.Context, lecture *models.LectureProgress) error {
	if lecture.ID == "" {
		lecture.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lecture.UpdatedAt = now
	if lecture.CreatedAt.IsZero() {
		lecture.CreatedAt = now
	}
	const query = `INSERT INTO lecture_progress (id, progress_id, lecture_id, viewed, viewed_at, progress_pct, created_at, updated_at)
        VALUES (:id, :progress_id, :lecture_id, :viewed, :viewed_at, :progress_pct, :created_at, :updated_at)
        ON CONFLICT (progress_id, lecture_id) DO UPDATE
        SET viewed = EXCLUDED.viewed, viewed_at = EXCLUDED.viewed_at,
            progress_pct = EXCLUDED.progress_pct, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, lecture); err != nil {
		return fmt.Errorf("upsert lecture progress: %w", err)
	}
	return nil
}

// UpdateCompletion persists the derived completion verdict.
func (r *ProgressRepository) UpdateCompletion(ctx context.Context, progressID string, completed bool, completedAt *time.Time) error {
	const query = `UPDATE course_progress SET completed = $2, completed_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, progressID, completed, completedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update completion: %w", err)
	}
	return nil
}

// Reset clears all lecture rows and the completion verdict in one
// transaction so readers never observe a half-reset record.
func (r *ProgressRepository) Reset(ctx context.Context, progressID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM lecture_progress WHERE progress_id = $1`, progressID); err != nil {
		return fmt.Errorf("clear lecture progress: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE course_progress SET completed = FALSE, completed_at = NULL, updated_at = $2 WHERE id = $1`, progressID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear completion: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}
