package service

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/models"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
)

type progressRepository interface {
	FindByEnrollment(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error)
	FindOrCreate(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error)
	UpsertLecture(ctx context.Context, lecture *models.LectureProgress) error
	UpdateCompletion(ctx context.Context, progressID string, completed bool, completedAt *time.Time) error
	Reset(ctx context.Context, progressID string) error
}

type courseCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	CountLectures(ctx context.Context, courseID string) (int, error)
	LectureExists(ctx context.Context, courseID, lectureID string) (bool, error)
}

// enrollmentLocks serialises writers per (student, course) key so the lecture
// upsert and the course-level completion recompute are observed together.
// Striped so the lock table stays bounded regardless of enrollment count.
type enrollmentLocks struct {
	stripes [64]sync.Mutex
}

func (l *enrollmentLocks) lock(studentID, courseID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(studentID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(courseID))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}

// ProgressRequest identifies a lecture-level progress event.
type ProgressRequest struct {
	StudentID string `validate:"required"`
	CourseID  string `validate:"required"`
	LectureID string `validate:"required"`
}

// ProgressService owns per-enrollment watch progress and derives the
// course completion verdict.
type ProgressService struct {
	repo             progressRepository
	courses          courseCatalog
	validator        *validator.Validate
	logger           *zap.Logger
	metrics          *MetricsService
	defaultThreshold int
	locks            enrollmentLocks
}

// NewProgressService constructs ProgressService.
func NewProgressService(repo progressRepository, courses courseCatalog, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, defaultThreshold int) *ProgressService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultThreshold < 1 || defaultThreshold > 100 {
		defaultThreshold = 95
	}
	return &ProgressService{repo: repo, courses: courses, validator: validate, logger: logger, metrics: metrics, defaultThreshold: defaultThreshold}
}

// GetProgress returns the progress record for an enrollment.
func (s *ProgressService) GetProgress(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error) {
	record, err := s.repo.FindByEnrollment(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no progress recorded for enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
	}
	return record, nil
}

// RecordLectureViewed marks a lecture as watched. Idempotent: marking an
// already-viewed lecture returns the current state without a write and
// without touching viewed_at.
func (s *ProgressService) RecordLectureViewed(ctx context.Context, req ProgressRequest) (*models.CourseProgress, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid progress payload")
	}
	threshold, total, err := s.curriculum(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if exists, err := s.courses.LectureExists(ctx, req.CourseID, req.LectureID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lecture")
	} else if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lecture not in course curriculum")
	}

	unlock := s.locks.lock(req.StudentID, req.CourseID)
	defer unlock()

	record, err := s.repo.FindOrCreate(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress record")
	}

	current := findLecture(record, req.LectureID)
	if current != nil && current.Viewed {
		return record, nil
	}

	now := time.Now().UTC()
	entry := models.LectureProgress{
		ProgressID:  record.ID,
		LectureID:   req.LectureID,
		Viewed:      true,
		ViewedAt:    &now,
		ProgressPct: 100,
	}
	if current != nil {
		entry.ID = current.ID
		entry.CreatedAt = current.CreatedAt
		if current.ProgressPct > entry.ProgressPct {
			entry.ProgressPct = current.ProgressPct
		}
	}
	if err := s.repo.UpsertLecture(ctx, &entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record lecture view")
	}

	return s.recompute(ctx, record, threshold, total)
}

// RecordPlaybackProgress upserts the watch percentage for a lecture,
// promoting it to viewed when the percentage reaches the course threshold.
// Percentages never regress; out-of-range input is clamped to 0-100.
func (s *ProgressService) RecordPlaybackProgress(ctx context.Context, req ProgressRequest, percentage int) (*models.CourseProgress, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid progress payload")
	}
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	threshold, total, err := s.curriculum(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if exists, err := s.courses.LectureExists(ctx, req.CourseID, req.LectureID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lecture")
	} else if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lecture not in course curriculum")
	}

	unlock := s.locks.lock(req.StudentID, req.CourseID)
	defer unlock()

	record, err := s.repo.FindOrCreate(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress record")
	}

	current := findLecture(record, req.LectureID)
	entry := models.LectureProgress{
		ProgressID:  record.ID,
		LectureID:   req.LectureID,
		ProgressPct: percentage,
	}
	if current != nil {
		entry.ID = current.ID
		entry.CreatedAt = current.CreatedAt
		entry.Viewed = current.Viewed
		entry.ViewedAt = current.ViewedAt
		if current.ProgressPct > entry.ProgressPct {
			entry.ProgressPct = current.ProgressPct
		}
	}

	promoted := false
	if !entry.Viewed && entry.ProgressPct >= threshold {
		now := time.Now().UTC()
		entry.Viewed = true
		entry.ViewedAt = &now
		promoted = true
	}

	// No state change means no write; frequent playback pings are cheap.
	if current != nil && !promoted && entry.ProgressPct == current.ProgressPct {
		return record, nil
	}

	if err := s.repo.UpsertLecture(ctx, &entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record playback progress")
	}

	return s.recompute(ctx, record, threshold, total)
}

// ResetProgress clears the whole record for an enrollment.
func (s *ProgressService) ResetProgress(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error) {
	unlock := s.locks.lock(studentID, courseID)
	defer unlock()

	record, err := s.repo.FindByEnrollment(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no progress record to reset")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress record")
	}
	if err := s.repo.Reset(ctx, record.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset progress")
	}
	s.logger.Info("progress reset",
		zap.String("student_id", studentID),
		zap.String("course_id", courseID))

	fresh, err := s.repo.FindByEnrollment(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload progress record")
	}
	return fresh, nil
}

// curriculum resolves the course threshold and lecture count, failing with
// the course-not-found taxonomy when there is no curriculum to complete.
func (s *ProgressService) curriculum(ctx context.Context, courseID string) (threshold, total int, err error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, appErrors.Clone(appErrors.ErrCourseNotFound, "course not found")
		}
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	total, err = s.courses.CountLectures(ctx, courseID)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lectures")
	}
	if total == 0 {
		return 0, 0, appErrors.Clone(appErrors.ErrCourseNotFound, "course has no curriculum")
	}
	threshold = course.CompletionThreshold
	if threshold < 1 || threshold > 100 {
		threshold = s.defaultThreshold
	}
	return threshold, total, nil
}

// recompute re-reads the record and persists the completion verdict.
// completed_at is stamped only on the transition into the completed state.
func (s *ProgressService) recompute(ctx context.Context, before *models.CourseProgress, threshold, total int) (*models.CourseProgress, error) {
	record, err := s.repo.FindByEnrollment(ctx, before.StudentID, before.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload progress record")
	}

	completed := models.CompletionMet(record.ViewedCount(), total, threshold)
	if completed == record.Completed {
		return record, nil
	}

	completedAt := record.CompletedAt
	if completed && completedAt == nil {
		now := time.Now().UTC()
		completedAt = &now
	}
	if err := s.repo.UpdateCompletion(ctx, record.ID, completed, completedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update completion")
	}
	record.Completed = completed
	record.CompletedAt = completedAt

	if completed {
		if s.metrics != nil {
			s.metrics.CourseCompleted()
		}
		s.logger.Info("course completed",
			zap.String("student_id", record.StudentID),
			zap.String("course_id", record.CourseID),
			zap.Int("viewed", record.ViewedCount()),
			zap.Int("total", total))
	}
	return record, nil
}

func findLecture(record *models.CourseProgress, lectureID string) *models.LectureProgress {
	for i := range record.Lectures {
		if record.Lectures[i].LectureID == lectureID {
			return &record.Lectures[i]
		}
	}
	return nil
}
