package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/models"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
)

type courseConfigRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListLectures(ctx context.Context, courseID string) ([]models.Lecture, error)
	UpdateThreshold(ctx context.Context, courseID string, threshold int) error
}

// CourseService exposes the small slice of catalog configuration this
// engine owns: the completion threshold. Content management lives
// elsewhere.
type CourseService struct {
	repo   courseConfigRepository
	logger *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseConfigRepository, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, logger: logger}
}

// GetCourse returns the catalog entry with its curriculum.
func (s *CourseService) GetCourse(ctx context.Context, courseID string) (*models.Course, []models.Lecture, error) {
	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	lectures, err := s.repo.ListLectures(ctx, courseID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
	}
	return course, lectures, nil
}

// SetCompletionThreshold updates the percentage of viewed lectures required
// to complete the course. Already-computed completion flags are untouched;
// the new threshold applies from the next recompute.
func (s *CourseService) SetCompletionThreshold(ctx context.Context, courseID string, threshold int) (*models.Course, error) {
	if threshold < 1 || threshold > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "threshold must be between 1 and 100")
	}

	if _, err := s.repo.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if err := s.repo.UpdateThreshold(ctx, courseID, threshold); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update threshold")
	}

	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload course")
	}

	s.logger.Info("completion threshold updated",
		zap.String("course_id", courseID),
		zap.Int("threshold", threshold))
	return course, nil
}
