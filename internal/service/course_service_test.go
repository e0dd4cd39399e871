package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/models"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
)

type mockCourseConfigRepo struct {
	course   *models.Course
	lectures []models.Lecture
	updates  int
}

func (m *mockCourseConfigRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.course == nil || m.course.ID != id {
		return nil, sql.ErrNoRows
	}
	out := *m.course
	return &out, nil
}

func (m *mockCourseConfigRepo) ListLectures(ctx context.Context, courseID string) ([]models.Lecture, error) {
	return m.lectures, nil
}

func (m *mockCourseConfigRepo) UpdateThreshold(ctx context.Context, courseID string, threshold int) error {
	m.course.CompletionThreshold = threshold
	m.updates++
	return nil
}

func TestCourseServiceSetCompletionThreshold(t *testing.T) {
	repo := &mockCourseConfigRepo{course: &models.Course{ID: "c1", Title: "Algebra Fundamentals", CompletionThreshold: 95}}
	svc := NewCourseService(repo, zap.NewNop())

	course, err := svc.SetCompletionThreshold(context.Background(), "c1", 80)
	require.NoError(t, err)
	assert.Equal(t, 80, course.CompletionThreshold)
	assert.Equal(t, 1, repo.updates)
}

func TestCourseServiceThresholdOutOfRange(t *testing.T) {
	repo := &mockCourseConfigRepo{course: &models.Course{ID: "c1", CompletionThreshold: 95}}
	svc := NewCourseService(repo, zap.NewNop())

	for _, threshold := range []int{0, 101, -5} {
		_, err := svc.SetCompletionThreshold(context.Background(), "c1", threshold)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
	assert.Zero(t, repo.updates)
}

func TestCourseServiceThresholdUnknownCourse(t *testing.T) {
	svc := NewCourseService(&mockCourseConfigRepo{}, zap.NewNop())

	_, err := svc.SetCompletionThreshold(context.Background(), "ghost", 80)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceGetCourse(t *testing.T) {
	repo := &mockCourseConfigRepo{
		course:   &models.Course{ID: "c1", Title: "Algebra Fundamentals", CompletionThreshold: 95},
		lectures: []models.Lecture{{ID: "l1", CourseID: "c1", Title: "Sets", Position: 1}},
	}
	svc := NewCourseService(repo, zap.NewNop())

	course, lectures, err := svc.GetCourse(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Algebra Fundamentals", course.Title)
	require.Len(t, lectures, 1)
	assert.Equal(t, "Sets", lectures[0].Title)
}
