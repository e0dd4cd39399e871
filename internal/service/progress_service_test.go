package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/models"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
)

type mockProgressRepo struct {
	records           map[string]*models.CourseProgress
	upserts           int
	completionUpdates int
	resets            int
}

func progressKey(studentID, courseID string) string {
	return studentID + "|" + courseID
}

func (m *mockProgressRepo) find(studentID, courseID string) *models.CourseProgress {
	if m.records == nil {
		return nil
	}
	return m.records[progressKey(studentID, courseID)]
}

func (m *mockProgressRepo) copyOf(rec *models.CourseProgress) *models.CourseProgress {
	out := *rec
	out.Lectures = append([]models.LectureProgress(nil), rec.Lectures...)
	return &out
}

func (m *mockProgressRepo) FindByEnrollment(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error) {
	if rec := m.find(studentID, courseID); rec != nil {
		return m.copyOf(rec), nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProgressRepo) FindOrCreate(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error) {
	if rec := m.find(studentID, courseID); rec != nil {
		return m.copyOf(rec), nil
	}
	if m.records == nil {
		m.records = make(map[string]*models.CourseProgress)
	}
	rec := &models.CourseProgress{
		ID:        "prog-" + progressKey(studentID, courseID),
		StudentID: studentID,
		CourseID:  courseID,
	}
	m.records[progressKey(studentID, courseID)] = rec
	return m.copyOf(rec), nil
}

func (m *mockProgressRepo) byID(progressID string) *models.CourseProgress {
	for _, rec := range m.records {
		if rec.ID == progressID {
			return rec
		}
	}
	return nil
}

func (m *mockProgressRepo) UpsertLecture(ctx context.Context, lecture *models.LectureProgress) error {
	m.upserts++
	rec := m.byID(lecture.ProgressID)
	if rec == nil {
		return sql.ErrNoRows
	}
	for i := range rec.Lectures {
		if rec.Lectures[i].LectureID == lecture.LectureID {
			rec.Lectures[i] = *lecture
			return nil
		}
	}
	rec.Lectures = append(rec.Lectures, *lecture)
	return nil
}

func (m *mockProgressRepo) UpdateCompletion(ctx context.Context, progressID string, completed bool, completedAt *time.Time) error {
	m.completionUpdates++
	rec := m.byID(progressID)
	if rec == nil {
		return sql.ErrNoRows
	}
	rec.Completed = completed
	rec.CompletedAt = completedAt
	return nil
}

func (m *mockProgressRepo) Reset(ctx context.Context, progressID string) error {
	m.resets++
	rec := m.byID(progressID)
	if rec == nil {
		return sql.ErrNoRows
	}
	rec.Lectures = nil
	rec.Completed = false
	rec.CompletedAt = nil
	return nil
}

type mockCourseCatalog struct {
	course   *models.Course
	lectures []string
}

func (m *mockCourseCatalog) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.course == nil || m.course.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.course, nil
}

func (m *mockCourseCatalog) CountLectures(ctx context.Context, courseID string) (int, error) {
	return len(m.lectures), nil
}

func (m *mockCourseCatalog) LectureExists(ctx context.Context, courseID, lectureID string) (bool, error) {
	for _, id := range m.lectures {
		if id == lectureID {
			return true, nil
		}
	}
	return false, nil
}

func newProgressFixture(threshold int, lectures ...string) (*ProgressService, *mockProgressRepo, *mockCourseCatalog) {
	repo := &mockProgressRepo{}
	catalog := &mockCourseCatalog{
		course:   &models.Course{ID: "c1", Title: "Algebra", CompletionThreshold: threshold},
		lectures: lectures,
	}
	svc := NewProgressService(repo, catalog, validator.New(), zap.NewNop(), nil, 95)
	return svc, repo, catalog
}

func TestProgressServiceRecordLectureViewed(t *testing.T) {
	svc, _, _ := newProgressFixture(75, "l1", "l2", "l3", "l4")

	record, err := svc.RecordLectureViewed(context.Background(), ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: "l1"})
	require.NoError(t, err)
	assert.Equal(t, 1, record.ViewedCount())
	assert.False(t, record.Completed)
	require.Len(t, record.Lectures, 1)
	assert.True(t, record.Lectures[0].Viewed)
	assert.NotNil(t, record.Lectures[0].ViewedAt)
}

func TestProgressServiceRecordLectureViewedIdempotent(t *testing.T) {
	svc, repo, _ := newProgressFixture(75, "l1", "l2", "l3", "l4")
	req := ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: "l1"}

	first, err := svc.RecordLectureViewed(context.Background(), req)
	require.NoError(t, err)
	firstViewedAt := first.Lectures[0].ViewedAt

	second, err := svc.RecordLectureViewed(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, second.ViewedCount())
	assert.Equal(t, firstViewedAt, second.Lectures[0].ViewedAt)
	assert.Equal(t, 1, repo.upserts)
}

func TestProgressServiceCompletionAtThreshold(t *testing.T) {
	// 3 of 4 lectures meets a 75% threshold exactly.
	svc, _, _ := newProgressFixture(75, "l1", "l2", "l3", "l4")
	ctx := context.Background()

	for _, lecture := range []string{"l1", "l2"} {
		record, err := svc.RecordLectureViewed(ctx, ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: lecture})
		require.NoError(t, err)
		assert.False(t, record.Completed)
	}

	record, err := svc.RecordLectureViewed(ctx, ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: "l3"})
	require.NoError(t, err)
	assert.True(t, record.Completed)
	require.NotNil(t, record.CompletedAt)
}

func TestProgressServiceCompletedAtSetOnce(t *testing.T) {
	svc, repo, _ := newProgressFixture(50, "l1", "l2")
	ctx := context.Background()

	record, err := svc.RecordLectureViewed(ctx, ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: "l1"})
	require.NoError(t, err)
	require.True(t, record.Completed)
	completedAt := record.CompletedAt
	updatesAfterCompletion := repo.completionUpdates

	record, err = svc.RecordLectureViewed(ctx, ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: "l2"})
	require.NoError(t, err)
	assert.True(t, record.Completed)
	assert.Equal(t, completedAt, record.CompletedAt)
	assert.Equal(t, updatesAfterCompletion, repo.completionUpdates)
}

func TestProgressServiceUnknownLecture(t *testing.T) {
	svc, _, _ := newProgressFixture(75, "l1")

	_, err := svc.RecordLectureViewed(context.Background(), ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: "ghost"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestProgressServiceEmptyCurriculum(t *testing.T) {
	svc, _, _ := newProgressFixture(75)

	_, err := svc.RecordLectureViewed(context.Background(), ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: "l1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCourseNotFound.Code, appErr.Code)
}

func TestProgressServicePlaybackClampAndPromotion(t *testing.T) {
	svc, _, _ := newProgressFixture(90, "l1", "l2")
	ctx := context.Background()
	req := ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: "l1"}

	record, err := svc.RecordPlaybackProgress(ctx, req, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, record.Lectures[0].ProgressPct)
	assert.False(t, record.Lectures[0].Viewed)

	// Over-range input clamps to 100 and promotes past the threshold.
	record, err = svc.RecordPlaybackProgress(ctx, req, 250)
	require.NoError(t, err)
	assert.Equal(t, 100, record.Lectures[0].ProgressPct)
	assert.True(t, record.Lectures[0].Viewed)
}

func TestProgressServiceBothPathsConvergeOnCompletion(t *testing.T) {
	ctx := context.Background()
	lectures := []string{"l1", "l2", "l3", "l4"}

	explicit, _, _ := newProgressFixture(75, lectures...)
	playback, _, _ := newProgressFixture(75, lectures...)

	var viaMark, viaPlayback *models.CourseProgress
	var err error
	for _, lecture := range lectures[:3] {
		req := ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: lecture}
		viaMark, err = explicit.RecordLectureViewed(ctx, req)
		require.NoError(t, err)
		viaPlayback, err = playback.RecordPlaybackProgress(ctx, req, 80)
		require.NoError(t, err)
	}

	// 3 of 4 viewed clears the 75% threshold on either path.
	assert.True(t, viaMark.Completed)
	assert.True(t, viaPlayback.Completed)
	require.NotNil(t, viaMark.CompletedAt)
	require.NotNil(t, viaPlayback.CompletedAt)

	require.Len(t, viaPlayback.Lectures, len(viaMark.Lectures))
	for i, l := range viaMark.Lectures {
		assert.Equal(t, l.LectureID, viaPlayback.Lectures[i].LectureID)
		assert.Equal(t, l.Viewed, viaPlayback.Lectures[i].Viewed)
	}
}

func TestProgressServicePlaybackNeverRegresses(t *testing.T) {
	svc, repo, _ := newProgressFixture(90, "l1", "l2")
	ctx := context.Background()
	req := ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: "l1"}

	_, err := svc.RecordPlaybackProgress(ctx, req, 60)
	require.NoError(t, err)
	writes := repo.upserts

	record, err := svc.RecordPlaybackProgress(ctx, req, 30)
	require.NoError(t, err)
	assert.Equal(t, 60, record.Lectures[0].ProgressPct)
	assert.Equal(t, writes, repo.upserts)
}

func TestProgressServiceReset(t *testing.T) {
	svc, repo, _ := newProgressFixture(50, "l1", "l2")
	ctx := context.Background()

	_, err := svc.RecordLectureViewed(ctx, ProgressRequest{StudentID: "s1", CourseID: "c1", LectureID: "l1"})
	require.NoError(t, err)

	record, err := svc.ResetProgress(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.False(t, record.Completed)
	assert.Nil(t, record.CompletedAt)
	assert.Empty(t, record.Lectures)
	assert.Equal(t, 1, repo.resets)
}

func TestProgressServiceResetWithoutRecord(t *testing.T) {
	svc, _, _ := newProgressFixture(50, "l1")

	_, err := svc.ResetProgress(context.Background(), "s1", "c1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
