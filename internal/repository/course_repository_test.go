package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestCourseRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "instructor_name", "completion_threshold", "active", "created_at", "updated_at"}).
		AddRow("course-1", "Algebra Fundamentals", "Pak Agus", 95, true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, instructor_name, completion_threshold, active, created_at, updated_at FROM courses WHERE id = $1")).
		WithArgs("course-1").
		WillReturnRows(rows)

	course, err := repo.FindByID(context.Background(), "course-1")
	require.NoError(t, err)
	require.Equal(t, 95, course.CompletionThreshold)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCountLectures(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lectures WHERE course_id = $1")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	total, err := repo.CountLectures(context.Background(), "course-1")
	require.NoError(t, err)
	require.Equal(t, 12, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryLectureExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM lectures WHERE course_id = $1 AND id = $2)")).
		WithArgs("course-1", "lec-9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.LectureExists(context.Background(), "course-1", "lec-9")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
