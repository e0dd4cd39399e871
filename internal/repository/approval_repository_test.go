package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-cert-api/internal/models"
)

var approvalRowColumns = []string{
	"id", "course_id", "student_id", "approved_by", "approved_at", "revoked", "revoked_at", "notes", "grade",
	"student_name", "student_email", "guardian_name", "student_number", "course_title", "snapshot_version",
	"certificate_id", "issue_date", "created_at", "updated_at",
}

func approvalRow(id string, certificateID interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(approvalRowColumns).
		AddRow(id, "course-1", "stu-1", "admin-1", now, false, nil, "", "A",
			"Siti Rahma", "siti@example.com", "Budi Rahman", "STU-001", "Algebra Fundamentals", models.ApprovalSnapshotVersion,
			certificateID, nil, now, now)
}

func TestApprovalRepositoryUpsertReturnsStoredRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO certificate_approvals")).
		WillReturnRows(approvalRow("app-1", "cafebabecafebabecafebabecafebabe"))

	stored, err := repo.Upsert(context.Background(), &models.CertificateApproval{
		CourseID: "course-1", StudentID: "stu-1", ApprovedBy: "admin-1",
		ApprovedAt: time.Now().UTC(), Grade: "A",
		StudentName: "Siti Rahma", CourseTitle: "Algebra Fundamentals",
	})
	require.NoError(t, err)
	require.Equal(t, "app-1", stored.ID)
	// The conflict update never touches certificate_id; a minted id
	// survives re-approval and is visible in the returned row.
	require.NotNil(t, stored.CertificateID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryFindByCertificateID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	certID := "0123456789abcdef0123456789abcdef"
	mock.ExpectQuery(regexp.QuoteMeta("FROM certificate_approvals WHERE certificate_id = $1")).
		WithArgs(certID).
		WillReturnRows(approvalRow("app-1", certID))

	approval, err := repo.FindByCertificateID(context.Background(), certID)
	require.NoError(t, err)
	require.Equal(t, "Siti Rahma", approval.StudentName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryRevoke(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificate_approvals")).
		WithArgs("course-1", "stu-1", sqlmock.AnyArg(), "cheating").
		WillReturnResult(sqlmock.NewResult(0, 1))

	revoked, err := repo.Revoke(context.Background(), "course-1", "stu-1", "cheating")
	require.NoError(t, err)
	require.True(t, revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryRevokeMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificate_approvals")).
		WithArgs("course-1", "ghost", sqlmock.AnyArg(), "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	revoked, err := repo.Revoke(context.Background(), "course-1", "ghost", "")
	require.NoError(t, err)
	require.False(t, revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryClaimCertificate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	issueDate := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND certificate_id IS NULL")).
		WithArgs("app-1", "cafebabecafebabecafebabecafebabe", issueDate, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.ClaimCertificate(context.Background(), "app-1", "cafebabecafebabecafebabecafebabe", issueDate)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryClaimCertificateAlreadyMinted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	issueDate := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND certificate_id IS NULL")).
		WithArgs("app-1", sqlmock.AnyArg(), issueDate, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ClaimCertificate(context.Background(), "app-1", "deadbeefdeadbeefdeadbeefdeadbeef", issueDate)
	require.NoError(t, err)
	require.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryListByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewApprovalRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM certificate_approvals WHERE course_id = $1 ORDER BY approved_at ASC")).
		WithArgs("course-1").
		WillReturnRows(approvalRow("app-1", nil))

	approvals, err := repo.ListByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
