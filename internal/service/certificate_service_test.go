package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/models"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
)

type mockRenderer struct {
	rendered []models.Certificate
}

func (m *mockRenderer) Render(cert models.Certificate) ([]byte, error) {
	m.rendered = append(m.rendered, cert)
	return []byte("%PDF-1.4 test"), nil
}

func (m *mockRenderer) VerificationURL(certificateID string) string {
	return "https://lms.example.com/verify-certificate/" + certificateID
}

func seedApproval(repo *mockApprovalRepo, revoked bool) *models.CertificateApproval {
	row := &models.CertificateApproval{
		ID:              "a1",
		CourseID:        "c1",
		StudentID:       "s1",
		ApprovedBy:      "admin-1",
		ApprovedAt:      time.Now().UTC(),
		Revoked:         revoked,
		Grade:           "A",
		StudentName:     "Siti Rahma",
		GuardianName:    "Budi Rahman",
		StudentNumber:   "STU-001",
		CourseTitle:     "Algebra Fundamentals",
		SnapshotVersion: models.ApprovalSnapshotVersion,
	}
	if repo.rows == nil {
		repo.rows = make(map[string]*models.CertificateApproval)
	}
	repo.rows[approvalKey(row.CourseID, row.StudentID)] = row
	return row
}

func newCertificateFixture() (*CertificateService, *mockApprovalRepo, *mockRenderer, *mockResultCache) {
	repo := &mockApprovalRepo{}
	renderer := &mockRenderer{}
	cache := &mockResultCache{}
	svc := NewCertificateService(repo, nil, renderer, cache, nil, zap.NewNop(), "Sekolah Harapan", time.Minute)
	return svc, repo, renderer, cache
}

func TestCertificateServiceIssueDateFromCompletion(t *testing.T) {
	repo := &mockApprovalRepo{}
	seedApproval(repo, false)
	completedAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	progress := &mockProgressRepo{records: map[string]*models.CourseProgress{
		progressKey("s1", "c1"): {ID: "p1", StudentID: "s1", CourseID: "c1", Completed: true, CompletedAt: &completedAt},
	}}
	svc := NewCertificateService(repo, progress, &mockRenderer{}, nil, nil, zap.NewNop(), "Sekolah Harapan", time.Minute)

	cert, err := svc.Issue(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.Equal(t, completedAt, cert.IssueDate)
}

func TestCertificateServiceIssueMintsOnce(t *testing.T) {
	svc, repo, _, _ := newCertificateFixture()
	seedApproval(repo, false)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "c1", "s1")
	require.NoError(t, err)
	assert.Len(t, first.CertificateID, 32)
	assert.False(t, first.IssueDate.IsZero())

	second, err := svc.Issue(ctx, "c1", "s1")
	require.NoError(t, err)
	assert.Equal(t, first.CertificateID, second.CertificateID)
	assert.Equal(t, first.IssueDate, second.IssueDate)
}

func TestCertificateServiceIssueLosesClaimRace(t *testing.T) {
	svc, repo, _, _ := newCertificateFixture()
	seedApproval(repo, false)
	repo.loseClaim = true

	cert, err := svc.Issue(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "feedfacefeedfacefeedfacefeedface", cert.CertificateID)
}

func TestCertificateServiceIssueWithoutApproval(t *testing.T) {
	svc, _, _, _ := newCertificateFixture()

	_, err := svc.Issue(context.Background(), "c1", "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEligible.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceIssueRevoked(t *testing.T) {
	svc, repo, _, _ := newCertificateFixture()
	seedApproval(repo, true)

	_, err := svc.Issue(context.Background(), "c1", "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEligible.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceDownload(t *testing.T) {
	svc, repo, renderer, _ := newCertificateFixture()
	seedApproval(repo, false)

	filename, document, err := svc.Download(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "certificate-siti-rahma-algebra-fundamentals.pdf", filename)
	assert.NotEmpty(t, document)
	require.Len(t, renderer.rendered, 1)
	assert.Equal(t, "Sekolah Harapan", renderer.rendered[0].IssuedBy)
}

func TestCertificateServiceVerify(t *testing.T) {
	svc, repo, _, _ := newCertificateFixture()
	seedApproval(repo, false)
	ctx := context.Background()

	cert, err := svc.Issue(ctx, "c1", "s1")
	require.NoError(t, err)

	result, err := svc.Verify(ctx, cert.CertificateID)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.False(t, result.Revoked)
	assert.Equal(t, "Siti Rahma", result.StudentName)
	assert.Equal(t, "Budi Rahman", result.StudentFatherName)
	assert.Equal(t, "Algebra Fundamentals", result.CourseTitle)
	assert.Equal(t, "Sekolah Harapan", result.IssuedBy)
	assert.Equal(t, cert.IssueDate.Format("2006-01-02"), result.IssueDate)
}

func TestCertificateServiceVerifyCacheHit(t *testing.T) {
	svc, repo, _, _ := newCertificateFixture()
	seedApproval(repo, false)
	ctx := context.Background()

	cert, err := svc.Issue(ctx, "c1", "s1")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, cert.CertificateID)
	require.NoError(t, err)
	lookups := repo.lookups

	_, err = svc.Verify(ctx, cert.CertificateID)
	require.NoError(t, err)
	assert.Equal(t, lookups, repo.lookups)
}

func TestCertificateServiceVerifyRevoked(t *testing.T) {
	svc, repo, _, _ := newCertificateFixture()
	row := seedApproval(repo, false)
	ctx := context.Background()

	cert, err := svc.Issue(ctx, "c1", "s1")
	require.NoError(t, err)
	row.Revoked = true

	result, err := svc.Verify(ctx, cert.CertificateID)
	require.NoError(t, err)
	assert.True(t, result.Revoked)
	assert.False(t, result.Verified)
	// Snapshot is still disclosed so the checker sees what was revoked.
	assert.Equal(t, "Siti Rahma", result.StudentName)
}

func TestCertificateServiceVerifyUnknownID(t *testing.T) {
	svc, _, _, _ := newCertificateFixture()

	_, err := svc.Verify(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceVerifyBlankID(t *testing.T) {
	svc, _, _, _ := newCertificateFixture()

	_, err := svc.Verify(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
