package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/models"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
)

type documentRenderer interface {
	Render(cert models.Certificate) ([]byte, error)
	VerificationURL(certificateID string) string
}

type progressReader interface {
	FindByEnrollment(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error)
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func verificationCacheKey(certificateID string) string {
	return "verify:" + certificateID
}

// CertificateService mints certificate ids, renders the PDF document and
// serves public verification. A certificate id is minted at most once per
// approval; every later download reuses the same id and issue date.
type CertificateService struct {
	approvals approvalRepository
	progress  progressReader
	renderer  documentRenderer
	cache     resultCache
	metrics   *MetricsService
	logger    *zap.Logger

	institutionName string
	verifyCacheTTL  time.Duration
}

// NewCertificateService constructs CertificateService. progress may be nil;
// issue dates then always fall back to the mint time.
func NewCertificateService(approvals approvalRepository, progress progressReader, renderer documentRenderer, cache resultCache, metrics *MetricsService, logger *zap.Logger, institutionName string, verifyCacheTTL time.Duration) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if verifyCacheTTL <= 0 {
		verifyCacheTTL = 5 * time.Minute
	}
	return &CertificateService{
		approvals:       approvals,
		progress:        progress,
		renderer:        renderer,
		cache:           cache,
		metrics:         metrics,
		logger:          logger,
		institutionName: institutionName,
		verifyCacheTTL:  verifyCacheTTL,
	}
}

// Issue returns the certificate for an enrollment, minting the id on first
// call. Concurrent first calls race on a conditional claim; the loser
// discards its candidate id and adopts the winner's.
func (s *CertificateService) Issue(ctx context.Context, courseID, studentID string) (*models.Certificate, error) {
	approval, err := s.approvals.FindByEnrollment(ctx, courseID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEligible, "certificate not enabled for enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval")
	}
	if approval.Revoked {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, "certificate approval has been revoked")
	}

	if approval.CertificateID == nil {
		candidate, err := mintCertificateID()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mint certificate id")
		}
		issueDate := s.issueDate(ctx, courseID, studentID)
		claimed, err := s.approvals.ClaimCertificate(ctx, approval.ID, candidate, issueDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim certificate id")
		}
		if claimed {
			approval.CertificateID = &candidate
			approval.IssueDate = &issueDate
			if s.metrics != nil {
				s.metrics.CertificateIssued()
			}
			s.logger.Info("certificate issued",
				zap.String("certificate_id", candidate),
				zap.String("course_id", courseID),
				zap.String("student_id", studentID))
		} else {
			approval, err = s.approvals.FindByEnrollment(ctx, courseID, studentID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload approval")
			}
			if approval.CertificateID == nil {
				return nil, appErrors.Clone(appErrors.ErrInternal, "certificate claim lost without a winner")
			}
		}
	}

	return certificateView(approval, s.institutionName), nil
}

// Download issues (or re-issues) the certificate and renders the PDF.
func (s *CertificateService) Download(ctx context.Context, courseID, studentID string) (string, []byte, error) {
	cert, err := s.Issue(ctx, courseID, studentID)
	if err != nil {
		return "", nil, err
	}

	start := time.Now()
	document, err := s.renderer.Render(*cert)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	if s.metrics != nil {
		s.metrics.ObserveRenderDuration(time.Since(start))
	}

	filename := fmt.Sprintf("certificate-%s-%s.pdf", slugify(cert.StudentName), slugify(cert.CourseTitle))
	return filename, document, nil
}

// Verify resolves a certificate id for the public endpoint. The result is
// built from the approval snapshot only and cached briefly; revocation is
// reported, never hidden.
func (s *CertificateService) Verify(ctx context.Context, certificateID string) (*models.VerificationResult, error) {
	certificateID = strings.TrimSpace(certificateID)
	if certificateID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "certificate id is required")
	}

	var cached models.VerificationResult
	if s.cache != nil {
		if err := s.cache.Get(ctx, verificationCacheKey(certificateID), &cached); err == nil {
			if s.metrics != nil {
				s.metrics.CertificateVerified(true)
			}
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("verification cache read failed", zap.Error(err))
		}
	}

	approval, err := s.approvals.FindByCertificateID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up certificate")
	}

	result := &models.VerificationResult{
		CertificateID:     certificateID,
		StudentID:         approval.StudentID,
		StudentName:       approval.StudentName,
		StudentFatherName: approval.GuardianName,
		CourseTitle:       approval.CourseTitle,
		Grade:             approval.Grade,
		IssuedBy:          s.institutionName,
		Revoked:           approval.Revoked,
		Verified:          !approval.Revoked,
	}
	if approval.IssueDate != nil {
		result.IssueDate = approval.IssueDate.UTC().Format("2006-01-02")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, verificationCacheKey(certificateID), result, s.verifyCacheTTL); err != nil {
			s.logger.Warn("verification cache write failed", zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.CertificateVerified(false)
	}
	return result, nil
}

// issueDate is the course completion time when one exists, otherwise the
// mint time.
func (s *CertificateService) issueDate(ctx context.Context, courseID, studentID string) time.Time {
	if s.progress != nil {
		record, err := s.progress.FindByEnrollment(ctx, studentID, courseID)
		if err == nil && record.CompletedAt != nil {
			return record.CompletedAt.UTC()
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("progress lookup for issue date failed", zap.Error(err))
		}
	}
	return time.Now().UTC()
}

// certificateView projects the approval snapshot into the immutable
// issuance view. Requires a minted certificate id.
func certificateView(approval *models.CertificateApproval, issuedBy string) *models.Certificate {
	cert := &models.Certificate{
		StudentID:     approval.StudentID,
		StudentName:   approval.StudentName,
		GuardianName:  approval.GuardianName,
		StudentNumber: approval.StudentNumber,
		CourseID:      approval.CourseID,
		CourseTitle:   approval.CourseTitle,
		Grade:         approval.Grade,
		IssuedBy:      issuedBy,
		Revoked:       approval.Revoked,
	}
	if approval.CertificateID != nil {
		cert.CertificateID = *approval.CertificateID
	}
	if approval.IssueDate != nil {
		cert.IssueDate = approval.IssueDate.UTC()
	}
	return cert
}

// mintCertificateID draws 16 bytes from crypto/rand, hex encoded. 128 bits
// keeps collisions out of reach without coordination between instances.
func mintCertificateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			if n := b.Len(); n > 0 && b.String()[n-1] != '-' {
				b.WriteByte('-')
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
