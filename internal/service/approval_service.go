package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/models"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
)

type approvalRepository interface {
	Upsert(ctx context.Context, approval *models.CertificateApproval) (*models.CertificateApproval, error)
	FindByEnrollment(ctx context.Context, courseID, studentID string) (*models.CertificateApproval, error)
	FindByCertificateID(ctx context.Context, certificateID string) (*models.CertificateApproval, error)
	Revoke(ctx context.Context, courseID, studentID, reason string) (bool, error)
	ClaimCertificate(ctx context.Context, approvalID, certificateID string, issueDate time.Time) (bool, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.CertificateApproval, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.CertificateApproval, error)
}

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type verificationCache interface {
	Delete(ctx context.Context, key string) error
}

// ApproveRequest enables certificate issuance for one enrollment.
type ApproveRequest struct {
	CourseID   string `json:"course_id" validate:"required"`
	StudentID  string `json:"student_id" validate:"required"`
	Grade      string `json:"grade" validate:"max=16"`
	Notes      string `json:"notes" validate:"max=500"`
	ApprovedBy string `json:"-" validate:"required"`
}

// RevokeRequest disables an enrollment's approval.
type RevokeRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
}

// ApprovalService is the eligibility gate. Approval is an explicit staff
// decision, deliberately independent of derived watch-completion, and the
// approval row carries the snapshot that all later issuance and public
// verification read from.
type ApprovalService struct {
	repo      approvalRepository
	students  studentDirectory
	courses   courseCatalog
	cache     verificationCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApprovalService constructs ApprovalService.
func NewApprovalService(repo approvalRepository, students studentDirectory, courses courseCatalog, cache verificationCache, validate *validator.Validate, logger *zap.Logger) *ApprovalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{repo: repo, students: students, courses: courses, cache: cache, validator: validate, logger: logger}
}

// Approve records (or refreshes) the approval for an enrollment, capturing
// the student and course snapshot at this moment. Re-approving a revoked
// enrollment clears the revocation but keeps any previously minted
// certificate id.
func (s *ApprovalService) Approve(ctx context.Context, req ApproveRequest) (*models.CertificateApproval, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	approval := &models.CertificateApproval{
		ID:         uuid.NewString(),
		CourseID:   req.CourseID,
		StudentID:  req.StudentID,
		ApprovedBy: req.ApprovedBy,
		ApprovedAt: time.Now().UTC(),
		Notes:      req.Notes,
		Grade:      req.Grade,

		StudentName:     student.FullName,
		StudentEmail:    student.Email,
		GuardianName:    student.GuardianName,
		StudentNumber:   student.StudentNumber,
		CourseTitle:     course.Title,
		SnapshotVersion: models.ApprovalSnapshotVersion,
	}

	stored, err := s.repo.Upsert(ctx, approval)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store approval")
	}

	s.invalidateVerification(ctx, stored.CertificateID)
	s.logger.Info("certificate approved",
		zap.String("course_id", req.CourseID),
		zap.String("student_id", req.StudentID),
		zap.String("approved_by", req.ApprovedBy))
	return stored, nil
}

// Revoke flags an approval so verification reports the certificate as not
// valid. The row and any minted certificate id are kept; a later
// re-approval restores the same certificate. Revoking an enrollment with
// no approval is an idempotent no-op and returns nil.
func (s *ApprovalService) Revoke(ctx context.Context, req RevokeRequest) (*models.CertificateApproval, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid revoke payload")
	}

	revoked, err := s.repo.Revoke(ctx, req.CourseID, req.StudentID, req.Reason)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke approval")
	}
	if !revoked {
		s.logger.Info("revoke without approval ignored",
			zap.String("course_id", req.CourseID),
			zap.String("student_id", req.StudentID))
		return nil, nil
	}

	approval, err := s.repo.FindByEnrollment(ctx, req.CourseID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload approval")
	}

	s.invalidateVerification(ctx, approval.CertificateID)
	s.logger.Info("certificate revoked",
		zap.String("course_id", req.CourseID),
		zap.String("student_id", req.StudentID))
	return approval, nil
}

// Eligibility returns the active approval for an enrollment. A missing row
// and a revoked row both fail with the not-eligible taxonomy.
func (s *ApprovalService) Eligibility(ctx context.Context, courseID, studentID string) (*models.CertificateApproval, error) {
	approval, err := s.repo.FindByEnrollment(ctx, courseID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEligible, "certificate not enabled for enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval")
	}
	if approval.Revoked {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, "certificate approval has been revoked")
	}
	return approval, nil
}

// GetApproval returns the approval row regardless of revocation state.
func (s *ApprovalService) GetApproval(ctx context.Context, courseID, studentID string) (*models.CertificateApproval, error) {
	approval, err := s.repo.FindByEnrollment(ctx, courseID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no approval for enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval")
	}
	return approval, nil
}

// ListByCourse returns every approval row for a course, issued or not.
func (s *ApprovalService) ListByCourse(ctx context.Context, courseID string) ([]models.CertificateApproval, error) {
	approvals, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	return approvals, nil
}

// ListByStudent returns a student's approvals across courses.
func (s *ApprovalService) ListByStudent(ctx context.Context, studentID string) ([]models.CertificateApproval, error) {
	approvals, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	return approvals, nil
}

func (s *ApprovalService) invalidateVerification(ctx context.Context, certificateID *string) {
	if certificateID == nil || s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, verificationCacheKey(*certificateID)); err != nil {
		s.logger.Warn("failed to invalidate verification cache",
			zap.String("certificate_id", *certificateID),
			zap.Error(err))
	}
}
