package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/models"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
	"github.com/noah-isme/lms-cert-api/pkg/export"
)

// RegistryService exports the certificate registry of a course as CSV for
// administrative record keeping. Rows read the approval snapshots only.
type RegistryService struct {
	approvals approvalRepository
	exporter  *export.CSVExporter
	logger    *zap.Logger
}

// NewRegistryService constructs RegistryService.
func NewRegistryService(approvals approvalRepository, exporter *export.CSVExporter, logger *zap.Logger) *RegistryService {
	if exporter == nil {
		exporter = export.NewCSVExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryService{approvals: approvals, exporter: exporter, logger: logger}
}

// ExportCourseRegistry renders every approval row of a course to CSV.
func (s *RegistryService) ExportCourseRegistry(ctx context.Context, courseID string) (string, []byte, error) {
	approvals, err := s.approvals.ListByCourse(ctx, courseID)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	if len(approvals) == 0 {
		return "", nil, appErrors.Clone(appErrors.ErrNotFound, "no approvals recorded for course")
	}

	dataset := export.Dataset{
		Headers: []string{"certificate_id", "student_number", "student_name", "guardian_name", "course_title", "grade", "approved_by", "approved_at", "issue_date", "status"},
	}
	for _, a := range approvals {
		row := map[string]string{
			"student_number": a.StudentNumber,
			"student_name":   a.StudentName,
			"guardian_name":  a.GuardianName,
			"course_title":   a.CourseTitle,
			"grade":          a.Grade,
			"approved_by":    a.ApprovedBy,
			"approved_at":    a.ApprovedAt.UTC().Format(time.RFC3339),
			"status":         registryStatus(a),
		}
		if a.CertificateID != nil {
			row["certificate_id"] = *a.CertificateID
		}
		if a.IssueDate != nil {
			row["issue_date"] = a.IssueDate.UTC().Format("2006-01-02")
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	data, err := s.exporter.Render(dataset)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render registry csv")
	}

	filename := fmt.Sprintf("certificate-registry-%s.csv", courseID)
	return filename, data, nil
}

func registryStatus(a models.CertificateApproval) string {
	switch {
	case a.Revoked:
		return "revoked"
	case a.CertificateID != nil:
		return "issued"
	default:
		return "approved"
	}
}
