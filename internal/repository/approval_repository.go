package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-cert-api/internal/models"
)

const approvalColumns = `id, course_id, student_id, approved_by, approved_at, revoked, revoked_at, notes, grade,
        student_name, student_email, guardian_name, student_number, course_title, snapshot_version,
        certificate_id, issue_date, created_at, updated_at`

// ApprovalRepository handles persistence of certificate approvals.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Upsert creates or refreshes the approval for a (course, student) pair.
// Concurrent approvals collapse onto the single row guarded by the
// uniqueness constraint; the snapshot is last-writer-wins while a minted
// certificate_id and issue_date are always preserved.
func (r *ApprovalRepository) Upsert(ctx context.Context, approval *models.CertificateApproval) (*models.CertificateApproval, error) {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	approval.CreatedAt = now
	approval.UpdatedAt = now
	approval.SnapshotVersion = models.ApprovalSnapshotVersion

	query := `INSERT INTO certificate_approvals (id, course_id, student_id, approved_by, approved_at, revoked, revoked_at, notes, grade,
            student_name, student_email, guardian_name, student_number, course_title, snapshot_version, created_at, updated_at)
        VALUES (:id, :course_id, :student_id, :approved_by, :approved_at, FALSE, NULL, :notes, :grade,
            :student_name, :student_email, :guardian_name, :student_number, :course_title, :snapshot_version, :created_at, :updated_at)
        ON CONFLICT (course_id, student_id) DO UPDATE
        SET approved_by = EXCLUDED.approved_by, approved_at = EXCLUDED.approved_at,
            revoked = FALSE, revoked_at = NULL,
            notes = EXCLUDED.notes, grade = EXCLUDED.grade,
            student_name = EXCLUDED.student_name, student_email = EXCLUDED.student_email,
            guardian_name = EXCLUDED.guardian_name, student_number = EXCLUDED.student_number,
            course_title = EXCLUDED.course_title, snapshot_version = EXCLUDED.snapshot_version,
            updated_at = EXCLUDED.updated_at
        RETURNING ` + approvalColumns

	rows, err := r.db.NamedQueryContext(ctx, query, approval)
	if err != nil {
		return nil, fmt.Errorf("upsert approval: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	if !rows.Next() {
		return nil, fmt.Errorf("upsert approval: no row returned")
	}
	var stored models.CertificateApproval
	if err := rows.StructScan(&stored); err != nil {
		return nil, fmt.Errorf("scan approval: %w", err)
	}
	return &stored, nil
}

// FindByEnrollment returns the approval for a (course, student) pair.
func (r *ApprovalRepository) FindByEnrollment(ctx context.Context, courseID, studentID string) (*models.CertificateApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM certificate_approvals WHERE course_id = $1 AND student_id = $2`
	var approval models.CertificateApproval
	if err := r.db.GetContext(ctx, &approval, query, courseID, studentID); err != nil {
		return nil, err
	}
	return &approval, nil
}

// FindByCertificateID looks an approval up by its minted certificate id.
func (r *ApprovalRepository) FindByCertificateID(ctx context.Context, certificateID string) (*models.CertificateApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM certificate_approvals WHERE certificate_id = $1`
	var approval models.CertificateApproval
	if err := r.db.GetContext(ctx, &approval, query, certificateID); err != nil {
		return nil, err
	}
	return &approval, nil
}

// Revoke flips the revocation flag and appends the reason to the notes.
// Returns false when no approval exists for the pair.
func (r *ApprovalRepository) Revoke(ctx context.Context, courseID, studentID, reason string) (bool, error) {
	const query = `UPDATE certificate_approvals
        SET revoked = TRUE, revoked_at = $3,
            notes = CASE WHEN $4 = '' THEN notes
                         WHEN notes = '' THEN $4
                         ELSE notes || E'\n' || $4 END,
            updated_at = $3
        WHERE course_id = $1 AND student_id = $2`
	result, err := r.db.ExecContext(ctx, query, courseID, studentID, time.Now().UTC(), reason)
	if err != nil {
		return false, fmt.Errorf("revoke approval: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke approval rows: %w", err)
	}
	return affected > 0, nil
}

// ClaimCertificate attaches a freshly minted certificate id to the approval
// if and only if none exists yet. Returns false when another writer already
// minted; the caller re-reads and returns the winner's identifier.
func (r *ApprovalRepository) ClaimCertificate(ctx context.Context, approvalID, certificateID string, issueDate time.Time) (bool, error) {
	const query = `UPDATE certificate_approvals
        SET certificate_id = $2, issue_date = $3, updated_at = $4
        WHERE id = $1 AND certificate_id IS NULL`
	result, err := r.db.ExecContext(ctx, query, approvalID, certificateID, issueDate, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim certificate id: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim certificate rows: %w", err)
	}
	return affected > 0, nil
}

// ListByCourse returns approvals for a course ordered by approval time.
func (r *ApprovalRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CertificateApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM certificate_approvals WHERE course_id = $1 ORDER BY approved_at ASC`
	var approvals []models.CertificateApproval
	if err := r.db.SelectContext(ctx, &approvals, query, courseID); err != nil {
		return nil, fmt.Errorf("list approvals by course: %w", err)
	}
	return approvals, nil
}

// ListByStudent returns a student's approvals across courses.
func (r *ApprovalRepository) ListByStudent(ctx context.Context, studentID string) ([]models.CertificateApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM certificate_approvals WHERE student_id = $1 ORDER BY approved_at DESC`
	var approvals []models.CertificateApproval
	if err := r.db.SelectContext(ctx, &approvals, query, studentID); err != nil {
		return nil, fmt.Errorf("list approvals by student: %w", err)
	}
	return approvals, nil
}
