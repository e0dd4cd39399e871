package models

import "time"

// ApprovalSnapshotVersion tags the snapshot field layout so future schema
// changes cannot silently corrupt already-issued certificates.
const ApprovalSnapshotVersion = 1

// CertificateApproval is the eligibility record for a (course, student)
// pair. It owns the point-in-time snapshot that issued certificates and
// public verification read from; live student or course edits never reach
// it. At most one row exists per (course_id, student_id).
type CertificateApproval struct {
	ID         string     `db:"id" json:"id"`
	CourseID   string     `db:"course_id" json:"course_id"`
	StudentID  string     `db:"student_id" json:"student_id"`
	ApprovedBy string     `db:"approved_by" json:"approved_by"`
	ApprovedAt time.Time  `db:"approved_at" json:"approved_at"`
	Revoked    bool       `db:"revoked" json:"revoked"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	Notes      string     `db:"notes" json:"notes,omitempty"`
	Grade      string     `db:"grade" json:"grade"`

	// Snapshot captured at approval time.
	StudentName     string `db:"student_name" json:"student_name"`
	StudentEmail    string `db:"student_email" json:"student_email"`
	GuardianName    string `db:"guardian_name" json:"guardian_name"`
	StudentNumber   string `db:"student_number" json:"student_number"`
	CourseTitle     string `db:"course_title" json:"course_title"`
	SnapshotVersion int    `db:"snapshot_version" json:"snapshot_version"`

	// Minted once, on first issuance; reused on every subsequent request.
	CertificateID *string    `db:"certificate_id" json:"certificate_id,omitempty"`
	IssueDate     *time.Time `db:"issue_date" json:"issue_date,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Certificate is the immutable issuance view derived from an approval.
// Everything here comes from the approval row, never from live records.
type Certificate struct {
	CertificateID string    `json:"certificate_id"`
	StudentID     string    `json:"student_id"`
	StudentName   string    `json:"student_name"`
	GuardianName  string    `json:"guardian_name,omitempty"`
	StudentNumber string    `json:"student_number"`
	CourseID      string    `json:"course_id"`
	CourseTitle   string    `json:"course_title"`
	Grade         string    `json:"grade"`
	IssueDate     time.Time `json:"issue_date"`
	IssuedBy      string    `json:"issued_by"`
	Revoked       bool      `json:"revoked"`
}

// VerificationResult is the public verification contract. Field names are
// part of the external trust contract consumed by third parties and must
// not change with internal schema evolution.
type VerificationResult struct {
	CertificateID     string `json:"certificateId"`
	StudentID         string `json:"studentId"`
	StudentName       string `json:"studentName"`
	StudentFatherName string `json:"studentFatherName"`
	CourseTitle       string `json:"courseTitle"`
	Grade             string `json:"grade"`
	IssueDate         string `json:"issueDate"`
	IssuedBy          string `json:"issuedBy"`
	Revoked           bool   `json:"revoked"`
	Verified          bool   `json:"verified"`
}
