package models

import "time"

// BatchStatus captures bulk-render job lifecycle states.
type BatchStatus string

const (
	BatchStatusQueued     BatchStatus = "QUEUED"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusFinished   BatchStatus = "FINISHED"
	BatchStatusFailed     BatchStatus = "FAILED"
)

// CertificateBatch persists a bulk certificate rendering job for a course.
type CertificateBatch struct {
	ID           string      `db:"id" json:"id"`
	CourseID     string      `db:"course_id" json:"course_id"`
	Status       BatchStatus `db:"status" json:"status"`
	Progress     int         `db:"progress" json:"progress"`
	Total        int         `db:"total" json:"total"`
	Rendered     int         `db:"rendered" json:"rendered"`
	ResultURL    *string     `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string      `db:"created_by" json:"created_by"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	StartedAt    *time.Time  `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time  `db:"finished_at" json:"finished_at,omitempty"`
}
