package models

import "time"

// Student holds the roster profile fields captured into certificate
// snapshots. The roster is maintained by the admissions surface; this
// engine only reads it.
type Student struct {
	ID            string    `db:"id" json:"id"`
	FullName      string    `db:"full_name" json:"full_name"`
	Email         string    `db:"email" json:"email"`
	GuardianName  string    `db:"guardian_name" json:"guardian_name"`
	StudentNumber string    `db:"student_number" json:"student_number"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
