package models

import "time"

// Course is the catalog entry the engine reads curriculum metadata from.
// Content management lives in the catalog service; only the fields the
// completion and certificate flows need are mapped here.
type Course struct {
	ID                  string    `db:"id" json:"id"`
	Title               string    `db:"title" json:"title"`
	InstructorName      string    `db:"instructor_name" json:"instructor_name"`
	CompletionThreshold int       `db:"completion_threshold" json:"completion_threshold"`
	Active              bool      `db:"active" json:"active"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Lecture is a single curriculum item within a course.
type Lecture struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Title     string    `db:"title" json:"title"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
