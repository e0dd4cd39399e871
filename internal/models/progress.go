package models

import "time"

// LectureProgress tracks one lecture within an enrollment's progress record.
// Rows are unique per (progress_id, lecture_id) and ordered by insertion.
type LectureProgress struct {
	ID          string     `db:"id" json:"id"`
	ProgressID  string     `db:"progress_id" json:"-"`
	LectureID   string     `db:"lecture_id" json:"lecture_id"`
	Viewed      bool       `db:"viewed" json:"viewed"`
	ViewedAt    *time.Time `db:"viewed_at" json:"viewed_at,omitempty"`
	ProgressPct int        `db:"progress_pct" json:"progress_pct"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// CourseProgress is the per-enrollment progress record keyed by
// (student_id, course_id). CompletedAt is stamped exactly once, on the
// transition into the completed state, and cleared only by a reset.
type CourseProgress struct {
	ID          string     `db:"id" json:"id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	CourseID    string     `db:"course_id" json:"course_id"`
	Completed   bool       `db:"completed" json:"completed"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	Lectures []LectureProgress `db:"-" json:"lectures"`
}

// ViewedCount returns the number of lectures marked viewed.
func (p *CourseProgress) ViewedCount() int {
	count := 0
	for _, l := range p.Lectures {
		if l.Viewed {
			count++
		}
	}
	return count
}

// CompletionMet reports whether viewed/total meets the course threshold.
// Integer arithmetic so that 3 of 4 lectures meets a 75% threshold exactly.
func CompletionMet(viewed, total, threshold int) bool {
	if total <= 0 {
		return false
	}
	return viewed*100 >= threshold*total
}
