package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/noah-isme/lms-cert-api/internal/models"
)

// In-memory repository doubles shared by the handler tests.

type fakeApprovalRepo struct {
	rows map[string]*models.CertificateApproval
}

func enrollmentKey(courseID, studentID string) string {
	return courseID + "|" + studentID
}

func (f *fakeApprovalRepo) Upsert(ctx context.Context, approval *models.CertificateApproval) (*models.CertificateApproval, error) {
	if f.rows == nil {
		f.rows = make(map[string]*models.CertificateApproval)
	}
	row := *approval
	f.rows[enrollmentKey(approval.CourseID, approval.StudentID)] = &row
	out := row
	return &out, nil
}

func (f *fakeApprovalRepo) FindByEnrollment(ctx context.Context, courseID, studentID string) (*models.CertificateApproval, error) {
	if row, ok := f.rows[enrollmentKey(courseID, studentID)]; ok {
		out := *row
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeApprovalRepo) FindByCertificateID(ctx context.Context, certificateID string) (*models.CertificateApproval, error) {
	for _, row := range f.rows {
		if row.CertificateID != nil && *row.CertificateID == certificateID {
			out := *row
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeApprovalRepo) Revoke(ctx context.Context, courseID, studentID, reason string) (bool, error) {
	row, ok := f.rows[enrollmentKey(courseID, studentID)]
	if !ok {
		return false, nil
	}
	now := time.Now().UTC()
	row.Revoked = true
	row.RevokedAt = &now
	return true, nil
}

func (f *fakeApprovalRepo) ClaimCertificate(ctx context.Context, approvalID, certificateID string, issueDate time.Time) (bool, error) {
	for _, row := range f.rows {
		if row.ID == approvalID && row.CertificateID == nil {
			row.CertificateID = &certificateID
			row.IssueDate = &issueDate
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeApprovalRepo) ListByCourse(ctx context.Context, courseID string) ([]models.CertificateApproval, error) {
	var out []models.CertificateApproval
	for _, row := range f.rows {
		if row.CourseID == courseID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeApprovalRepo) ListByStudent(ctx context.Context, studentID string) ([]models.CertificateApproval, error) {
	var out []models.CertificateApproval
	for _, row := range f.rows {
		if row.StudentID == studentID {
			out = append(out, *row)
		}
	}
	return out, nil
}

type fakeProgressRepo struct {
	records map[string]*models.CourseProgress
}

func (f *fakeProgressRepo) byID(id string) *models.CourseProgress {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (f *fakeProgressRepo) FindByEnrollment(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error) {
	if rec, ok := f.records[enrollmentKey(courseID, studentID)]; ok {
		out := *rec
		out.Lectures = append([]models.LectureProgress(nil), rec.Lectures...)
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeProgressRepo) FindOrCreate(ctx context.Context, studentID, courseID string) (*models.CourseProgress, error) {
	if rec, err := f.FindByEnrollment(ctx, studentID, courseID); err == nil {
		return rec, nil
	}
	if f.records == nil {
		f.records = make(map[string]*models.CourseProgress)
	}
	rec := &models.CourseProgress{ID: "prog-" + enrollmentKey(courseID, studentID), StudentID: studentID, CourseID: courseID}
	f.records[enrollmentKey(courseID, studentID)] = rec
	out := *rec
	return &out, nil
}

func (f *fakeProgressRepo) UpsertLecture(ctx context.Context, lecture *models.LectureProgress) error {
	rec := f.byID(lecture.ProgressID)
	if rec == nil {
		return sql.ErrNoRows
	}
	for i := range rec.Lectures {
		if rec.Lectures[i].LectureID == lecture.LectureID {
			rec.Lectures[i] = *lecture
			return nil
		}
	}
	rec.Lectures = append(rec.Lectures, *lecture)
	return nil
}

func (f *fakeProgressRepo) UpdateCompletion(ctx context.Context, progressID string, completed bool, completedAt *time.Time) error {
	rec := f.byID(progressID)
	if rec == nil {
		return sql.ErrNoRows
	}
	rec.Completed = completed
	rec.CompletedAt = completedAt
	return nil
}

func (f *fakeProgressRepo) Reset(ctx context.Context, progressID string) error {
	rec := f.byID(progressID)
	if rec == nil {
		return sql.ErrNoRows
	}
	rec.Lectures = nil
	rec.Completed = false
	rec.CompletedAt = nil
	return nil
}

type fakeCourseCatalog struct {
	course   *models.Course
	lectures []string
}

func (f *fakeCourseCatalog) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if f.course == nil || f.course.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.course, nil
}

func (f *fakeCourseCatalog) CountLectures(ctx context.Context, courseID string) (int, error) {
	return len(f.lectures), nil
}

func (f *fakeCourseCatalog) LectureExists(ctx context.Context, courseID, lectureID string) (bool, error) {
	for _, id := range f.lectures {
		if id == lectureID {
			return true, nil
		}
	}
	return false, nil
}

type fakeStudentDirectory struct {
	students map[string]*models.Student
}

func (f *fakeStudentDirectory) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := f.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type fakeRenderer struct{}

func (fakeRenderer) Render(cert models.Certificate) ([]byte, error) {
	return []byte("%PDF-1.4 fake"), nil
}

func (fakeRenderer) VerificationURL(certificateID string) string {
	return "https://lms.example.com/verify-certificate/" + certificateID
}
