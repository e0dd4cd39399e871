package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/middleware"
	"github.com/noah-isme/lms-cert-api/internal/models"
	"github.com/noah-isme/lms-cert-api/internal/service"
)

func newCertificateHandlerFixture() (*CertificateHandler, *fakeApprovalRepo) {
	repo := &fakeApprovalRepo{rows: map[string]*models.CertificateApproval{}}
	students := &fakeStudentDirectory{students: map[string]*models.Student{
		"s1": {ID: "s1", FullName: "Siti Rahma", Email: "siti@example.com", GuardianName: "Budi Rahman", StudentNumber: "STU-001", Active: true},
	}}
	catalog := &fakeCourseCatalog{
		course:   &models.Course{ID: "c1", Title: "Algebra Fundamentals", CompletionThreshold: 100, Active: true},
		lectures: []string{"l1"},
	}
	logger := zap.NewNop()
	approvals := service.NewApprovalService(repo, students, catalog, nil, validator.New(), logger)
	certs := service.NewCertificateService(repo, nil, fakeRenderer{}, nil, nil, logger, "Sekolah Harapan", time.Minute)
	return NewCertificateHandler(approvals, certs, nil), repo
}

func adminContext(w *httptest.ResponseRecorder, method string, body []byte) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	if body != nil {
		c.Request = httptest.NewRequest(method, "/certificates", bytes.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
	} else {
		c.Request = httptest.NewRequest(method, "/certificates", nil)
	}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	return c
}

func TestCertificateHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, repo := newCertificateHandlerFixture()

	payload, _ := json.Marshal(map[string]string{
		"course_id":  "c1",
		"student_id": "s1",
		"grade":      "A",
	})
	w := httptest.NewRecorder()
	c := adminContext(w, http.MethodPost, payload)

	h.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data models.CertificateApproval `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Siti Rahma", body.Data.StudentName)
	assert.Equal(t, "Budi Rahman", body.Data.GuardianName)
	assert.Equal(t, "admin-1", body.Data.ApprovedBy)
	assert.NotNil(t, repo.rows[enrollmentKey("c1", "s1")])
}

func TestCertificateHandlerApproveWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newCertificateHandlerFixture()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/certificates/approve", strings.NewReader(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Approve(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCertificateHandlerRevokeUnknownEnrollmentIsNoOp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newCertificateHandlerFixture()

	payload, _ := json.Marshal(map[string]string{
		"course_id":  "c1",
		"student_id": "ghost",
		"reason":     "duplicate record",
	})
	w := httptest.NewRecorder()
	c := adminContext(w, http.MethodPost, payload)

	h.Revoke(c)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestCertificateHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, repo := newCertificateHandlerFixture()
	repo.rows[enrollmentKey("c1", "s1")] = &models.CertificateApproval{
		ID:            "ap-1",
		CourseID:      "c1",
		StudentID:     "s1",
		ApprovedBy:    "admin-1",
		ApprovedAt:    time.Now().UTC(),
		Grade:         "A",
		StudentName:   "Siti Rahma",
		GuardianName:  "Budi Rahman",
		StudentNumber: "STU-001",
		CourseTitle:   "Algebra Fundamentals",
	}

	w := httptest.NewRecorder()
	c := adminContext(w, http.MethodGet, nil)
	c.Params = gin.Params{
		{Key: "courseId", Value: "c1"},
		{Key: "studentId", Value: "s1"},
	}

	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="certificate-siti-rahma-algebra-fundamentals.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))

	// Issuance happened as a side effect of the download.
	stored := repo.rows[enrollmentKey("c1", "s1")]
	require.NotNil(t, stored.CertificateID)
	assert.Len(t, *stored.CertificateID, 32)
}

func TestCertificateHandlerMyCertificatesWithoutStudentProfile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newCertificateHandlerFixture()

	w := httptest.NewRecorder()
	c := adminContext(w, http.MethodGet, nil)

	h.MyCertificates(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCertificateHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, repo := newCertificateHandlerFixture()
	repo.rows[enrollmentKey("c1", "s1")] = &models.CertificateApproval{
		ID:        "ap-1",
		CourseID:  "c1",
		StudentID: "s1",
		Grade:     "B+",
	}

	w := httptest.NewRecorder()
	c := adminContext(w, http.MethodGet, nil)
	c.Params = gin.Params{
		{Key: "courseId", Value: "c1"},
		{Key: "studentId", Value: "s1"},
	}

	h.Status(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data models.CertificateApproval `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "B+", body.Data.Grade)
}
