package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-krs-api/internal/middleware"
	"github.com/noah-isme/uni-krs-api/internal/models"
	"github.com/noah-isme/uni-krs-api/internal/service"
)

const handlerTestTerm = "2024/2025-Ganjil"

type ledgerStub struct {
	records  map[string]models.EnrollmentDetail
	admitted *models.Enrollment
	deleted  []string
}

func (m *ledgerStub) Admit(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "new-enroll"
	}
	m.admitted = enrollment
	return nil
}

func (m *ledgerStub) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.records, id)
	return nil
}

func (m *ledgerStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if r, ok := m.records[id]; ok {
		return &r.Enrollment, nil
	}
	return nil, sql.ErrNoRows
}

func (m *ledgerStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *ledgerStub) ListByStudentAndTerm(ctx context.Context, studentID, term string) ([]models.EnrollmentDetail, error) {
	var list []models.EnrollmentDetail
	for _, r := range m.records {
		if r.StudentID == studentID && r.Term == term {
			list = append(list, r)
		}
	}
	return list, nil
}

func (m *ledgerStub) ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

func (m *ledgerStub) ListBySubject(ctx context.Context, subjectID string) ([]models.Enrollment, error) {
	return nil, nil
}

func (m *ledgerStub) CountBySubject(ctx context.Context, subjectID string) (int, error) {
	return 0, nil
}

func (m *ledgerStub) CountByOffering(ctx context.Context, offeringID string) (int, error) {
	return 0, nil
}

func (m *ledgerStub) DeleteBySubject(ctx context.Context, subjectID string) (int, error) {
	return 0, nil
}

type subjectReaderStub struct{ subjects map[string]models.Subject }

func (m *subjectReaderStub) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type offeringReaderStub struct{ offerings map[string]models.Offering }

func (m *offeringReaderStub) FindByID(ctx context.Context, id string) (*models.Offering, error) {
	if o, ok := m.offerings[id]; ok {
		return &o, nil
	}
	return nil, sql.ErrNoRows
}

type studentReaderStub struct{ students map[string]models.Student }

func (m *studentReaderStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func newEnrollmentRouter(t *testing.T, claims *models.JWTClaims) (*gin.Engine, *ledgerStub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := &ledgerStub{records: map[string]models.EnrollmentDetail{}}
	subjects := &subjectReaderStub{subjects: map[string]models.Subject{
		"sub-1": {ID: "sub-1", Code: "IF101", Name: "Algoritma", Status: models.SubjectStatusActive},
	}}
	offerings := &offeringReaderStub{offerings: map[string]models.Offering{
		"off-1": {ID: "off-1", SubjectID: "sub-1", Term: handlerTestTerm, Status: models.OfferingStatusOpen},
	}}
	students := &studentReaderStub{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", Active: true},
		"stu-2": {ID: "stu-2", Active: true},
	}}

	svc := service.NewEnrollmentService(repo, subjects, offerings, students, nil, nil, nil)
	h := NewEnrollmentHandler(svc)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, claims)
		c.Next()
	})
	r.POST("/enrollments", h.Enroll)
	r.DELETE("/enrollments/:id", h.Withdraw)
	return r, repo
}

func enrollBody(t *testing.T, studentID string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"student_id":  studentID,
		"subject_id":  "sub-1",
		"offering_id": "off-1",
		"term":        handlerTestTerm,
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestEnrollmentHandlerStudentEnrollsSelf(t *testing.T) {
	r, repo := newEnrollmentRouter(t, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	req := httptest.NewRequest(http.MethodPost, "/enrollments", enrollBody(t, "stu-1"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, repo.admitted)
	assert.Equal(t, "stu-1", repo.admitted.StudentID)
}

func TestEnrollmentHandlerStudentCannotEnrollOthers(t *testing.T) {
	r, repo := newEnrollmentRouter(t, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	req := httptest.NewRequest(http.MethodPost, "/enrollments", enrollBody(t, "stu-2"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, repo.admitted)
}

func TestEnrollmentHandlerStaffEnrollsAnyStudent(t *testing.T) {
	r, repo := newEnrollmentRouter(t, &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})

	req := httptest.NewRequest(http.MethodPost, "/enrollments", enrollBody(t, "stu-2"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, repo.admitted)
	assert.Equal(t, "stu-2", repo.admitted.StudentID)
}

func TestEnrollmentHandlerStudentCannotWithdrawOthers(t *testing.T) {
	r, repo := newEnrollmentRouter(t, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})
	repo.records["enr-2"] = models.EnrollmentDetail{Enrollment: models.Enrollment{
		ID: "enr-2", StudentID: "stu-2", SubjectID: "sub-1", OfferingID: "off-1", Term: handlerTestTerm,
	}}

	req := httptest.NewRequest(http.MethodDelete, "/enrollments/enr-2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, repo.deleted)
}

func TestEnrollmentHandlerStudentWithdrawsOwn(t *testing.T) {
	r, repo := newEnrollmentRouter(t, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})
	repo.records["enr-1"] = models.EnrollmentDetail{Enrollment: models.Enrollment{
		ID: "enr-1", StudentID: "stu-1", SubjectID: "sub-1", OfferingID: "off-1", Term: handlerTestTerm,
	}}

	req := httptest.NewRequest(http.MethodDelete, "/enrollments/enr-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"enr-1"}, repo.deleted)
}

func TestEnrollmentHandlerWithdrawMissingStaysIdempotent(t *testing.T) {
	r, repo := newEnrollmentRouter(t, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	req := httptest.NewRequest(http.MethodDelete, "/enrollments/ghost", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, repo.deleted)
}
