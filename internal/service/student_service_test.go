package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-krs-api/internal/models"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
)

type mockStudentDirectory struct {
	students map[string]models.Student
}

func (m *mockStudentDirectory) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentDirectory) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var list []models.Student
	for _, s := range m.students {
		if filter.Cohort != "" && s.Cohort != filter.Cohort {
			continue
		}
		if filter.Active != nil && s.Active != *filter.Active {
			continue
		}
		list = append(list, s)
	}
	return list, len(list), nil
}

func newStudentFixture() *StudentService {
	repo := &mockStudentDirectory{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", NIM: "2101234", FullName: "Budi Santoso", Cohort: "2024", Active: true},
		"stu-2": {ID: "stu-2", NIM: "2101235", FullName: "Siti Aminah", Cohort: "2024", Active: false},
		"stu-3": {ID: "stu-3", NIM: "2201001", FullName: "Agus Wijaya", Cohort: "2022", Active: true},
	}}
	return NewStudentService(repo, nil)
}

func TestStudentServiceGet(t *testing.T) {
	svc := newStudentFixture()

	student, err := svc.Get(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "Budi Santoso", student.FullName)

	_, err = svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceListFiltersCohort(t *testing.T) {
	svc := newStudentFixture()

	active := true
	students, pagination, err := svc.List(context.Background(), models.StudentFilter{Cohort: "2024", Active: &active})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "stu-1", students[0].ID)
	assert.Equal(t, 1, pagination.TotalCount)
}
