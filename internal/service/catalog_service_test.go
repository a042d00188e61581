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

type mockSubjectRepo struct {
	subjects map[string]models.Subject
	codes    map[string]bool
	created  *models.Subject
	updated  *models.Subject
	statuses map[string]models.SubjectStatus
	deleted  []string
}

func (m *mockSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	var list []models.Subject
	for _, s := range m.subjects {
		list = append(list, s)
	}
	return list, len(list), nil
}

func (m *mockSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubjectRepo) ListByCohortClass(ctx context.Context, cohort, classLabel string) ([]models.Subject, error) {
	var list []models.Subject
	for _, s := range m.subjects {
		if s.Cohort == cohort && s.ClassLabel == classLabel {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *mockSubjectRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.Subject, error) {
	return nil, nil
}

func (m *mockSubjectRepo) ExistsByCode(ctx context.Context, code, cohort, excludeID string) (bool, error) {
	return m.codes[code+cohort], nil
}

func (m *mockSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	if m.subjects == nil {
		m.subjects = make(map[string]models.Subject)
	}
	if subject.ID == "" {
		subject.ID = "new-subject"
	}
	m.subjects[subject.ID] = *subject
	m.created = subject
	return nil
}

func (m *mockSubjectRepo) Update(ctx context.Context, subject *models.Subject) error {
	m.subjects[subject.ID] = *subject
	m.updated = subject
	return nil
}

func (m *mockSubjectRepo) UpdateStatus(ctx context.Context, id string, status models.SubjectStatus) (bool, error) {
	if _, ok := m.subjects[id]; !ok {
		return false, nil
	}
	if m.statuses == nil {
		m.statuses = make(map[string]models.SubjectStatus)
	}
	m.statuses[id] = status
	s := m.subjects[id]
	s.Status = status
	m.subjects[id] = s
	return true, nil
}

func (m *mockSubjectRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := m.subjects[id]; !ok {
		return false, nil
	}
	delete(m.subjects, id)
	m.deleted = append(m.deleted, id)
	return true, nil
}

func TestCatalogServiceUpsertCreate(t *testing.T) {
	repo := &mockSubjectRepo{}
	svc := NewCatalogService(repo, nil, nil)

	subject, err := svc.Upsert(context.Background(), UpsertSubjectRequest{
		Code: " if101 ", Name: " Algoritma ", Credits: 3, Cohort: "2024", ClassLabel: "A",
	})
	require.NoError(t, err)
	assert.Equal(t, "IF101", subject.Code)
	assert.Equal(t, "Algoritma", subject.Name)
	assert.Equal(t, models.SubjectStatusArchived, subject.Status)
	assert.NotNil(t, repo.created)
}

func TestCatalogServiceUpsertDuplicateCode(t *testing.T) {
	repo := &mockSubjectRepo{codes: map[string]bool{"IF1012024": true}}
	svc := NewCatalogService(repo, nil, nil)

	_, err := svc.Upsert(context.Background(), UpsertSubjectRequest{
		Code: "IF101", Name: "Algoritma", Credits: 3, Cohort: "2024", ClassLabel: "A",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCatalogServiceUpsertUpdateMissing(t *testing.T) {
	repo := &mockSubjectRepo{}
	svc := NewCatalogService(repo, nil, nil)

	_, err := svc.Upsert(context.Background(), UpsertSubjectRequest{
		ID: "missing", Code: "IF101", Name: "Algoritma", Credits: 3, Cohort: "2024", ClassLabel: "A",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCatalogServiceSetStatus(t *testing.T) {
	repo := &mockSubjectRepo{subjects: map[string]models.Subject{
		"sub-1": {ID: "sub-1", Status: models.SubjectStatusArchived},
	}}
	svc := NewCatalogService(repo, nil, nil)

	require.NoError(t, svc.SetStatus(context.Background(), "sub-1", models.SubjectStatusActive))
	assert.Equal(t, models.SubjectStatusActive, repo.statuses["sub-1"])

	err := svc.SetStatus(context.Background(), "sub-1", models.SubjectStatus("BOGUS"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	err = svc.SetStatus(context.Background(), "missing", models.SubjectStatusActive)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCatalogServiceRemove(t *testing.T) {
	repo := &mockSubjectRepo{subjects: map[string]models.Subject{"sub-1": {ID: "sub-1"}}}
	svc := NewCatalogService(repo, nil, nil)

	deleted, err := svc.Remove(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.Remove(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}
