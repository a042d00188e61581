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

type mockOfferingRepo struct {
	offerings map[string]models.Offering
	existing  map[string]bool
	created   *models.Offering
	statuses  map[string]models.OfferingStatus
	closedFor map[string]int
	deleteFor map[string]int
}

func (m *mockOfferingRepo) List(ctx context.Context, filter models.OfferingFilter) ([]models.OfferingDetail, int, error) {
	return nil, 0, nil
}

func (m *mockOfferingRepo) FindByID(ctx context.Context, id string) (*models.Offering, error) {
	if o, ok := m.offerings[id]; ok {
		return &o, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOfferingRepo) FindDetailByID(ctx context.Context, id string) (*models.OfferingDetail, error) {
	if o, ok := m.offerings[id]; ok {
		return &models.OfferingDetail{Offering: o}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOfferingRepo) ListBySubject(ctx context.Context, subjectID string) ([]models.Offering, error) {
	var list []models.Offering
	for _, o := range m.offerings {
		if o.SubjectID == subjectID {
			list = append(list, o)
		}
	}
	return list, nil
}

func (m *mockOfferingRepo) ListBySubjectAndTerm(ctx context.Context, subjectID, term string) ([]models.Offering, error) {
	var list []models.Offering
	for _, o := range m.offerings {
		if o.SubjectID == subjectID && o.Term == term {
			list = append(list, o)
		}
	}
	return list, nil
}

func (m *mockOfferingRepo) Create(ctx context.Context, offering *models.Offering) error {
	if m.offerings == nil {
		m.offerings = make(map[string]models.Offering)
	}
	if offering.ID == "" {
		offering.ID = "new-offering"
	}
	m.offerings[offering.ID] = *offering
	m.created = offering
	return nil
}

func (m *mockOfferingRepo) ExistsFor(ctx context.Context, subjectID, cohort, classLabel, term string) (bool, error) {
	return m.existing[subjectID+cohort+classLabel+term], nil
}

func (m *mockOfferingRepo) UpdateStatus(ctx context.Context, id string, status models.OfferingStatus) (bool, error) {
	if _, ok := m.offerings[id]; !ok {
		return false, nil
	}
	if m.statuses == nil {
		m.statuses = make(map[string]models.OfferingStatus)
	}
	m.statuses[id] = status
	o := m.offerings[id]
	o.Status = status
	m.offerings[id] = o
	return true, nil
}

func (m *mockOfferingRepo) UpdateStatusBySubject(ctx context.Context, subjectID string, status models.OfferingStatus) (int, error) {
	if m.closedFor == nil {
		m.closedFor = make(map[string]int)
	}
	count := 0
	for id, o := range m.offerings {
		if o.SubjectID == subjectID && o.Status != status {
			o.Status = status
			m.offerings[id] = o
			count++
		}
	}
	m.closedFor[subjectID] = count
	return count, nil
}

func (m *mockOfferingRepo) DeleteBySubject(ctx context.Context, subjectID string) (int, error) {
	if m.deleteFor == nil {
		m.deleteFor = make(map[string]int)
	}
	count := 0
	for id, o := range m.offerings {
		if o.SubjectID == subjectID {
			delete(m.offerings, id)
			count++
		}
	}
	m.deleteFor[subjectID] = count
	return count, nil
}

type mockSeatCounter struct {
	counts map[string]int
}

func (m *mockSeatCounter) CountByOffering(ctx context.Context, offeringID string) (int, error) {
	return m.counts[offeringID], nil
}

type mockSubjectLookup struct {
	subjects map[string]models.Subject
}

func (m *mockSubjectLookup) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func TestOfferingServiceOpen(t *testing.T) {
	repo := &mockOfferingRepo{}
	subjects := &mockSubjectLookup{subjects: map[string]models.Subject{"sub-1": {ID: "sub-1"}}}
	svc := NewOfferingService(repo, &mockSeatCounter{}, subjects, nil, nil, nil)

	capacity := 30
	offering, err := svc.Open(context.Background(), OpenOfferingRequest{
		SubjectID: "sub-1", Cohort: "2024", ClassLabel: "A", Term: "2024/2025-Ganjil", Capacity: &capacity,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OfferingStatusOpen, offering.Status)
	assert.NotNil(t, repo.created)
}

func TestOfferingServiceOpenDuplicate(t *testing.T) {
	repo := &mockOfferingRepo{existing: map[string]bool{"sub-12024A2024/2025-Ganjil": true}}
	subjects := &mockSubjectLookup{subjects: map[string]models.Subject{"sub-1": {ID: "sub-1"}}}
	svc := NewOfferingService(repo, &mockSeatCounter{}, subjects, nil, nil, nil)

	_, err := svc.Open(context.Background(), OpenOfferingRequest{
		SubjectID: "sub-1", Cohort: "2024", ClassLabel: "A", Term: "2024/2025-Ganjil",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateOffering.Code, appErrors.FromError(err).Code)
}

func TestOfferingServiceOpenSubjectMissing(t *testing.T) {
	svc := NewOfferingService(&mockOfferingRepo{}, &mockSeatCounter{}, &mockSubjectLookup{}, nil, nil, nil)

	_, err := svc.Open(context.Background(), OpenOfferingRequest{
		SubjectID: "missing", Cohort: "2024", ClassLabel: "A", Term: "2024/2025-Ganjil",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestOfferingServiceIsFull(t *testing.T) {
	capacity := 2
	repo := &mockOfferingRepo{offerings: map[string]models.Offering{
		"off-1": {ID: "off-1", Capacity: &capacity},
		"off-2": {ID: "off-2"},
	}}
	counter := &mockSeatCounter{counts: map[string]int{"off-1": 2}}
	svc := NewOfferingService(repo, counter, &mockSubjectLookup{}, nil, nil, nil)

	full, err := svc.IsFull(context.Background(), "off-1")
	require.NoError(t, err)
	assert.True(t, full)

	full, err = svc.IsFull(context.Background(), "off-2")
	require.NoError(t, err)
	assert.False(t, full, "offering without capacity never fills")
}

func TestOfferingServiceSetStatusKeepsEnrollments(t *testing.T) {
	repo := &mockOfferingRepo{offerings: map[string]models.Offering{
		"off-1": {ID: "off-1", Status: models.OfferingStatusOpen},
	}}
	svc := NewOfferingService(repo, &mockSeatCounter{}, &mockSubjectLookup{}, nil, nil, nil)

	require.NoError(t, svc.Close(context.Background(), "off-1"))
	assert.Equal(t, models.OfferingStatusClosed, repo.statuses["off-1"])

	err := svc.SetStatus(context.Background(), "missing", models.OfferingStatusOpen)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestOfferingServiceCloseAllForSubject(t *testing.T) {
	repo := &mockOfferingRepo{offerings: map[string]models.Offering{
		"off-1": {ID: "off-1", SubjectID: "sub-1", Status: models.OfferingStatusOpen},
		"off-2": {ID: "off-2", SubjectID: "sub-1", Status: models.OfferingStatusClosed},
		"off-3": {ID: "off-3", SubjectID: "sub-2", Status: models.OfferingStatusOpen},
	}}
	svc := NewOfferingService(repo, &mockSeatCounter{}, &mockSubjectLookup{}, nil, nil, nil)

	closed, err := svc.CloseAllForSubject(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 1, closed, "already-closed offerings are not counted")
}
