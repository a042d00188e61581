package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-krs-api/internal/models"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
)

type mockLifecycleCatalog struct {
	subjects  map[string]models.Subject
	statusErr map[string]error
	removed   []string
}

func (m *mockLifecycleCatalog) Get(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		return &s, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
}

func (m *mockLifecycleCatalog) SetStatus(ctx context.Context, id string, status models.SubjectStatus) error {
	if err := m.statusErr[id]; err != nil {
		return err
	}
	s, ok := m.subjects[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	s.Status = status
	m.subjects[id] = s
	return nil
}

func (m *mockLifecycleCatalog) ListByCohortClass(ctx context.Context, cohort, classLabel string) ([]models.Subject, error) {
	var list []models.Subject
	for _, s := range m.subjects {
		if s.Cohort == cohort && s.ClassLabel == classLabel {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *mockLifecycleCatalog) Remove(ctx context.Context, id string) (bool, error) {
	if _, ok := m.subjects[id]; !ok {
		return false, nil
	}
	delete(m.subjects, id)
	m.removed = append(m.removed, id)
	return true, nil
}

type mockLifecycleOfferings struct {
	offerings map[string]models.Offering
	openErr   error
	opened    []OpenOfferingRequest
	reopened  []string
	closed    map[string]int
	removed   map[string]int
}

func (m *mockLifecycleOfferings) ListBySubjectAndTerm(ctx context.Context, subjectID, term string) ([]models.Offering, error) {
	var list []models.Offering
	for _, o := range m.offerings {
		if o.SubjectID == subjectID && o.Term == term {
			list = append(list, o)
		}
	}
	return list, nil
}

func (m *mockLifecycleOfferings) Open(ctx context.Context, req OpenOfferingRequest) (*models.Offering, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.offerings == nil {
		m.offerings = make(map[string]models.Offering)
	}
	id := fmt.Sprintf("off-%d", len(m.offerings)+1)
	offering := models.Offering{ID: id, SubjectID: req.SubjectID, Cohort: req.Cohort, ClassLabel: req.ClassLabel,
		Term: req.Term, Status: models.OfferingStatusOpen, Capacity: req.Capacity}
	m.offerings[id] = offering
	m.opened = append(m.opened, req)
	return &offering, nil
}

func (m *mockLifecycleOfferings) SetStatus(ctx context.Context, id string, status models.OfferingStatus) error {
	o, ok := m.offerings[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "offering not found")
	}
	o.Status = status
	m.offerings[id] = o
	if status == models.OfferingStatusOpen {
		m.reopened = append(m.reopened, id)
	}
	return nil
}

func (m *mockLifecycleOfferings) CloseAllForSubject(ctx context.Context, subjectID string) (int, error) {
	if m.closed == nil {
		m.closed = make(map[string]int)
	}
	count := 0
	for id, o := range m.offerings {
		if o.SubjectID == subjectID && o.Status != models.OfferingStatusClosed {
			o.Status = models.OfferingStatusClosed
			m.offerings[id] = o
			count++
		}
	}
	m.closed[subjectID] = count
	return count, nil
}

func (m *mockLifecycleOfferings) RemoveAllForSubject(ctx context.Context, subjectID string) (int, error) {
	if m.removed == nil {
		m.removed = make(map[string]int)
	}
	count := 0
	for id, o := range m.offerings {
		if o.SubjectID == subjectID {
			delete(m.offerings, id)
			count++
		}
	}
	m.removed[subjectID] = count
	return count, nil
}

type mockLifecycleLedger struct {
	enrollments map[string]models.Enrollment
	withdrawErr map[string]error
	withdrawn   []string
	removed     map[string]int
}

func (m *mockLifecycleLedger) CountBySubject(ctx context.Context, subjectID string) (int, error) {
	count := 0
	for _, e := range m.enrollments {
		if e.SubjectID == subjectID {
			count++
		}
	}
	return count, nil
}

func (m *mockLifecycleLedger) ListBySubject(ctx context.Context, subjectID string) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for _, e := range m.enrollments {
		if e.SubjectID == subjectID {
			list = append(list, e)
		}
	}
	return list, nil
}

func (m *mockLifecycleLedger) Withdraw(ctx context.Context, id string) error {
	if err := m.withdrawErr[id]; err != nil {
		return err
	}
	delete(m.enrollments, id)
	m.withdrawn = append(m.withdrawn, id)
	return nil
}

func (m *mockLifecycleLedger) RemoveAllForSubject(ctx context.Context, subjectID string) (int, error) {
	if m.removed == nil {
		m.removed = make(map[string]int)
	}
	count := 0
	for id, e := range m.enrollments {
		if e.SubjectID == subjectID {
			delete(m.enrollments, id)
			count++
		}
	}
	m.removed[subjectID] = count
	return count, nil
}

type sinkEvent struct {
	topic  string
	target string
}

type mockNotifySink struct {
	events []sinkEvent
}

func (m *mockNotifySink) NotifyStudent(topic, studentID, message string, count int) {
	m.events = append(m.events, sinkEvent{topic: topic, target: studentID})
}

func (m *mockNotifySink) BroadcastCohort(topic, cohort, message string, count int) {
	m.events = append(m.events, sinkEvent{topic: topic, target: cohort})
}

func newLifecycleFixture() (*mockLifecycleCatalog, *mockLifecycleOfferings, *mockLifecycleLedger, *mockNotifySink, *LifecycleService) {
	catalog := &mockLifecycleCatalog{subjects: map[string]models.Subject{
		"sub-1": {ID: "sub-1", Code: "IF101", Name: "Algoritma", Cohort: "2024", ClassLabel: "A", Status: models.SubjectStatusArchived},
	}, statusErr: map[string]error{}}
	offerings := &mockLifecycleOfferings{offerings: map[string]models.Offering{}}
	ledger := &mockLifecycleLedger{enrollments: map[string]models.Enrollment{}, withdrawErr: map[string]error{}}
	sink := &mockNotifySink{}
	svc := NewLifecycleService(catalog, offerings, ledger, sink, nil, "2024/2025-Ganjil", 40, nil)
	return catalog, offerings, ledger, sink, svc
}

func TestLifecycleActivateCreatesOffering(t *testing.T) {
	catalog, offerings, _, sink, svc := newLifecycleFixture()

	result, err := svc.Activate(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.True(t, result.OfferingCreated)
	assert.Empty(t, result.OfferingError)
	assert.Equal(t, models.SubjectStatusActive, catalog.subjects["sub-1"].Status)
	require.Len(t, offerings.opened, 1)
	assert.Equal(t, 40, *offerings.opened[0].Capacity)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "subject_activated", sink.events[0].topic)
}

func TestLifecycleActivateReopensClosedOffering(t *testing.T) {
	_, offerings, _, _, svc := newLifecycleFixture()
	offerings.offerings["off-1"] = models.Offering{ID: "off-1", SubjectID: "sub-1", Term: "2024/2025-Ganjil", Status: models.OfferingStatusClosed}

	result, err := svc.Activate(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.False(t, result.OfferingCreated)
	assert.Equal(t, 1, result.OfferingsReopened)
	assert.Equal(t, models.OfferingStatusOpen, offerings.offerings["off-1"].Status)
}

func TestLifecycleActivateOfferingFailureIsNonFatal(t *testing.T) {
	catalog, offerings, _, _, svc := newLifecycleFixture()
	offerings.openErr = appErrors.Clone(appErrors.ErrInternal, "storage down")

	result, err := svc.Activate(context.Background(), "sub-1")
	require.NoError(t, err, "subject activation must survive offering repair failure")
	assert.NotEmpty(t, result.OfferingError)
	assert.Equal(t, models.SubjectStatusActive, catalog.subjects["sub-1"].Status)
}

func TestLifecycleDeactivateRefusesWithEnrollments(t *testing.T) {
	catalog, _, ledger, _, svc := newLifecycleFixture()
	catalog.subjects["sub-1"] = models.Subject{ID: "sub-1", Status: models.SubjectStatusActive}
	ledger.enrollments["e1"] = models.Enrollment{ID: "e1", StudentID: "stu-1", SubjectID: "sub-1"}
	ledger.enrollments["e2"] = models.Enrollment{ID: "e2", StudentID: "stu-2", SubjectID: "sub-1"}

	err := svc.Deactivate(context.Background(), "sub-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrHasActiveEnrollments.Code, appErr.Code)
	assert.Equal(t, 2, appErr.Details["count"])
	assert.Equal(t, models.SubjectStatusActive, catalog.subjects["sub-1"].Status, "state must stay unchanged")
	assert.Len(t, ledger.enrollments, 2)
}

func TestLifecycleDeactivateArchivesWhenEmpty(t *testing.T) {
	catalog, _, _, _, svc := newLifecycleFixture()
	catalog.subjects["sub-1"] = models.Subject{ID: "sub-1", Status: models.SubjectStatusActive}

	require.NoError(t, svc.Deactivate(context.Background(), "sub-1"))
	assert.Equal(t, models.SubjectStatusArchived, catalog.subjects["sub-1"].Status)
}

func TestLifecycleForceDeactivate(t *testing.T) {
	catalog, offerings, ledger, sink, svc := newLifecycleFixture()
	catalog.subjects["sub-1"] = models.Subject{ID: "sub-1", Code: "IF101", Name: "Algoritma", Status: models.SubjectStatusActive}
	offerings.offerings["off-1"] = models.Offering{ID: "off-1", SubjectID: "sub-1", Status: models.OfferingStatusOpen}
	ledger.enrollments["e1"] = models.Enrollment{ID: "e1", StudentID: "stu-1", SubjectID: "sub-1"}
	ledger.enrollments["e2"] = models.Enrollment{ID: "e2", StudentID: "stu-2", SubjectID: "sub-1"}

	result, err := svc.ForceDeactivate(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.DeletedEnrollments)
	assert.Equal(t, 1, result.ClosedOfferings)
	assert.True(t, result.Archived)
	assert.Empty(t, result.Errors)
	assert.Len(t, sink.events, 2, "each affected student is notified once")
}

func TestLifecycleForceDeactivateCollectsErrors(t *testing.T) {
	catalog, _, ledger, _, svc := newLifecycleFixture()
	catalog.subjects["sub-1"] = models.Subject{ID: "sub-1", Status: models.SubjectStatusActive}
	ledger.enrollments["e1"] = models.Enrollment{ID: "e1", StudentID: "stu-1", SubjectID: "sub-1"}
	ledger.enrollments["e2"] = models.Enrollment{ID: "e2", StudentID: "stu-2", SubjectID: "sub-1"}
	ledger.withdrawErr["e1"] = appErrors.Clone(appErrors.ErrInternal, "storage down")

	result, err := svc.ForceDeactivate(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeletedEnrollments)
	assert.Len(t, result.Errors, 1)
	assert.True(t, result.Archived, "archive still happens after partial withdraw failure")
}

func TestLifecycleForceDelete(t *testing.T) {
	catalog, offerings, ledger, _, svc := newLifecycleFixture()
	catalog.subjects["sub-2"] = models.Subject{ID: "sub-2"}
	offerings.offerings["off-1"] = models.Offering{ID: "off-1", SubjectID: "sub-1"}
	offerings.offerings["off-2"] = models.Offering{ID: "off-2", SubjectID: "sub-2"}
	ledger.enrollments["e1"] = models.Enrollment{ID: "e1", SubjectID: "sub-1"}

	result, err := svc.ForceDelete(context.Background(), []string{"sub-1", "sub-2", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.DeletedSubjects)
	assert.Equal(t, 2, result.DeletedOfferings)
	assert.Equal(t, 1, result.DeletedEnrollments)
	assert.Empty(t, catalog.subjects)
}

func TestLifecycleForceDeleteRequiresIDs(t *testing.T) {
	_, _, _, _, svc := newLifecycleFixture()

	_, err := svc.ForceDelete(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLifecycleBulkActivateCohortClass(t *testing.T) {
	catalog, offerings, _, sink, svc := newLifecycleFixture()
	catalog.subjects["sub-2"] = models.Subject{ID: "sub-2", Cohort: "2024", ClassLabel: "A", Status: models.SubjectStatusArchived}
	catalog.subjects["sub-3"] = models.Subject{ID: "sub-3", Cohort: "2024", ClassLabel: "B", Status: models.SubjectStatusArchived}
	catalog.statusErr["sub-2"] = appErrors.Clone(appErrors.ErrInternal, "storage down")

	result, err := svc.BulkActivateCohortClass(context.Background(), "2024", "A")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Activated)
	assert.Equal(t, 1, result.OfferingsCreated)
	assert.Len(t, result.Errors, 1)
	require.Len(t, offerings.opened, 1)
	assert.Equal(t, "sub-1", offerings.opened[0].SubjectID)

	found := false
	for _, ev := range sink.events {
		if ev.topic == "cohort_activated" {
			found = true
		}
	}
	assert.True(t, found)
}
