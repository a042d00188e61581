package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-krs-api/internal/models"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
)

type mockRosterReader struct {
	records []models.EnrollmentDetail
}

func (m *mockRosterReader) ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error) {
	return m.records, nil
}

type mockOfferingDetail struct {
	detail *models.OfferingDetail
}

func (m *mockOfferingDetail) Get(ctx context.Context, id string) (*models.OfferingDetail, error) {
	if m.detail == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "offering not found")
	}
	return m.detail, nil
}

func newExportFixture() *RosterExportService {
	roster := &mockRosterReader{records: []models.EnrollmentDetail{
		{
			Enrollment:     models.Enrollment{ID: "e1", StudentID: "stu-1", CreatedAt: time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)},
			StudentName:    "Budi Santoso",
			StudentNIM:     "2101234",
			SubjectCode:    "IF101",
			SubjectName:    "Algoritma",
			SubjectCredits: 3,
		},
	}}
	offerings := &mockOfferingDetail{detail: &models.OfferingDetail{
		Offering:    models.Offering{ID: "off-1", ClassLabel: "A", Term: "2024/2025-Ganjil"},
		SubjectCode: "IF101",
		SubjectName: "Algoritma",
	}}
	return NewRosterExportService(roster, offerings, nil)
}

func TestRosterExportCSV(t *testing.T) {
	svc := newExportFixture()

	result, err := svc.Export(context.Background(), "off-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "roster-if101-a.csv", result.FileName)
	assert.Equal(t, "text/csv", result.ContentType)

	body := string(result.Content)
	assert.True(t, strings.Contains(body, "Budi Santoso"))
	assert.True(t, strings.Contains(body, "2101234"))
}

func TestRosterExportPDF(t *testing.T) {
	svc := newExportFixture()

	result, err := svc.Export(context.Background(), "off-1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "roster-if101-a.pdf", result.FileName)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.NotEmpty(t, result.Content)
}

func TestRosterExportUnsupportedFormat(t *testing.T) {
	svc := newExportFixture()

	_, err := svc.Export(context.Background(), "off-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRosterExportMissingOffering(t *testing.T) {
	svc := NewRosterExportService(&mockRosterReader{}, &mockOfferingDetail{}, nil)

	_, err := svc.Export(context.Background(), "ghost", "csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
