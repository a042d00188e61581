package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-krs-api/internal/models"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
	"github.com/noah-isme/uni-krs-api/pkg/export"
)

type rosterReader interface {
	ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error)
}

type offeringDetailReader interface {
	Get(ctx context.Context, id string) (*models.OfferingDetail, error)
}

// RosterExport is a rendered roster document.
type RosterExport struct {
	FileName    string
	ContentType string
	Content     []byte
}

// RosterExportService renders offering rosters as CSV or PDF downloads.
type RosterExportService struct {
	roster    rosterReader
	offerings offeringDetailReader
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
}

// NewRosterExportService constructs the service.
func NewRosterExportService(roster rosterReader, offerings offeringDetailReader, logger *zap.Logger) *RosterExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterExportService{
		roster:    roster,
		offerings: offerings,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
	}
}

// Export renders the roster of one offering in the requested format.
func (s *RosterExportService) Export(ctx context.Context, offeringID, format string) (*RosterExport, error) {
	offering, err := s.offerings.Get(ctx, offeringID)
	if err != nil {
		return nil, err
	}

	records, err := s.roster.ListByOffering(ctx, offeringID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"NIM", "Name", "Subject", "Code", "Credits", "Enrolled At"},
	}
	for _, record := range records {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"NIM":         record.StudentNIM,
			"Name":        record.StudentName,
			"Subject":     record.SubjectName,
			"Code":        record.SubjectCode,
			"Credits":     fmt.Sprintf("%d", record.SubjectCredits),
			"Enrolled At": record.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	title := fmt.Sprintf("%s %s - %s (%s)", offering.SubjectCode, offering.SubjectName, offering.ClassLabel, offering.Term)
	base := fmt.Sprintf("roster-%s-%s", strings.ToLower(offering.SubjectCode), strings.ToLower(offering.ClassLabel))

	switch strings.ToLower(format) {
	case "", "csv":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &RosterExport{FileName: base + ".csv", ContentType: "text/csv", Content: content}, nil
	case "pdf":
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &RosterExport{FileName: base + ".pdf", ContentType: "application/pdf", Content: content}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
