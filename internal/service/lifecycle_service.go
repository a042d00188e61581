package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-krs-api/internal/models"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
)

type lifecycleCatalog interface {
	Get(ctx context.Context, id string) (*models.Subject, error)
	SetStatus(ctx context.Context, id string, status models.SubjectStatus) error
	ListByCohortClass(ctx context.Context, cohort, classLabel string) ([]models.Subject, error)
	Remove(ctx context.Context, id string) (bool, error)
}

type lifecycleOfferings interface {
	ListBySubjectAndTerm(ctx context.Context, subjectID, term string) ([]models.Offering, error)
	Open(ctx context.Context, req OpenOfferingRequest) (*models.Offering, error)
	SetStatus(ctx context.Context, id string, status models.OfferingStatus) error
	CloseAllForSubject(ctx context.Context, subjectID string) (int, error)
	RemoveAllForSubject(ctx context.Context, subjectID string) (int, error)
}

type lifecycleLedger interface {
	CountBySubject(ctx context.Context, subjectID string) (int, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.Enrollment, error)
	Withdraw(ctx context.Context, id string) error
	RemoveAllForSubject(ctx context.Context, subjectID string) (int, error)
}

type notificationSink interface {
	NotifyStudent(topic, studentID, message string, count int)
	BroadcastCohort(topic, cohort, message string, count int)
}

// ActivationResult reports what Activate changed. OfferingError is set when
// the non-fatal offering step failed; the subject stays active and the
// caller should retry via BulkActivateCohortClass.
type ActivationResult struct {
	SubjectID         string `json:"subject_id"`
	OfferingCreated   bool   `json:"offering_created"`
	OfferingsReopened int    `json:"offerings_reopened"`
	OfferingError     string `json:"offering_error,omitempty"`
}

// CascadeResult reports the per-entity effect of a forced deactivation.
// Steps are best-effort: completed withdrawals are not rolled back when a
// later one fails, and errors list every skipped-by-failure step.
type CascadeResult struct {
	SubjectID          string   `json:"subject_id"`
	DeletedEnrollments int      `json:"deleted_enrollments"`
	ClosedOfferings    int      `json:"closed_offerings"`
	Archived           bool     `json:"archived"`
	Errors             []string `json:"errors,omitempty"`
}

// DeleteResult aggregates the effect of a forced delete over many subjects.
type DeleteResult struct {
	DeletedSubjects    int      `json:"deleted_subjects"`
	DeletedOfferings   int      `json:"deleted_offerings"`
	DeletedEnrollments int      `json:"deleted_enrollments"`
	Errors             []string `json:"errors,omitempty"`
}

// BulkActivationResult aggregates a cohort/class activation sweep.
type BulkActivationResult struct {
	Cohort           string   `json:"cohort"`
	ClassLabel       string   `json:"class_label"`
	Activated        int      `json:"activated"`
	OfferingsCreated int      `json:"offerings_created"`
	Errors           []string `json:"errors,omitempty"`
}

// LifecycleService coordinates every multi-entity operation. It is the only
// component that composes calls across the catalog, offering and enrollment
// boundaries.
type LifecycleService struct {
	catalog         lifecycleCatalog
	offerings       lifecycleOfferings
	ledger          lifecycleLedger
	notifications   notificationSink
	metrics         *MetricsService
	activeTerm      string
	defaultCapacity int
	logger          *zap.Logger
}

// NewLifecycleService constructs the orchestrator.
func NewLifecycleService(catalog lifecycleCatalog, offerings lifecycleOfferings, ledger lifecycleLedger, notifications notificationSink, metrics *MetricsService, activeTerm string, defaultCapacity int, logger *zap.Logger) *LifecycleService {
	if defaultCapacity <= 0 {
		defaultCapacity = 40
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		catalog:         catalog,
		offerings:       offerings,
		ledger:          ledger,
		notifications:   notifications,
		metrics:         metrics,
		activeTerm:      activeTerm,
		defaultCapacity: defaultCapacity,
		logger:          logger,
	}
}

// Activate marks the subject active and ensures it has an open offering for
// the active term. The status change is the fatal step; offering repair is
// non-fatal because a subject without an offering is recoverable while an
// inactive subject blocks every dependent read.
func (s *LifecycleService) Activate(ctx context.Context, subjectID string) (*ActivationResult, error) {
	subject, err := s.catalog.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	if err := s.catalog.SetStatus(ctx, subjectID, models.SubjectStatusActive); err != nil {
		return nil, err
	}

	result := &ActivationResult{SubjectID: subjectID}
	s.ensureOffering(ctx, subject, result)

	if s.notifications != nil {
		s.notifications.BroadcastCohort("subject_activated", subject.Cohort,
			fmt.Sprintf("Mata kuliah %s (%s) tersedia untuk KRS", subject.Name, subject.Code), 1)
	}

	return result, nil
}

// ensureOffering opens a default offering when none exists for the active
// term and reopens closed ones. Failures land in result.OfferingError.
func (s *LifecycleService) ensureOffering(ctx context.Context, subject *models.Subject, result *ActivationResult) {
	offerings, err := s.offerings.ListBySubjectAndTerm(ctx, subject.ID, s.activeTerm)
	if err != nil {
		result.OfferingError = err.Error()
		s.logger.Warn("offering lookup failed during activation", zap.String("subject_id", subject.ID), zap.Error(err))
		return
	}

	if len(offerings) == 0 {
		capacity := s.defaultCapacity
		_, err := s.offerings.Open(ctx, OpenOfferingRequest{
			SubjectID:  subject.ID,
			Cohort:     subject.Cohort,
			ClassLabel: subject.ClassLabel,
			Term:       s.activeTerm,
			Capacity:   &capacity,
		})
		if err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) && appErr.Code == appErrors.ErrDuplicateOffering.Code {
				return
			}
			result.OfferingError = err.Error()
			s.logger.Warn("default offering creation failed", zap.String("subject_id", subject.ID), zap.Error(err))
			return
		}
		result.OfferingCreated = true
		return
	}

	for _, offering := range offerings {
		if offering.Status != models.OfferingStatusClosed {
			continue
		}
		if err := s.offerings.SetStatus(ctx, offering.ID, models.OfferingStatusOpen); err != nil {
			result.OfferingError = err.Error()
			s.logger.Warn("offering reopen failed", zap.String("offering_id", offering.ID), zap.Error(err))
			continue
		}
		result.OfferingsReopened++
	}
}

// Deactivate archives the subject only when nothing depends on it. When
// enrollments exist it refuses with HAS_ACTIVE_ENROLLMENTS so the caller can
// decide to force the cascade; all state is left unchanged.
func (s *LifecycleService) Deactivate(ctx context.Context, subjectID string) error {
	if _, err := s.catalog.Get(ctx, subjectID); err != nil {
		return err
	}

	count, err := s.ledger.CountBySubject(ctx, subjectID)
	if err != nil {
		return err
	}
	if count > 0 {
		return appErrors.WithDetails(appErrors.ErrHasActiveEnrollments, map[string]interface{}{"count": count})
	}

	return s.catalog.SetStatus(ctx, subjectID, models.SubjectStatusArchived)
}

// ForceDeactivate withdraws every enrollment of the subject, closes its
// offerings and archives it. Completed steps are never rolled back; the
// result reports exactly what changed.
func (s *LifecycleService) ForceDeactivate(ctx context.Context, subjectID string) (*CascadeResult, error) {
	subject, err := s.catalog.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	result := &CascadeResult{SubjectID: subjectID}

	enrollments, err := s.ledger.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	affected := make(map[string]struct{}, len(enrollments))
	for _, enrollment := range enrollments {
		if err := s.ledger.Withdraw(ctx, enrollment.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("withdraw %s: %v", enrollment.ID, err))
			continue
		}
		result.DeletedEnrollments++
		affected[enrollment.StudentID] = struct{}{}
	}

	closed, err := s.offerings.CloseAllForSubject(ctx, subjectID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("close offerings: %v", err))
	}
	result.ClosedOfferings = closed

	if err := s.catalog.SetStatus(ctx, subjectID, models.SubjectStatusArchived); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("archive subject: %v", err))
	} else {
		result.Archived = true
	}

	if s.notifications != nil {
		for studentID := range affected {
			s.notifications.NotifyStudent("subject_removed", studentID,
				fmt.Sprintf("Mata kuliah %s (%s) dibatalkan dan dihapus dari KRS Anda", subject.Name, subject.Code), 1)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordCascade("enrollment", result.DeletedEnrollments)
		s.metrics.RecordCascade("offering_closed", result.ClosedOfferings)
	}

	return result, nil
}

// ForceDelete hard-deletes the subjects with everything referencing them.
// This is the only path that removes a subject row; callers must have
// confirmed the destruction explicitly.
func (s *LifecycleService) ForceDelete(ctx context.Context, subjectIDs []string) (*DeleteResult, error) {
	if len(subjectIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one subject id is required")
	}

	result := &DeleteResult{}
	for _, subjectID := range subjectIDs {
		deletedEnrollments, err := s.ledger.RemoveAllForSubject(ctx, subjectID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("enrollments of %s: %v", subjectID, err))
			continue
		}
		result.DeletedEnrollments += deletedEnrollments

		deletedOfferings, err := s.offerings.RemoveAllForSubject(ctx, subjectID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("offerings of %s: %v", subjectID, err))
			continue
		}
		result.DeletedOfferings += deletedOfferings

		deleted, err := s.catalog.Remove(ctx, subjectID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("subject %s: %v", subjectID, err))
			continue
		}
		if deleted {
			result.DeletedSubjects++
		}
	}

	if s.metrics != nil {
		s.metrics.RecordCascade("enrollment", result.DeletedEnrollments)
		s.metrics.RecordCascade("offering", result.DeletedOfferings)
		s.metrics.RecordCascade("subject", result.DeletedSubjects)
	}

	return result, nil
}

// BulkActivateCohortClass activates every subject of a cohort and class
// section, self-healing subjects that are active but lost their offering.
// Per-subject failures are collected and do not stop the sweep.
func (s *LifecycleService) BulkActivateCohortClass(ctx context.Context, cohort, classLabel string) (*BulkActivationResult, error) {
	if cohort == "" || classLabel == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cohort and class are required")
	}

	subjects, err := s.catalog.ListByCohortClass(ctx, cohort, classLabel)
	if err != nil {
		return nil, err
	}

	result := &BulkActivationResult{Cohort: cohort, ClassLabel: classLabel}
	for i := range subjects {
		subject := subjects[i]
		if err := s.catalog.SetStatus(ctx, subject.ID, models.SubjectStatusActive); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("activate %s: %v", subject.ID, err))
			continue
		}
		result.Activated++

		activation := &ActivationResult{SubjectID: subject.ID}
		s.ensureOffering(ctx, &subject, activation)
		if activation.OfferingCreated {
			result.OfferingsCreated++
		}
		if activation.OfferingError != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("offering for %s: %s", subject.ID, activation.OfferingError))
		}
	}

	if s.notifications != nil && result.Activated > 0 {
		s.notifications.BroadcastCohort("cohort_activated", cohort,
			fmt.Sprintf("KRS kelas %s dibuka: %d mata kuliah aktif", classLabel, result.Activated), result.Activated)
	}

	return result, nil
}
