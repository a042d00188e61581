package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-krs-api/internal/models"
	"github.com/noah-isme/uni-krs-api/internal/repository"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
)

type offeringRepository interface {
	List(ctx context.Context, filter models.OfferingFilter) ([]models.OfferingDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Offering, error)
	FindDetailByID(ctx context.Context, id string) (*models.OfferingDetail, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.Offering, error)
	ListBySubjectAndTerm(ctx context.Context, subjectID, term string) ([]models.Offering, error)
	Create(ctx context.Context, offering *models.Offering) error
	ExistsFor(ctx context.Context, subjectID, cohort, classLabel, term string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.OfferingStatus) (bool, error)
	UpdateStatusBySubject(ctx context.Context, subjectID string, status models.OfferingStatus) (int, error)
	DeleteBySubject(ctx context.Context, subjectID string) (int, error)
}

type enrollmentCounter interface {
	CountByOffering(ctx context.Context, offeringID string) (int, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// OpenOfferingRequest describes offering creation.
type OpenOfferingRequest struct {
	SubjectID  string  `json:"subject_id" validate:"required"`
	Cohort     string  `json:"cohort" validate:"required"`
	ClassLabel string  `json:"class_label" validate:"required"`
	Term       string  `json:"term" validate:"required"`
	Capacity   *int    `json:"capacity" validate:"omitempty,gt=0"`
	Day        *string `json:"day"`
	StartTime  *string `json:"start_time"`
	EndTime    *string `json:"end_time"`
	Room       *string `json:"room"`
}

// OfferingService owns per-cohort, per-class, per-term sections of subjects.
// Closing an offering here never drops enrollments; that policy belongs to
// LifecycleService.
type OfferingService struct {
	repo        offeringRepository
	enrollments enrollmentCounter
	subjects    subjectReader
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewOfferingService constructs OfferingService.
func NewOfferingService(repo offeringRepository, enrollments enrollmentCounter, subjects subjectReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *OfferingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfferingService{repo: repo, enrollments: enrollments, subjects: subjects, cache: cache, validator: validate, logger: logger}
}

// List returns offerings with pagination metadata.
func (s *OfferingService) List(ctx context.Context, filter models.OfferingFilter) ([]models.OfferingDetail, *models.Pagination, error) {
	offerings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list offerings")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return offerings, pagination, nil
}

// Get returns an offering joined with its parent subject, via cache when
// enabled.
func (s *OfferingService) Get(ctx context.Context, id string) (*models.OfferingDetail, error) {
	cacheKey := offeringCacheKey(id)
	if s.cache.Enabled() {
		var cached models.OfferingDetail
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, nil
		}
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "offering not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load offering")
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, detail, 0); err != nil {
			s.logger.Warn("offering cache set failed", zap.String("offering_id", id), zap.Error(err))
		}
	}
	return detail, nil
}

// ListBySubject returns every offering of a subject.
func (s *OfferingService) ListBySubject(ctx context.Context, subjectID string) ([]models.Offering, error) {
	offerings, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subject offerings")
	}
	return offerings, nil
}

// ListBySubjectAndTerm returns the subject's offerings for one term.
func (s *OfferingService) ListBySubjectAndTerm(ctx context.Context, subjectID, term string) ([]models.Offering, error) {
	offerings, err := s.repo.ListBySubjectAndTerm(ctx, subjectID, term)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subject offerings")
	}
	return offerings, nil
}

// Open creates a new open offering for a subject section.
func (s *OfferingService) Open(ctx context.Context, req OpenOfferingRequest) (*models.Offering, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid offering payload")
	}

	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	exists, err := s.repo.ExistsFor(ctx, req.SubjectID, req.Cohort, req.ClassLabel, req.Term)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check offering")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateOffering, "")
	}

	offering := &models.Offering{
		SubjectID:  req.SubjectID,
		Cohort:     req.Cohort,
		ClassLabel: req.ClassLabel,
		Term:       req.Term,
		Status:     models.OfferingStatusOpen,
		Capacity:   req.Capacity,
		Day:        req.Day,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Room:       req.Room,
	}
	if err := s.repo.Create(ctx, offering); err != nil {
		if errors.Is(err, repository.ErrDuplicateOffering) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateOffering, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create offering")
	}
	return offering, nil
}

// SetStatus updates the open/closed flag of one offering. Enrollments are
// untouched regardless of direction.
func (s *OfferingService) SetStatus(ctx context.Context, id string, status models.OfferingStatus) error {
	if !status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid offering status")
	}
	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update offering status")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrNotFound, "offering not found")
	}
	s.invalidate(ctx, id)
	return nil
}

// Close marks the offering closed. Convenience alias of SetStatus.
func (s *OfferingService) Close(ctx context.Context, id string) error {
	return s.SetStatus(ctx, id, models.OfferingStatusClosed)
}

// EnrollmentCount returns the current seat usage of an offering.
func (s *OfferingService) EnrollmentCount(ctx context.Context, id string) (int, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "offering not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load offering")
	}
	count, err := s.enrollments.CountByOffering(ctx, id)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return count, nil
}

// IsFull reports whether the offering has reached its capacity. Advisory
// only: the admission transaction re-checks under lock.
func (s *OfferingService) IsFull(ctx context.Context, id string) (bool, error) {
	offering, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, appErrors.Clone(appErrors.ErrNotFound, "offering not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load offering")
	}
	if offering.Capacity == nil {
		return false, nil
	}
	count, err := s.enrollments.CountByOffering(ctx, id)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return count >= *offering.Capacity, nil
}

// CloseAllForSubject closes every offering of the subject, returning how
// many changed. Reserved for lifecycle cascades.
func (s *OfferingService) CloseAllForSubject(ctx context.Context, subjectID string) (int, error) {
	count, err := s.repo.UpdateStatusBySubject(ctx, subjectID, models.OfferingStatusClosed)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close subject offerings")
	}
	s.invalidateSubject(ctx, subjectID)
	return count, nil
}

// RemoveAllForSubject hard-deletes every offering of the subject, returning
// the count. Reserved for the forced-delete cascade.
func (s *OfferingService) RemoveAllForSubject(ctx context.Context, subjectID string) (int, error) {
	count, err := s.repo.DeleteBySubject(ctx, subjectID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject offerings")
	}
	s.invalidateSubject(ctx, subjectID)
	return count, nil
}

func (s *OfferingService) invalidateSubject(ctx context.Context, subjectID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.InvalidatePattern(ctx, "offering:detail:*"); err != nil {
		s.logger.Warn("offering cache invalidation failed", zap.String("subject_id", subjectID), zap.Error(err))
	}
}

func (s *OfferingService) invalidate(ctx context.Context, id string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Delete(ctx, offeringCacheKey(id)); err != nil {
		s.logger.Warn("offering cache invalidation failed", zap.String("offering_id", id), zap.Error(err))
	}
}

func offeringCacheKey(id string) string {
	return fmt.Sprintf("offering:detail:%s", id)
}
