package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-krs-api/internal/models"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ListByCohortClass(ctx context.Context, cohort, classLabel string) ([]models.Subject, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Subject, error)
	ExistsByCode(ctx context.Context, code, cohort, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	UpdateStatus(ctx context.Context, id string, status models.SubjectStatus) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// UpsertSubjectRequest captures fields for creating or editing a subject.
// An empty ID creates, a populated ID edits.
type UpsertSubjectRequest struct {
	ID         string   `json:"id"`
	Code       string   `json:"code" validate:"required"`
	Name       string   `json:"name" validate:"required"`
	Credits    int      `json:"credits" validate:"required,gt=0"`
	Cohort     string   `json:"cohort" validate:"required"`
	ClassLabel string   `json:"class_label" validate:"required"`
	Program    string   `json:"program"`
	Semester   int      `json:"semester" validate:"gte=0"`
	TeacherIDs []string `json:"teacher_ids"`
}

// CatalogService owns subject definitions and their lifecycle flag. Status
// changes here have no side effects on offerings or enrollments; cascade
// semantics live in LifecycleService.
type CatalogService struct {
	repo      subjectRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(repo subjectRepository, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated subjects.
func (s *CatalogService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
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
	return subjects, pagination, nil
}

// Get returns subject by identifier.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// ListByCohortClass returns every subject of one cohort and class section.
func (s *CatalogService) ListByCohortClass(ctx context.Context, cohort, classLabel string) ([]models.Subject, error) {
	if cohort == "" || classLabel == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cohort and class are required")
	}
	subjects, err := s.repo.ListByCohortClass(ctx, cohort, classLabel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cohort subjects")
	}
	return subjects, nil
}

// ListByTeacher returns subjects taught by an instructor.
func (s *CatalogService) ListByTeacher(ctx context.Context, teacherID string) ([]models.Subject, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}
	subjects, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher subjects")
	}
	return subjects, nil
}

// Upsert creates or edits a subject ensuring code uniqueness in its cohort.
func (s *CatalogService) Upsert(ctx context.Context, req UpsertSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)

	exists, err := s.repo.ExistsByCode(ctx, req.Code, req.Cohort, req.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already exists in cohort")
	}

	if req.ID == "" {
		subject := &models.Subject{
			Code:       req.Code,
			Name:       req.Name,
			Credits:    req.Credits,
			Cohort:     req.Cohort,
			ClassLabel: req.ClassLabel,
			Program:    req.Program,
			Semester:   req.Semester,
			Status:     models.SubjectStatusArchived,
			TeacherIDs: req.TeacherIDs,
		}
		if err := s.repo.Create(ctx, subject); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
		}
		return subject, nil
	}

	subject, err := s.repo.FindByID(ctx, req.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	subject.Code = req.Code
	subject.Name = req.Name
	subject.Credits = req.Credits
	subject.Cohort = req.Cohort
	subject.ClassLabel = req.ClassLabel
	subject.Program = req.Program
	subject.Semester = req.Semester
	subject.TeacherIDs = req.TeacherIDs

	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return subject, nil
}

// SetStatus toggles a subject between active and archived. It touches the
// subject row only.
func (s *CatalogService) SetStatus(ctx context.Context, id string, status models.SubjectStatus) error {
	if !status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid subject status")
	}
	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject status")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	return nil
}

// Remove hard-deletes a subject record. Reserved for the lifecycle
// orchestrator's forced-delete cascade.
func (s *CatalogService) Remove(ctx context.Context, id string) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	return deleted, nil
}
