package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-krs-api/internal/models"
	"github.com/noah-isme/uni-krs-api/internal/repository"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
)

type enrollmentRepository interface {
	Admit(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListByStudentAndTerm(ctx context.Context, studentID, term string) ([]models.EnrollmentDetail, error)
	ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.Enrollment, error)
	CountBySubject(ctx context.Context, subjectID string) (int, error)
	CountByOffering(ctx context.Context, offeringID string) (int, error)
	DeleteBySubject(ctx context.Context, subjectID string) (int, error)
}

type offeringReader interface {
	FindByID(ctx context.Context, id string) (*models.Offering, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// EnrollRequest describes an enrollment attempt.
type EnrollRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	SubjectID  string `json:"subject_id" validate:"required"`
	Term       string `json:"term" validate:"required"`
	OfferingID string `json:"offering_id" validate:"required"`
}

// EnrollmentService is the ledger of student-offering claims. It enforces
// per-student uniqueness (by offering, by subject and by canonical course
// name) and seat capacity. The guards run twice: here for precise errors,
// and inside the admission transaction for correctness under concurrency.
type EnrollmentService struct {
	repo      enrollmentRepository
	subjects  subjectReader
	offerings offeringReader
	students  studentReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, subjects subjectReader, offerings offeringReader, students studentReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, subjects: subjects, offerings: offerings, students: students, metrics: metrics, validator: validate, logger: logger}
}

// Enroll registers a student on an offering for a term.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}

	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	offering, err := s.offerings.FindByID(ctx, req.OfferingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "offering not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load offering")
	}
	if offering.SubjectID != subject.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "offering does not belong to subject")
	}
	if offering.Term != req.Term {
		return nil, appErrors.Clone(appErrors.ErrValidation, "offering does not belong to term")
	}

	existing, err := s.repo.ListByStudentAndTerm(ctx, req.StudentID, req.Term)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term plan")
	}
	wanted := subject.CanonicalName()
	for _, record := range existing {
		switch {
		case record.OfferingID == req.OfferingID:
			return nil, s.reject(appErrors.ErrAlreadyEnrolled)
		case record.SubjectID == req.SubjectID:
			return nil, s.reject(appErrors.ErrAlreadyEnrolledSubject)
		case models.CanonicalCourseName(record.SubjectName) == wanted:
			return nil, s.reject(appErrors.WithDetails(appErrors.ErrDuplicateCourseName, map[string]interface{}{
				"conflicting_subject_id": record.SubjectID,
				"course_name":            record.SubjectName,
			}))
		}
	}

	if subject.Status != models.SubjectStatusActive {
		return nil, s.reject(appErrors.ErrSubjectInactive)
	}

	if offering.Capacity != nil {
		count, err := s.repo.CountByOffering(ctx, req.OfferingID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
		}
		if count >= *offering.Capacity {
			return nil, s.reject(appErrors.ErrOfferingFull)
		}
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		SubjectID:  req.SubjectID,
		OfferingID: req.OfferingID,
		Term:       req.Term,
	}
	if err := s.repo.Admit(ctx, enrollment); err != nil {
		return nil, s.mapAdmissionError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordAdmission()
	}
	return enrollment, nil
}

// Withdraw removes one enrollment record. Withdrawing a record that no
// longer exists succeeds, so client retries are harmless.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	return nil
}

// Get returns one enrollment record.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return record, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// ListByStudentAndTerm returns the student's term plan.
func (s *EnrollmentService) ListByStudentAndTerm(ctx context.Context, studentID, term string) ([]models.EnrollmentDetail, error) {
	if studentID == "" || term == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and term are required")
	}
	enrollments, err := s.repo.ListByStudentAndTerm(ctx, studentID, term)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// ListByOffering returns the roster of one offering.
func (s *EnrollmentService) ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListByOffering(ctx, offeringID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return enrollments, nil
}

// CountBySubject reports how many records reference the subject.
func (s *EnrollmentService) CountBySubject(ctx context.Context, subjectID string) (int, error) {
	count, err := s.repo.CountBySubject(ctx, subjectID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return count, nil
}

// ListBySubject returns every record referencing a subject.
func (s *EnrollmentService) ListBySubject(ctx context.Context, subjectID string) ([]models.Enrollment, error) {
	enrollments, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subject enrollments")
	}
	return enrollments, nil
}

// RemoveAllForSubject deletes every record referencing a subject, returning
// the count. Reserved for the forced-delete cascade.
func (s *EnrollmentService) RemoveAllForSubject(ctx context.Context, subjectID string) (int, error) {
	count, err := s.repo.DeleteBySubject(ctx, subjectID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject enrollments")
	}
	return count, nil
}

func (s *EnrollmentService) reject(err *appErrors.Error) *appErrors.Error {
	if s.metrics != nil {
		s.metrics.RecordRejection(err.Code)
	}
	return err
}

func (s *EnrollmentService) mapAdmissionError(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateEnrollment):
		return s.reject(appErrors.Clone(appErrors.ErrAlreadyEnrolled, ""))
	case errors.Is(err, repository.ErrDuplicateSubject):
		return s.reject(appErrors.Clone(appErrors.ErrAlreadyEnrolledSubject, ""))
	case errors.Is(err, repository.ErrDuplicateCourseName):
		return s.reject(appErrors.Clone(appErrors.ErrDuplicateCourseName, ""))
	case errors.Is(err, repository.ErrOfferingFull):
		return s.reject(appErrors.Clone(appErrors.ErrOfferingFull, ""))
	case errors.Is(err, repository.ErrOfferingNotOpen):
		return s.reject(appErrors.Clone(appErrors.ErrOfferingClosed, ""))
	case errors.Is(err, repository.ErrTermMismatch):
		return appErrors.Clone(appErrors.ErrValidation, "offering does not belong to term")
	case errors.Is(err, repository.ErrOfferingMissing):
		return appErrors.Clone(appErrors.ErrNotFound, "offering not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to admit enrollment")
	}
}
