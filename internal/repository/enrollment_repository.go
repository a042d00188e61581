package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/uni-krs-api/internal/models"
)

// Admission sentinels. The admission decision is made inside one transaction
// holding a row lock on the offering, so these outcomes hold under
// concurrent enrolls.
var (
	ErrDuplicateEnrollment = errors.New("student already enrolled in offering")
	ErrDuplicateSubject    = errors.New("student already enrolled in subject for term")
	ErrDuplicateCourseName = errors.New("student already enrolled in course with same name")
	ErrOfferingFull        = errors.New("offering is full")
	ErrOfferingNotOpen     = errors.New("offering is not open")
	ErrOfferingMissing     = errors.New("offering not found")
	ErrTermMismatch        = errors.New("enrollment term does not match offering term")
)

// EnrollmentRepository handles persistence of enrollment records.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Admit inserts the enrollment record after re-validating every admission
// invariant under a lock on the offering row. The service layer runs the
// same guards first for precise error messages; this transaction is the
// authority under concurrency.
func (r *EnrollmentRepository) Admit(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admission: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var offering struct {
		Status   models.OfferingStatus `db:"status"`
		Capacity *int                  `db:"capacity"`
		Term     string                `db:"term"`
	}
	err = tx.GetContext(ctx, &offering, `SELECT status, capacity, term FROM offerings WHERE id = $1 FOR UPDATE`, enrollment.OfferingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrOfferingMissing
		}
		return fmt.Errorf("lock offering: %w", err)
	}
	if offering.Status != models.OfferingStatusOpen {
		return ErrOfferingNotOpen
	}
	if offering.Term != enrollment.Term {
		return ErrTermMismatch
	}

	var conflict struct {
		OfferingID string `db:"offering_id"`
		SubjectID  string `db:"subject_id"`
	}
	err = tx.GetContext(ctx, &conflict, `SELECT e.offering_id, e.subject_id
        FROM enrollments e
        JOIN subjects s ON s.id = e.subject_id
        WHERE e.student_id = $1 AND e.term = $2
          AND (e.offering_id = $3 OR e.subject_id = $4
               OR LOWER(TRIM(s.name)) = (SELECT LOWER(TRIM(name)) FROM subjects WHERE id = $4))
        LIMIT 1`,
		enrollment.StudentID, enrollment.Term, enrollment.OfferingID, enrollment.SubjectID)
	if err == nil {
		switch {
		case conflict.OfferingID == enrollment.OfferingID:
			return ErrDuplicateEnrollment
		case conflict.SubjectID == enrollment.SubjectID:
			return ErrDuplicateSubject
		default:
			return ErrDuplicateCourseName
		}
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check duplicates: %w", err)
	}

	if offering.Capacity != nil {
		var count int
		if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE offering_id = $1`, enrollment.OfferingID); err != nil {
			return fmt.Errorf("count enrollments: %w", err)
		}
		if count >= *offering.Capacity {
			return ErrOfferingFull
		}
	}

	_, err = tx.NamedExecContext(ctx, `INSERT INTO enrollments (id, student_id, subject_id, offering_id, term, created_at)
        VALUES (:id, :student_id, :subject_id, :offering_id, :term, :created_at)`, enrollment)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admission: %w", err)
	}
	return nil
}

// Delete removes one enrollment record. Deleting a missing record is a
// success so client retries stay safe.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// FindByID returns one enrollment record.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, subject_id, offering_id, term, created_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByStudentAndTerm returns the student's term plan with subject detail.
func (r *EnrollmentRepository) ListByStudentAndTerm(ctx context.Context, studentID, term string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.subject_id, e.offering_id, e.term, e.created_at,
        st.full_name AS student_name, st.nim AS student_nim,
        s.code AS subject_code, s.name AS subject_name, s.credits AS subject_credits,
        o.class_label AS class_label
        FROM enrollments e
        JOIN subjects s ON s.id = e.subject_id
        JOIN offerings o ON o.id = e.offering_id
        JOIN students st ON st.id = e.student_id
        WHERE e.student_id = $1 AND e.term = $2
        ORDER BY e.created_at`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, term); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByOffering returns the roster of an offering.
func (r *EnrollmentRepository) ListByOffering(ctx context.Context, offeringID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.subject_id, e.offering_id, e.term, e.created_at,
        st.full_name AS student_name, st.nim AS student_nim,
        s.code AS subject_code, s.name AS subject_name, s.credits AS subject_credits,
        o.class_label AS class_label
        FROM enrollments e
        JOIN subjects s ON s.id = e.subject_id
        JOIN offerings o ON o.id = e.offering_id
        JOIN students st ON st.id = e.student_id
        WHERE e.offering_id = $1
        ORDER BY st.full_name`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, offeringID); err != nil {
		return nil, fmt.Errorf("list offering roster: %w", err)
	}
	return enrollments, nil
}

// ListBySubject returns every record referencing a subject. Used by the
// lifecycle orchestrator before and during cascades.
func (r *EnrollmentRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, subject_id, offering_id, term, created_at FROM enrollments WHERE subject_id = $1 ORDER BY created_at`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, subjectID); err != nil {
		return nil, fmt.Errorf("list subject enrollments: %w", err)
	}
	return enrollments, nil
}

// CountBySubject returns the number of records referencing a subject.
func (r *EnrollmentRepository) CountBySubject(ctx context.Context, subjectID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE subject_id = $1`, subjectID); err != nil {
		return 0, fmt.Errorf("count subject enrollments: %w", err)
	}
	return count, nil
}

// CountByOffering returns the current seat usage of an offering.
func (r *EnrollmentRepository) CountByOffering(ctx context.Context, offeringID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE offering_id = $1`, offeringID); err != nil {
		return 0, fmt.Errorf("count offering enrollments: %w", err)
	}
	return count, nil
}

// DeleteBySubject removes every record referencing a subject, returning the
// count of deleted rows.
func (r *EnrollmentRepository) DeleteBySubject(ctx context.Context, subjectID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE subject_id = $1`, subjectID)
	if err != nil {
		return 0, fmt.Errorf("delete subject enrollments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete subject enrollments: %w", err)
	}
	return int(affected), nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN subjects s ON s.id = e.subject_id
JOIN offerings o ON o.id = e.offering_id
JOIN students st ON st.id = e.student_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("e.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.OfferingID != "" {
		conditions = append(conditions, fmt.Sprintf("e.offering_id = $%d", len(args)+1))
		args = append(args, filter.OfferingID)
	}
	if filter.Term != "" {
		conditions = append(conditions, fmt.Sprintf("e.term = $%d", len(args)+1))
		args = append(args, filter.Term)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"student_name": "st.full_name",
		"subject_name": "s.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.subject_id, e.offering_id, e.term, e.created_at,
        st.full_name AS student_name, st.nim AS student_nim,
        s.code AS subject_code, s.name AS subject_name, s.credits AS subject_credits,
        o.class_label AS class_label
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}
