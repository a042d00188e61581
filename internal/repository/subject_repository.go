package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-krs-api/internal/models"
)

const subjectColumns = "id, code, name, credits, cohort, class_label, program, semester, status, teacher_ids, created_at, updated_at"

// SubjectRepository handles persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects matching filters with pagination metadata.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := "FROM subjects WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Cohort != "" {
		conditions = append(conditions, fmt.Sprintf("cohort = $%d", len(args)+1))
		args = append(args, filter.Cohort)
	}
	if filter.ClassLabel != "" {
		conditions = append(conditions, fmt.Sprintf("class_label = $%d", len(args)+1))
		args = append(args, filter.ClassLabel)
	}
	if filter.Program != "" {
		conditions = append(conditions, fmt.Sprintf("program = $%d", len(args)+1))
		args = append(args, filter.Program)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(teacher_ids)", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"code":       true,
		"name":       true,
		"semester":   true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", subjectColumns, base, sortBy, order, size, offset)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}

	return subjects, total, nil
}

// FindByID returns a subject by id.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE id = $1", subjectColumns)
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ListByCohortClass returns every subject belonging to a cohort and class
// section, regardless of status.
func (r *SubjectRepository) ListByCohortClass(ctx context.Context, cohort, classLabel string) ([]models.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE cohort = $1 AND class_label = $2 ORDER BY semester, code", subjectColumns)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, cohort, classLabel); err != nil {
		return nil, fmt.Errorf("list cohort subjects: %w", err)
	}
	return subjects, nil
}

// ListByTeacher returns subjects taught by the given instructor.
func (r *SubjectRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE $1 = ANY(teacher_ids) ORDER BY code", subjectColumns)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher subjects: %w", err)
	}
	return subjects, nil
}

// ExistsByCode checks uniqueness of subject code within a term's cohort.
func (r *SubjectRepository) ExistsByCode(ctx context.Context, code, cohort, excludeID string) (bool, error) {
	query := "SELECT 1 FROM subjects WHERE LOWER(code) = LOWER($1) AND cohort = $2"
	args := []interface{}{code, cohort}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check subject code: %w", err)
	}
	return true, nil
}

// Create persists a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
	if subject.Status == "" {
		subject.Status = models.SubjectStatusArchived
	}

	const query = `INSERT INTO subjects (id, code, name, credits, cohort, class_label, program, semester, status, teacher_ids, created_at, updated_at)
        VALUES (:id, :code, :name, :credits, :cohort, :class_label, :program, :semester, :status, :teacher_ids, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update modifies a subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET code = :code, name = :name, credits = :credits, cohort = :cohort,
        class_label = :class_label, program = :program, semester = :semester, teacher_ids = :teacher_ids,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// UpdateStatus sets the lifecycle status for a subject. It reports whether a
// row was changed so callers can distinguish a missing subject.
func (r *SubjectRepository) UpdateStatus(ctx context.Context, id string, status models.SubjectStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE subjects SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update subject status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update subject status: %w", err)
	}
	return affected > 0, nil
}

// Delete removes a subject record. Only the lifecycle orchestrator's
// forced-delete path may reach this.
func (r *SubjectRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete subject: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete subject: %w", err)
	}
	return affected > 0, nil
}
