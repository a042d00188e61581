package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/uni-krs-api/internal/models"
)

const offeringColumns = "id, subject_id, cohort, class_label, term, status, capacity, day, start_time, end_time, room, created_at, updated_at"

// ErrDuplicateOffering reports an existing offering for the same
// subject+cohort+class+term, backed by the unique index.
var ErrDuplicateOffering = fmt.Errorf("offering already exists")

// OfferingRepository handles persistence of offerings.
type OfferingRepository struct {
	db *sqlx.DB
}

// NewOfferingRepository constructs the repository.
func NewOfferingRepository(db *sqlx.DB) *OfferingRepository {
	return &OfferingRepository{db: db}
}

// List returns offerings filtered by the provided criteria.
func (r *OfferingRepository) List(ctx context.Context, filter models.OfferingFilter) ([]models.OfferingDetail, int, error) {
	base := `FROM offerings o
JOIN subjects s ON s.id = o.subject_id`
	var conditions []string
	var args []interface{}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("o.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Cohort != "" {
		conditions = append(conditions, fmt.Sprintf("o.cohort = $%d", len(args)+1))
		args = append(args, filter.Cohort)
	}
	if filter.ClassLabel != "" {
		conditions = append(conditions, fmt.Sprintf("o.class_label = $%d", len(args)+1))
		args = append(args, filter.ClassLabel)
	}
	if filter.Term != "" {
		conditions = append(conditions, fmt.Sprintf("o.term = $%d", len(args)+1))
		args = append(args, filter.Term)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("o.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "o.created_at",
		"class_label":  "o.class_label",
		"term":         "o.term",
		"subject_name": "s.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "o.created_at"
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

	query := fmt.Sprintf(`SELECT o.id, o.subject_id, o.cohort, o.class_label, o.term, o.status, o.capacity,
        o.day, o.start_time, o.end_time, o.room, o.created_at, o.updated_at,
        s.code AS subject_code, s.name AS subject_name, s.credits AS subject_credits, s.status AS subject_status
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var offerings []models.OfferingDetail
	if err := r.db.SelectContext(ctx, &offerings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list offerings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count offerings: %w", err)
	}
	return offerings, total, nil
}

// FindByID returns an offering by its ID.
func (r *OfferingRepository) FindByID(ctx context.Context, id string) (*models.Offering, error) {
	query := fmt.Sprintf("SELECT %s FROM offerings WHERE id = $1", offeringColumns)
	var offering models.Offering
	if err := r.db.GetContext(ctx, &offering, query, id); err != nil {
		return nil, err
	}
	return &offering, nil
}

// FindDetailByID returns an offering joined with its parent subject.
func (r *OfferingRepository) FindDetailByID(ctx context.Context, id string) (*models.OfferingDetail, error) {
	const query = `SELECT o.id, o.subject_id, o.cohort, o.class_label, o.term, o.status, o.capacity,
        o.day, o.start_time, o.end_time, o.room, o.created_at, o.updated_at,
        s.code AS subject_code, s.name AS subject_name, s.credits AS subject_credits, s.status AS subject_status
        FROM offerings o
        JOIN subjects s ON s.id = o.subject_id
        WHERE o.id = $1`
	var detail models.OfferingDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListBySubjectAndTerm returns the subject's offerings for one term.
func (r *OfferingRepository) ListBySubjectAndTerm(ctx context.Context, subjectID, term string) ([]models.Offering, error) {
	query := fmt.Sprintf("SELECT %s FROM offerings WHERE subject_id = $1 AND term = $2 ORDER BY class_label", offeringColumns)
	var offerings []models.Offering
	if err := r.db.SelectContext(ctx, &offerings, query, subjectID, term); err != nil {
		return nil, fmt.Errorf("list subject offerings: %w", err)
	}
	return offerings, nil
}

// ListBySubject returns every offering of a subject across terms.
func (r *OfferingRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.Offering, error) {
	query := fmt.Sprintf("SELECT %s FROM offerings WHERE subject_id = $1 ORDER BY term, class_label", offeringColumns)
	var offerings []models.Offering
	if err := r.db.SelectContext(ctx, &offerings, query, subjectID); err != nil {
		return nil, fmt.Errorf("list subject offerings: %w", err)
	}
	return offerings, nil
}

// Create persists a new offering. A unique index on
// (subject_id, cohort, class_label, term) guards against duplicates.
func (r *OfferingRepository) Create(ctx context.Context, offering *models.Offering) error {
	if offering.ID == "" {
		offering.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if offering.CreatedAt.IsZero() {
		offering.CreatedAt = now
	}
	offering.UpdatedAt = now
	if offering.Status == "" {
		offering.Status = models.OfferingStatusOpen
	}

	const query = `INSERT INTO offerings (id, subject_id, cohort, class_label, term, status, capacity, day, start_time, end_time, room, created_at, updated_at)
        VALUES (:id, :subject_id, :cohort, :class_label, :term, :status, :capacity, :day, :start_time, :end_time, :room, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, offering); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateOffering
		}
		return fmt.Errorf("create offering: %w", err)
	}
	return nil
}

// ExistsFor checks for an offering covering the same section.
func (r *OfferingRepository) ExistsFor(ctx context.Context, subjectID, cohort, classLabel, term string) (bool, error) {
	const query = `SELECT 1 FROM offerings WHERE subject_id = $1 AND cohort = $2 AND class_label = $3 AND term = $4 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, subjectID, cohort, classLabel, term); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check offering: %w", err)
	}
	return true, nil
}

// UpdateStatus sets the status of one offering.
func (r *OfferingRepository) UpdateStatus(ctx context.Context, id string, status models.OfferingStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE offerings SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update offering status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update offering status: %w", err)
	}
	return affected > 0, nil
}

// UpdateStatusBySubject sets the status of every offering of a subject and
// returns how many rows changed.
func (r *OfferingRepository) UpdateStatusBySubject(ctx context.Context, subjectID string, status models.OfferingStatus) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE offerings SET status = $2, updated_at = $3 WHERE subject_id = $1 AND status <> $2`, subjectID, status, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("update subject offerings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update subject offerings: %w", err)
	}
	return int(affected), nil
}

// DeleteBySubject removes every offering of a subject, returning the count.
func (r *OfferingRepository) DeleteBySubject(ctx context.Context, subjectID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offerings WHERE subject_id = $1`, subjectID)
	if err != nil {
		return 0, fmt.Errorf("delete subject offerings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete subject offerings: %w", err)
	}
	return int(affected), nil
}
