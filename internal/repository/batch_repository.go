package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-cert-api/internal/models"
)

// UpdateBatchParams carries optional field updates for a batch row.
type UpdateBatchParams struct {
	Status       *models.BatchStatus
	Progress     *int
	Rendered     *int
	ResultURL    *string
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// BatchRepository handles persistence of bulk rendering batches.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create persists a new batch row.
func (r *BatchRepository) Create(ctx context.Context, batch *models.CertificateBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusQueued
	}
	const query = `INSERT INTO certificate_batches (id, course_id, status, progress, total, rendered, created_by, created_at)
        VALUES (:id, :course_id, :status, :progress, :total, :rendered, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create certificate batch: %w", err)
	}
	return nil
}

// FindByID returns a batch by its identifier.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.CertificateBatch, error) {
	const query = `SELECT id, course_id, status, progress, total, rendered, result_url, error_message, created_by, created_at, started_at, finished_at
        FROM certificate_batches WHERE id = $1`
	var batch models.CertificateBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// Update applies the provided field updates to a batch row.
func (r *BatchRepository) Update(ctx context.Context, id string, params UpdateBatchParams) error {
	sets := make([]string, 0, 7)
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.Rendered != nil {
		add("rendered", *params.Rendered)
	}
	if params.ResultURL != nil {
		add("result_url", *params.ResultURL)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.StartedAt != nil {
		add("started_at", *params.StartedAt)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE certificate_batches SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update certificate batch: %w", err)
	}
	return nil
}

// ListFinishedBefore returns finished batches older than the cutoff,
// used by the cleanup loop.
func (r *BatchRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CertificateBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, course_id, status, progress, total, rendered, result_url, error_message, created_by, created_at, started_at, finished_at
        FROM certificate_batches WHERE status IN ($1, $2) AND finished_at < $3 ORDER BY finished_at ASC LIMIT $4`
	var batches []models.CertificateBatch
	if err := r.db.SelectContext(ctx, &batches, query, models.BatchStatusFinished, models.BatchStatusFailed, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished batches: %w", err)
	}
	return batches, nil
}
