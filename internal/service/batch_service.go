package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/models"
	"github.com/noah-isme/lms-cert-api/internal/repository"
	appErrors "github.com/noah-isme/lms-cert-api/pkg/errors"
	"github.com/noah-isme/lms-cert-api/pkg/jobs"
	"github.com/noah-isme/lms-cert-api/pkg/storage"
)

const batchJobKind = "certificate_batch"

type batchRepository interface {
	Create(ctx context.Context, batch *models.CertificateBatch) error
	FindByID(ctx context.Context, id string) (*models.CertificateBatch, error)
	Update(ctx context.Context, id string, params repository.UpdateBatchParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CertificateBatch, error)
}

// cleanupListLimit caps how many expired batches one cleanup tick handles.
const cleanupListLimit = 100

// BatchService renders every issued-or-issuable certificate of a course
// into a single zip archive in the background. Batch state lives in the
// database; the queue only carries batch ids, so a lost job is re-runnable.
type BatchService struct {
	repo      batchRepository
	approvals approvalRepository
	certs     *CertificateService
	store     *storage.DocumentStore
	signer    *storage.SignedURLSigner
	metrics   *MetricsService
	logger    *zap.Logger
	queue     *jobs.Queue
}

// NewBatchService constructs BatchService and its worker queue.
func NewBatchService(repo batchRepository, approvals approvalRepository, certs *CertificateService, store *storage.DocumentStore, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger, queueCfg jobs.QueueConfig) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BatchService{
		repo:      repo,
		approvals: approvals,
		certs:     certs,
		store:     store,
		signer:    signer,
		metrics:   metrics,
		logger:    logger,
	}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("certificate-batches", s.process, queueCfg)
	return s
}

// Start launches the worker pool.
func (s *BatchService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *BatchService) Stop() {
	s.queue.Stop()
}

// StartBatch queues a bulk render for every active approval of a course.
func (s *BatchService) StartBatch(ctx context.Context, courseID, createdBy string) (*models.CertificateBatch, error) {
	approvals, err := s.activeApprovals(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(approvals) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course has no active approvals")
	}

	batch := &models.CertificateBatch{
		CourseID:  courseID,
		Status:    models.BatchStatusQueued,
		Total:     len(approvals),
		CreatedBy: createdBy,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: batch.ID, Kind: batchJobKind}); err != nil {
		msg := err.Error()
		failed := models.BatchStatusFailed
		_ = s.repo.Update(ctx, batch.ID, repository.UpdateBatchParams{Status: &failed, ErrorMessage: &msg})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue batch")
	}

	s.logger.Info("certificate batch queued",
		zap.String("batch_id", batch.ID),
		zap.String("course_id", courseID),
		zap.Int("total", batch.Total))
	return batch, nil
}

// GetBatch returns batch state for polling clients.
func (s *BatchService) GetBatch(ctx context.Context, id string) (*models.CertificateBatch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// OpenResult validates a signed download token and opens the archive.
func (s *BatchService) OpenResult(ctx context.Context, token string) (*os.File, string, error) {
	batchID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, "", err
	}
	if batch.Status != models.BatchStatusFinished {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "batch has not finished")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "batch archive no longer available")
	}
	return file, fmt.Sprintf("certificates-%s.zip", batch.CourseID), nil
}

// RunCleanup deletes archives older than ttl on each interval tick until
// the context is cancelled. Expired batches keep their database row; only
// the file goes away.
func (s *BatchService) RunCleanup(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOnce(ctx, ttl)
		}
	}
}

// cleanupOnce removes the archives of batches that finished before the ttl
// cutoff, then sweeps the store for orphan files no batch row points at.
func (s *BatchService) cleanupOnce(ctx context.Context, ttl time.Duration) {
	cutoff := time.Now().UTC().Add(-ttl)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupListLimit)
	if err != nil {
		s.logger.Warn("listing expired batches failed", zap.Error(err))
	}
	deleted := 0
	for _, batch := range expired {
		if err := s.store.Delete(batch.ID + ".zip"); err != nil {
			s.logger.Warn("batch archive delete failed",
				zap.String("batch_id", batch.ID), zap.Error(err))
			continue
		}
		deleted++
	}

	removed, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("batch archive cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 || len(removed) > 0 {
		s.logger.Info("batch archives removed",
			zap.Int("expired", deleted),
			zap.Int("orphaned", len(removed)))
	}
}

func (s *BatchService) process(ctx context.Context, job jobs.Job) error {
	batch, err := s.repo.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", job.ID, err)
	}

	now := time.Now().UTC()
	processing := models.BatchStatusProcessing
	if err := s.repo.Update(ctx, batch.ID, repository.UpdateBatchParams{Status: &processing, StartedAt: &now}); err != nil {
		return fmt.Errorf("mark batch processing: %w", err)
	}

	approvals, err := s.activeApprovals(ctx, batch.CourseID)
	if err != nil {
		return s.fail(ctx, batch.ID, err)
	}

	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	rendered := 0
	for i, approval := range approvals {
		filename, document, err := s.certs.Download(ctx, approval.CourseID, approval.StudentID)
		if err != nil {
			// A revocation that landed mid-batch is skipped, not fatal.
			var appErr *appErrors.Error
			if errors.As(err, &appErr) && appErr.Code == appErrors.ErrNotEligible.Code {
				s.logger.Warn("skipping no-longer-eligible enrollment",
					zap.String("batch_id", batch.ID),
					zap.String("student_id", approval.StudentID))
				continue
			}
			return s.fail(ctx, batch.ID, err)
		}
		entry, err := archive.Create(filename)
		if err != nil {
			return s.fail(ctx, batch.ID, err)
		}
		if _, err := entry.Write(document); err != nil {
			return s.fail(ctx, batch.ID, err)
		}
		rendered++

		progress := (i + 1) * 100 / len(approvals)
		_ = s.repo.Update(ctx, batch.ID, repository.UpdateBatchParams{Progress: &progress, Rendered: &rendered})
	}
	if err := archive.Close(); err != nil {
		return s.fail(ctx, batch.ID, err)
	}

	archiveName := batch.ID + ".zip"
	if _, err := s.store.Save(archiveName, buf.Bytes()); err != nil {
		return s.fail(ctx, batch.ID, err)
	}
	token, _, err := s.signer.Generate(batch.ID, archiveName)
	if err != nil {
		return s.fail(ctx, batch.ID, err)
	}

	finished := models.BatchStatusFinished
	finishedAt := time.Now().UTC()
	full := 100
	if err := s.repo.Update(ctx, batch.ID, repository.UpdateBatchParams{
		Status:     &finished,
		Progress:   &full,
		Rendered:   &rendered,
		ResultURL:  &token,
		FinishedAt: &finishedAt,
	}); err != nil {
		return fmt.Errorf("mark batch finished: %w", err)
	}

	if s.metrics != nil {
		s.metrics.BatchProcessed(string(models.BatchStatusFinished))
	}
	s.logger.Info("certificate batch finished",
		zap.String("batch_id", batch.ID),
		zap.String("archive", s.store.Path(archiveName)),
		zap.Int("rendered", rendered),
		zap.Int("total", len(approvals)))
	return nil
}

func (s *BatchService) fail(ctx context.Context, batchID string, cause error) error {
	failed := models.BatchStatusFailed
	msg := cause.Error()
	finishedAt := time.Now().UTC()
	if err := s.repo.Update(ctx, batchID, repository.UpdateBatchParams{Status: &failed, ErrorMessage: &msg, FinishedAt: &finishedAt}); err != nil {
		s.logger.Error("failed to mark batch failed", zap.String("batch_id", batchID), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.BatchProcessed(string(models.BatchStatusFailed))
	}
	return fmt.Errorf("batch %s: %w", batchID, cause)
}

func (s *BatchService) activeApprovals(ctx context.Context, courseID string) ([]models.CertificateApproval, error) {
	all, err := s.approvals.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	active := all[:0]
	for _, a := range all {
		if !a.Revoked {
			active = append(active, a)
		}
	}
	return active, nil
}
