package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mhensley/labtrack/internal/core/domain"
)

// UploadBatchRepository tracks workbook uploads through background processing.
type UploadBatchRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewUploadBatchRepository creates a new repository instance.
func NewUploadBatchRepository(db *gorm.DB, logger *slog.Logger) *UploadBatchRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadBatchRepository{db: db, logger: logger}
}

// Create records a freshly stored upload.
func (r *UploadBatchRepository) Create(ctx context.Context, batch *domain.UploadBatch) error {
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		return fmt.Errorf("failed to insert upload batch: %w", err)
	}
	return nil
}

// FindByID fetches an upload batch. Returns nil when absent.
func (r *UploadBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.UploadBatch, error) {
	var batch domain.UploadBatch
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &batch, nil
}

// MarkProcessing transitions an upload to the processing state.
func (r *UploadBatchRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&domain.UploadBatch{}).
		Where("id = ?", id).
		Update("status", domain.UploadStatusProcessing).
		Error
	if err != nil {
		return fmt.Errorf("failed to update upload batch: %w", err)
	}
	return nil
}

// Complete records the batch outcome and moves the upload to a terminal
// state. Batch-level errors mean failed; warnings alone do not.
func (r *UploadBatchRepository) Complete(ctx context.Context, id uuid.UUID, created, updated, skipped, warnings int, hadErrors bool, summary domain.JSONB) error {
	status := domain.UploadStatusCompleted
	if hadErrors {
		status = domain.UploadStatusFailed
	}
	now := time.Now()

	err := r.db.WithContext(ctx).
		Model(&domain.UploadBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"created_count": created,
			"updated_count": updated,
			"skipped_count": skipped,
			"warning_count": warnings,
			"summary":       summary,
			"completed_at":  &now,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to finalize upload batch: %w", err)
	}

	r.logger.Info("upload batch finalized",
		slog.String("upload_id", id.String()),
		slog.String("status", string(status)),
		slog.Int("created", created),
		slog.Int("updated", updated),
		slog.Int("skipped", skipped))
	return nil
}

// Fail marks an upload as failed with a reason, for errors that happen
// before a batch result exists (unreadable file, parse failure).
func (r *UploadBatchRepository) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).
		Model(&domain.UploadBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       domain.UploadStatusFailed,
			"summary":      domain.JSONB{"error": reason},
			"completed_at": &now,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to mark upload batch failed: %w", err)
	}
	return nil
}
