package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/mhensley/labtrack/internal/core/domain"
	"github.com/mhensley/labtrack/internal/core/services/bulkupload"
	"github.com/mhensley/labtrack/internal/infrastructure/database/repositories"
	"github.com/mhensley/labtrack/internal/infrastructure/parsers"
	"github.com/mhensley/labtrack/internal/infrastructure/storage"
)

// ProcessWorkbookPayload references a stored upload for background upserting.
type ProcessWorkbookPayload struct {
	UploadID string `json:"upload_id"`
	Filename string `json:"filename"`
}

// NewProcessWorkbookTask builds the task for a full multi-sheet workbook.
func NewProcessWorkbookTask(uploadID, filename string) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessWorkbookPayload{
		UploadID: uploadID,
		Filename: filename,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeProcessWorkbook, payload, asynq.Queue("uploads")), nil
}

// NewProcessAdditivesTask builds the task for a flat additives-only file.
func NewProcessAdditivesTask(uploadID, filename string) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessWorkbookPayload{
		UploadID: uploadID,
		Filename: filename,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeProcessAdditives, payload, asynq.Queue("uploads")), nil
}

// UploadProcessor executes upload tasks: it pulls the stored file, runs the
// bulk upsert, persists the outcome next to the upload and tracks lifecycle
// in the upload_batches table so callers can poll either place.
type UploadProcessor struct {
	storage *storage.UploadStore
	service *bulkupload.Service
	batches *repositories.UploadBatchRepository
	factory *parsers.ParserFactory
	logger  *slog.Logger
}

// NewUploadProcessor wires the processor and registers its handlers on srv.
// batches may be nil when lifecycle tracking is not wanted.
func NewUploadProcessor(srv *Server, store *storage.UploadStore, service *bulkupload.Service, batches *repositories.UploadBatchRepository, logger *slog.Logger) *UploadProcessor {
	if logger == nil {
		logger = slog.Default()
	}

	p := &UploadProcessor{
		storage: store,
		service: service,
		batches: batches,
		factory: parsers.NewParserFactory(nil),
		logger:  logger,
	}

	srv.HandleFunc(TaskTypeProcessWorkbook, p.HandleProcessWorkbook)
	srv.HandleFunc(TaskTypeProcessAdditives, p.HandleProcessAdditives)
	srv.HandleFunc(TaskTypeCleanupUploads, p.HandleCleanup)
	return p
}

// HandleProcessWorkbook parses a stored workbook and runs the full upsert.
func (p *UploadProcessor) HandleProcessWorkbook(ctx context.Context, task *asynq.Task) error {
	payload, batchID, err := p.begin(ctx, task)
	if err != nil {
		return err
	}

	path, err := p.storage.UploadPath(payload.UploadID, payload.Filename)
	if err != nil {
		return p.fail(ctx, batchID, payload, err)
	}

	workbook, err := p.factory.ParseWorkbookFile(ctx, path)
	if err != nil {
		return p.fail(ctx, batchID, payload, err)
	}

	result := p.service.Upsert(ctx, workbook)
	return p.finish(ctx, batchID, payload, result)
}

// HandleProcessAdditives parses a stored flat file and upserts additives only.
func (p *UploadProcessor) HandleProcessAdditives(ctx context.Context, task *asynq.Task) error {
	payload, batchID, err := p.begin(ctx, task)
	if err != nil {
		return err
	}

	path, err := p.storage.UploadPath(payload.UploadID, payload.Filename)
	if err != nil {
		return p.fail(ctx, batchID, payload, err)
	}

	sheet, err := p.factory.ParseFile(ctx, path)
	if err != nil {
		return p.fail(ctx, batchID, payload, err)
	}

	result := p.service.UpsertAdditives(ctx, sheet)
	return p.finish(ctx, batchID, payload, result)
}

// HandleCleanup removes uploads older than the retention window.
func (p *UploadProcessor) HandleCleanup(ctx context.Context, task *asynq.Task) error {
	return p.storage.CleanupOldUploads(ctx, 7*24*time.Hour)
}

// begin decodes the payload and moves the tracking row into processing,
// creating it first when the enqueuer did not.
func (p *UploadProcessor) begin(ctx context.Context, task *asynq.Task) (ProcessWorkbookPayload, uuid.UUID, error) {
	var payload ProcessWorkbookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Malformed payloads never become valid: do not retry
		return payload, uuid.Nil, fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	batchID, err := uuid.Parse(payload.UploadID)
	if err != nil {
		return payload, uuid.Nil, fmt.Errorf("invalid upload id '%s': %v: %w", payload.UploadID, err, asynq.SkipRetry)
	}

	if p.batches != nil {
		existing, err := p.batches.FindByID(ctx, batchID)
		if err == nil && existing == nil {
			err = p.batches.Create(ctx, &domain.UploadBatch{
				ID:               batchID,
				OriginalFilename: payload.Filename,
				Status:           domain.UploadStatusStored,
			})
		}
		if err == nil {
			err = p.batches.MarkProcessing(ctx, batchID)
		}
		if err != nil {
			// Tracking is secondary to processing; log and continue
			p.logger.Warn("upload batch tracking failed",
				slog.String("upload_id", payload.UploadID),
				slog.Any("error", err))
		}
	}

	return payload, batchID, nil
}

// fail marks a permanent pre-processing failure. These are not retried:
// a missing or unparsable file stays that way.
func (p *UploadProcessor) fail(ctx context.Context, batchID uuid.UUID, payload ProcessWorkbookPayload, cause error) error {
	if p.batches != nil {
		if err := p.batches.Fail(ctx, batchID, cause.Error()); err != nil {
			p.logger.Warn("upload batch tracking failed",
				slog.String("upload_id", payload.UploadID),
				slog.Any("error", err))
		}
	}
	return fmt.Errorf("upload %s: %v: %w", payload.UploadID, cause, asynq.SkipRetry)
}

func (p *UploadProcessor) finish(ctx context.Context, batchID uuid.UUID, payload ProcessWorkbookPayload, result *bulkupload.Result) error {
	if err := p.storage.SaveResult(ctx, payload.UploadID, result); err != nil {
		p.logger.Error("failed to persist batch result",
			slog.String("upload_id", payload.UploadID),
			slog.Any("error", err))
		return err
	}

	if p.batches != nil {
		summary := domain.JSONB{
			"created":  result.Created,
			"updated":  result.Updated,
			"skipped":  result.Skipped,
			"errors":   result.Errors,
			"warnings": result.Warnings,
		}
		err := p.batches.Complete(ctx, batchID,
			result.Created, result.Updated, result.Skipped,
			len(result.Warnings), len(result.Errors) > 0, summary)
		if err != nil {
			p.logger.Warn("upload batch tracking failed",
				slog.String("upload_id", payload.UploadID),
				slog.Any("error", err))
		}
	}

	p.logger.Info("upload processed",
		slog.String("upload_id", payload.UploadID),
		slog.String("filename", payload.Filename),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", len(result.Errors)))
	return nil
}
