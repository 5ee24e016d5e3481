// Package bulkupload orchestrates multi-sheet experiment batches: the
// experiments sheet is fully resolved first (creates, updates, renames),
// then conditions, then a parent-copy fallback sweep, then additives, whose
// replacement semantics key off the final post-rename identities.
package bulkupload

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gorm.io/gorm"

	"github.com/mhensley/labtrack/internal/core/services/lineage"
	"github.com/mhensley/labtrack/internal/infrastructure/database/repositories"
	"github.com/mhensley/labtrack/internal/infrastructure/parsers"
)

const (
	sheetExperiments = "experiments"
	sheetConditions  = "conditions"
	sheetAdditives   = "additives"
)

// Result is the outcome of one batch: counts plus three severity-leveled
// message lists. Errors are batch-fatal, warnings are skipped rows, info
// traces why a row landed where it did.
type Result struct {
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Info     []string `json:"info,omitempty"`
}

func (r *Result) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) infof(format string, args ...interface{}) {
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}

// Service runs bulk experiment upserts. One batch per call; the caller owns
// the transaction boundary of the *gorm.DB it passes in.
type Service struct {
	db          *gorm.DB
	experiments *repositories.ExperimentRepository
	conditions  *repositories.ConditionsRepository
	additives   *repositories.AdditiveRepository
	compounds   *repositories.CompoundRepository
	resolver    *lineage.Resolver
	cache       repositories.CanonicalCache
	logger      *slog.Logger
}

// NewService creates a bulk upload service on top of a database handle.
// cache may be nil.
func NewService(db *gorm.DB, cache repositories.CanonicalCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	experiments := repositories.NewExperimentRepository(db, cache, logger)
	return &Service{
		db:          db,
		experiments: experiments,
		conditions:  repositories.NewConditionsRepository(db, logger),
		additives:   repositories.NewAdditiveRepository(db, logger),
		compounds:   repositories.NewCompoundRepository(db, logger),
		resolver:    lineage.NewResolver(experiments, logger),
		cache:       cache,
		logger:      logger,
	}
}

// Upsert processes one parsed workbook. The experiments sheet is required;
// its absence is batch-fatal. Per-row failures downgrade to warnings so one
// bad row never aborts unrelated rows.
func (s *Service) Upsert(ctx context.Context, workbook parsers.Workbook) *Result {
	result := &Result{}

	experimentsSheet, ok := workbook.Sheet(sheetExperiments)
	if !ok {
		result.errorf("missing required '%s' sheet", sheetExperiments)
		return result
	}

	state := newBatchState()

	s.processExperimentsSheet(ctx, experimentsSheet, state, result)

	// Conditions and additives re-query by possibly-just-renamed canonical
	// IDs; stale identity mappings from before the rename must not survive
	// the phase boundary.
	state.invalidateCache(ctx, s.cache)

	if conditionsSheet, ok := workbook.Sheet(sheetConditions); ok {
		s.processConditionsSheet(ctx, conditionsSheet, state, result)
	}

	s.copyParentConditionsFallback(ctx, state, result)

	if additivesSheet, ok := workbook.Sheet(sheetAdditives); ok {
		s.processAdditivesSheet(ctx, additivesSheet, state, result)
	}

	s.logger.Info("bulk upload batch finished",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
		slog.Int("warnings", len(result.Warnings)))
	return result
}

// UpsertFromWorkbook parses an xlsx stream and processes it as one batch.
func (s *Service) UpsertFromWorkbook(ctx context.Context, reader io.Reader) (*Result, error) {
	parser := parsers.NewExcelParser(nil)
	workbook, err := parser.ParseWorkbookStream(ctx, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workbook: %w", err)
	}
	return s.Upsert(ctx, workbook), nil
}

// guardRow converts a row handler panic into a row warning tagged with the
// sheet, row number and the step in progress at failure time, so one row's
// blowup never takes down the batch.
func (s *Service) guardRow(sheet string, rowNum int, step *string, result *Result, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			result.Skipped++
			result.warnf("[%s] Row %d (step: %s): %v", sheet, rowNum, *step, r)
			s.logger.Error("row processing panic",
				slog.String("sheet", sheet),
				slog.Int("row", rowNum),
				slog.String("step", *step),
				slog.Any("panic", r))
		}
	}()
	fn()
}
