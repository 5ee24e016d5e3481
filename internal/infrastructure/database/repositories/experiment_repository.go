package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/mhensley/labtrack/internal/core/domain"
	"github.com/mhensley/labtrack/internal/core/experimentid"
	apperrors "github.com/mhensley/labtrack/internal/pkg/errors"
)

// canonicalExpr matches experiment_id values by canonical form. Works on both
// PostgreSQL and SQLite, which matters because tests run against the latter.
const canonicalExpr = "lower(replace(replace(replace(experiment_id, '-', ''), '_', ''), ' ', '')) = ?"

// CanonicalCache is an optional read-through cache from canonical experiment
// ID to primary key. Lookups fall back to the database on miss; writes are
// best-effort. The bulk upload state machine invalidates entries between
// phases so post-rename lookups never see stale identities.
type CanonicalCache interface {
	GetID(ctx context.Context, canonical string) (uint, bool)
	SetID(ctx context.Context, canonical string, id uint)
	Invalidate(ctx context.Context, canonical ...string)
}

// ExperimentRepository persists experiments and their dependent records.
type ExperimentRepository struct {
	db     *gorm.DB
	cache  CanonicalCache
	logger *slog.Logger
}

// NewExperimentRepository creates a new repository instance. cache may be nil.
func NewExperimentRepository(db *gorm.DB, cache CanonicalCache, logger *slog.Logger) *ExperimentRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &ExperimentRepository{
		db:     db,
		cache:  cache,
		logger: logger,
	}
}

// FindByID fetches an experiment by primary key. Returns nil when absent.
func (r *ExperimentRepository) FindByID(ctx context.Context, id uint) (*domain.Experiment, error) {
	var exp domain.Experiment
	err := r.db.WithContext(ctx).First(&exp, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &exp, nil
}

// FindByCanonicalID fetches the experiment whose ID normalizes to the same
// canonical form as rawID. Returns nil when no experiment matches; this is
// the single lookup behind existence checks, rename-collision checks and
// cross-sheet resolution.
func (r *ExperimentRepository) FindByCanonicalID(ctx context.Context, rawID string) (*domain.Experiment, error) {
	canonical := experimentid.Canonical(rawID)
	if canonical == "" {
		return nil, nil
	}

	if r.cache != nil {
		if id, ok := r.cache.GetID(ctx, canonical); ok {
			exp, err := r.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if exp != nil && experimentid.Canonical(exp.ExperimentID) == canonical {
				return exp, nil
			}
			// stale entry
			r.cache.Invalidate(ctx, canonical)
		}
	}

	var exp domain.Experiment
	err := r.db.WithContext(ctx).
		Where(canonicalExpr, canonical).
		First(&exp).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("canonical lookup failed",
			slog.String("canonical_id", canonical),
			slog.Any("error", err))
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	if r.cache != nil {
		r.cache.SetID(ctx, canonical, exp.ID)
	}
	return &exp, nil
}

// NextExperimentNumber returns the next free surrogate experiment number.
func (r *ExperimentRepository) NextExperimentNumber(ctx context.Context) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&domain.Experiment{}).
		Select("COALESCE(MAX(experiment_number), 0)").
		Scan(&max).
		Error
	if err != nil {
		return 0, fmt.Errorf("database query failed: %w", err)
	}
	return max + 1, nil
}

// Create inserts a new experiment. Uniqueness violations on experiment_id
// come back as a DUPLICATE_EXPERIMENT_ID application error.
func (r *ExperimentRepository) Create(ctx context.Context, exp *domain.Experiment) error {
	err := r.db.WithContext(ctx).Create(exp).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.DuplicateExperimentID(exp.ExperimentID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	if r.cache != nil {
		r.cache.SetID(ctx, experimentid.Canonical(exp.ExperimentID), exp.ID)
	}
	return nil
}

// Save persists changes to an existing experiment.
func (r *ExperimentRepository) Save(ctx context.Context, exp *domain.Experiment) error {
	err := r.db.WithContext(ctx).Save(exp).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.DuplicateExperimentID(exp.ExperimentID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}
	return nil
}

// Rename changes an experiment's ID and rewrites every denormalized copy of
// the old string (notes, modification log, conditions) in one transaction.
// The storage layer does not keep those copies in sync on its own.
//
// The target is checked by canonical form first so an in-batch collision
// surfaces as a RENAME_CONFLICT before any row is touched; a concurrent
// insert can still trip the unique index, which maps to the same duplicate
// classification the caller handles.
func (r *ExperimentRepository) Rename(ctx context.Context, exp *domain.Experiment, newID string) error {
	oldID := exp.ExperimentID

	holder, err := r.FindByCanonicalID(ctx, newID)
	if err != nil {
		return err
	}
	if holder != nil && holder.ID != exp.ID {
		return apperrors.RenameConflict(oldID, newID)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Experiment{}).
			Where("id = ?", exp.ID).
			Update("experiment_id", newID).
			Error; err != nil {
			return err
		}

		if err := tx.Model(&domain.ExperimentNote{}).
			Where("experiment_fk = ?", exp.ID).
			Update("experiment_id", newID).
			Error; err != nil {
			return err
		}

		if err := tx.Model(&domain.ModificationLog{}).
			Where("experiment_fk = ?", exp.ID).
			Update("experiment_id", newID).
			Error; err != nil {
			return err
		}

		return tx.Model(&domain.ExperimentalConditions{}).
			Where("experiment_fk = ?", exp.ID).
			Update("experiment_id", newID).
			Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.DuplicateExperimentID(newID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to rename experiment: %w", err)
	}

	exp.ExperimentID = newID
	if r.cache != nil {
		r.cache.Invalidate(ctx, experimentid.Canonical(oldID), experimentid.Canonical(newID))
	}

	r.logger.Info("experiment renamed",
		slog.String("old_experiment_id", oldID),
		slog.String("new_experiment_id", newID))
	return nil
}

// FindCandidateOrphans returns experiments sharing the given base ID that
// have no parent link yet, excluding the experiment itself. Callers filter
// the result down to the derivations whose expected parent actually matches.
func (r *ExperimentRepository) FindCandidateOrphans(ctx context.Context, baseID string, excludeID uint) ([]domain.Experiment, error) {
	var orphans []domain.Experiment
	err := r.db.WithContext(ctx).
		Where("base_experiment_id = ? AND parent_experiment_fk IS NULL AND id <> ?", baseID, excludeID).
		Find(&orphans).
		Error
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return orphans, nil
}

// AddNote attaches a free-text note with the denormalized experiment_id copy.
func (r *ExperimentRepository) AddNote(ctx context.Context, exp *domain.Experiment, text string) error {
	note := domain.ExperimentNote{
		ExperimentID: exp.ExperimentID,
		ExperimentFK: exp.ID,
		NoteText:     text,
	}
	if err := r.db.WithContext(ctx).Create(&note).Error; err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// LogModification appends an audit entry for an experiment change.
func (r *ExperimentRepository) LogModification(ctx context.Context, entry *domain.ModificationLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logger.Error("failed to write modification log",
			slog.String("experiment_id", entry.ExperimentID),
			slog.Any("error", err))
		return fmt.Errorf("failed to insert modification log: %w", err)
	}
	return nil
}

// ListNotes returns the notes attached to an experiment.
func (r *ExperimentRepository) ListNotes(ctx context.Context, experimentFK uint) ([]domain.ExperimentNote, error) {
	var notes []domain.ExperimentNote
	err := r.db.WithContext(ctx).
		Where("experiment_fk = ?", experimentFK).
		Order("created_at ASC").
		Find(&notes).
		Error
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return notes, nil
}
