package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/mhensley/labtrack/internal/core/domain"
)

// ConditionsRepository persists the one-to-one experimental conditions rows.
type ConditionsRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewConditionsRepository creates a new repository instance
func NewConditionsRepository(db *gorm.DB, logger *slog.Logger) *ConditionsRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConditionsRepository{
		db:     db,
		logger: logger,
	}
}

// FindByExperiment returns the conditions row for an experiment, or nil.
func (r *ConditionsRepository) FindByExperiment(ctx context.Context, experimentFK uint) (*domain.ExperimentalConditions, error) {
	var cond domain.ExperimentalConditions
	err := r.db.WithContext(ctx).
		Where("experiment_fk = ?", experimentFK).
		First(&cond).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &cond, nil
}

// GetOrCreate returns the experiment's conditions row, creating an empty one
// when none exists yet.
func (r *ConditionsRepository) GetOrCreate(ctx context.Context, exp *domain.Experiment) (*domain.ExperimentalConditions, error) {
	cond, err := r.FindByExperiment(ctx, exp.ID)
	if err != nil {
		return nil, err
	}
	if cond != nil {
		return cond, nil
	}

	cond = &domain.ExperimentalConditions{
		ExperimentID: exp.ExperimentID,
		ExperimentFK: exp.ID,
	}
	if err := r.db.WithContext(ctx).Create(cond).Error; err != nil {
		return nil, fmt.Errorf("failed to insert conditions: %w", err)
	}

	r.logger.Debug("created conditions row",
		slog.String("experiment_id", exp.ExperimentID),
		slog.Uint64("conditions_id", uint64(cond.ID)))
	return cond, nil
}

// Save persists changes to a conditions row.
func (r *ConditionsRepository) Save(ctx context.Context, cond *domain.ExperimentalConditions) error {
	if err := r.db.WithContext(ctx).Save(cond).Error; err != nil {
		return fmt.Errorf("failed to save conditions: %w", err)
	}
	return nil
}
