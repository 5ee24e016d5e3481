package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/mhensley/labtrack/internal/core/domain"
)

// AdditiveRepository persists chemical additive rows under a conditions row.
type AdditiveRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewAdditiveRepository creates a new repository instance
func NewAdditiveRepository(db *gorm.DB, logger *slog.Logger) *AdditiveRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &AdditiveRepository{
		db:     db,
		logger: logger,
	}
}

// ListByConditions returns every additive attached to a conditions row.
func (r *AdditiveRepository) ListByConditions(ctx context.Context, conditionsID uint) ([]domain.ChemicalAdditive, error) {
	var additives []domain.ChemicalAdditive
	err := r.db.WithContext(ctx).
		Where("conditions_id = ?", conditionsID).
		Order("addition_order ASC, id ASC").
		Find(&additives).
		Error
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return additives, nil
}

// DeleteByConditions removes every additive attached to a conditions row.
// Used by the full-replacement upload path before inserting the new set.
func (r *AdditiveRepository) DeleteByConditions(ctx context.Context, conditionsID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("conditions_id = ?", conditionsID).
		Delete(&domain.ChemicalAdditive{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete additives: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		r.logger.Debug("replaced additive set",
			slog.Uint64("conditions_id", uint64(conditionsID)),
			slog.Int64("deleted", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// FindByCompound returns the additive for a (conditions, compound) pair, or
// nil. The pair is unique outside full-replacement batches.
func (r *AdditiveRepository) FindByCompound(ctx context.Context, conditionsID, compoundID uint) (*domain.ChemicalAdditive, error) {
	var additive domain.ChemicalAdditive
	err := r.db.WithContext(ctx).
		Where("conditions_id = ? AND compound_id = ?", conditionsID, compoundID).
		First(&additive).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &additive, nil
}

// Create inserts a new additive row.
func (r *AdditiveRepository) Create(ctx context.Context, additive *domain.ChemicalAdditive) error {
	if err := r.db.WithContext(ctx).Create(additive).Error; err != nil {
		return fmt.Errorf("failed to insert additive: %w", err)
	}
	return nil
}

// Save persists changes to an existing additive row.
func (r *AdditiveRepository) Save(ctx context.Context, additive *domain.ChemicalAdditive) error {
	if err := r.db.WithContext(ctx).Save(additive).Error; err != nil {
		return fmt.Errorf("failed to save additive: %w", err)
	}
	return nil
}
