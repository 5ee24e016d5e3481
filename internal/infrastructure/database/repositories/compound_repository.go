package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/mhensley/labtrack/internal/core/domain"
)

// CompoundRepository persists the shared chemical compound catalog.
type CompoundRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewCompoundRepository creates a new repository instance
func NewCompoundRepository(db *gorm.DB, logger *slog.Logger) *CompoundRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &CompoundRepository{
		db:     db,
		logger: logger,
	}
}

// FindByName returns the compound with the given name (case-insensitive), or nil.
func (r *CompoundRepository) FindByName(ctx context.Context, name string) (*domain.Compound, error) {
	var compound domain.Compound
	err := r.db.WithContext(ctx).
		Where("lower(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&compound).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &compound, nil
}

// FindOrCreateByName returns the named compound, auto-creating a bare catalog
// entry when it does not exist yet. Additives reference compounds by name in
// uploads, so unseen names must not fail the row.
func (r *CompoundRepository) FindOrCreateByName(ctx context.Context, name string) (*domain.Compound, error) {
	compound, err := r.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if compound != nil {
		return compound, nil
	}

	compound = &domain.Compound{Name: strings.TrimSpace(name)}
	if err := r.db.WithContext(ctx).Create(compound).Error; err != nil {
		// Lost a race with a concurrent insert: re-read.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.FindByName(ctx, name)
		}
		return nil, fmt.Errorf("failed to insert compound: %w", err)
	}

	r.logger.Info("auto-created compound",
		slog.String("name", compound.Name),
		slog.Uint64("compound_id", uint64(compound.ID)))
	return compound, nil
}
