// Package lineage links derived experiments to the experiments they rerun or
// vary, based on the ID grammar alone.
package lineage

import (
	"context"
	"log/slog"

	"github.com/mhensley/labtrack/internal/core/domain"
	"github.com/mhensley/labtrack/internal/core/experimentid"
)

// ExperimentStore is the persistence surface the resolver needs.
type ExperimentStore interface {
	FindByCanonicalID(ctx context.Context, rawID string) (*domain.Experiment, error)
	FindCandidateOrphans(ctx context.Context, baseID string, excludeID uint) ([]domain.Experiment, error)
	Save(ctx context.Context, exp *domain.Experiment) error
}

// Resolver computes and maintains experiment lineage fields.
type Resolver struct {
	store  ExperimentStore
	logger *slog.Logger
}

// NewResolver creates a new lineage resolver
func NewResolver(store ExperimentStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// ResolveParent finds the experiment the given ID derives from, per the
// lineage cases: a sequential-only or treatment-only derivation descends
// from the bare base, a combined derivation from the sequential variant.
// Returns nil for base IDs and for derivations whose parent does not exist
// yet; an orphaned derivation is a legitimate state, not an error.
func (r *Resolver) ResolveParent(ctx context.Context, experimentID string) (*domain.Experiment, error) {
	parentID, ok := experimentid.ExpectedParentID(experimentID)
	if !ok {
		return nil, nil
	}
	return r.store.FindByCanonicalID(ctx, parentID)
}

// UpdateLineage recomputes an experiment's lineage fields from its current
// ID: base_experiment_id is always the parsed base (self-referential for
// base experiments), parent_experiment_fk points at the resolved parent or
// stays nil for base experiments and orphaned derivations. The experiment is
// modified in place, not persisted. Returns true when a field changed.
func (r *Resolver) UpdateLineage(ctx context.Context, exp *domain.Experiment) (bool, error) {
	if exp == nil || exp.ExperimentID == "" {
		return false, nil
	}

	baseID, _, _ := experimentid.ExtractLineage(exp.ExperimentID)

	var parentFK *uint
	parent, err := r.ResolveParent(ctx, exp.ExperimentID)
	if err != nil {
		return false, err
	}
	if parent != nil {
		parentFK = &parent.ID
	}

	changed := exp.BaseExperimentID == nil || *exp.BaseExperimentID != baseID ||
		!uintPtrEqual(exp.ParentExperimentFK, parentFK)

	exp.BaseExperimentID = &baseID
	exp.ParentExperimentFK = parentFK
	return changed, nil
}

// LinkOrphanedDerivations attaches pre-existing derivations whose expected
// parent is the given experiment. Called after an experiment is created so
// children uploaded before their parent get their link backfilled. Returns
// the number of derivations linked.
func (r *Resolver) LinkOrphanedDerivations(ctx context.Context, exp *domain.Experiment) (int, error) {
	if exp == nil || exp.ExperimentID == "" {
		return 0, nil
	}

	baseID, _, _ := experimentid.ExtractLineage(exp.ExperimentID)
	candidates, err := r.store.FindCandidateOrphans(ctx, baseID, exp.ID)
	if err != nil {
		return 0, err
	}

	canonical := experimentid.Canonical(exp.ExperimentID)
	linked := 0
	for i := range candidates {
		orphan := &candidates[i]
		expectedParent, ok := experimentid.ExpectedParentID(orphan.ExperimentID)
		if !ok || experimentid.Canonical(expectedParent) != canonical {
			continue
		}

		orphan.ParentExperimentFK = &exp.ID
		if err := r.store.Save(ctx, orphan); err != nil {
			return linked, err
		}
		linked++
	}

	if linked > 0 {
		r.logger.Info("linked orphaned derivations",
			slog.String("parent_experiment_id", exp.ExperimentID),
			slog.Int("linked", linked))
	}
	return linked, nil
}

func uintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
