package bulkupload

import (
	"context"

	"github.com/mhensley/labtrack/internal/core/experimentid"
	"github.com/mhensley/labtrack/internal/infrastructure/database/repositories"
)

// batchState is the explicit cross-phase state of one batch, keyed by
// canonical experiment ID throughout. It exists per call; nothing leaks
// between batches.
type batchState struct {
	// processed maps canonical IDs that succeeded in the experiments phase
	// to their surrogate keys (under the final, post-rename identity).
	processed map[string]uint

	// failed holds canonical IDs whose experiments row was rejected, so the
	// conditions phase can say "upstream failure" instead of "not found".
	failed map[string]bool

	// renamed maps the canonical OLD identity of each rename to the new raw
	// ID, for did-you-mean hints on later sheets.
	renamed map[string]string

	// overwriteByExpID captures each row's overwrite flag under the ID as
	// presented in the experiments sheet; the additives phase reads it as
	// its replace_all switch.
	overwriteByExpID map[string]bool

	// parentForCopy maps experiments created this batch to the parent they
	// inherit conditions from.
	parentForCopy map[uint]uint

	// conditionsSeen marks experiments that received a conditions-sheet row,
	// exempting them from the fallback parent copy.
	conditionsSeen map[uint]bool
}

func newBatchState() *batchState {
	return &batchState{
		processed:        make(map[string]uint),
		failed:           make(map[string]bool),
		renamed:          make(map[string]string),
		overwriteByExpID: make(map[string]bool),
		parentForCopy:    make(map[uint]uint),
		conditionsSeen:   make(map[uint]bool),
	}
}

func (st *batchState) markProcessed(experimentID string, pk uint) {
	st.processed[experimentid.Canonical(experimentID)] = pk
}

func (st *batchState) markFailed(experimentID string) {
	st.failed[experimentid.Canonical(experimentID)] = true
}

func (st *batchState) markRenamed(oldID, newID string) {
	st.renamed[experimentid.Canonical(oldID)] = newID
}

// invalidateCache drops every identity this batch touched from the canonical
// cache. Called at the experiments/conditions phase boundary.
func (st *batchState) invalidateCache(ctx context.Context, cache repositories.CanonicalCache) {
	if cache == nil {
		return
	}

	keys := make([]string, 0, len(st.processed)+len(st.renamed)*2)
	for canonical := range st.processed {
		keys = append(keys, canonical)
	}
	for oldCanonical, newID := range st.renamed {
		keys = append(keys, oldCanonical, experimentid.Canonical(newID))
	}
	if len(keys) > 0 {
		cache.Invalidate(ctx, keys...)
	}
}
