package bulkupload

import (
	"context"

	"github.com/mhensley/labtrack/internal/core/domain"
	"github.com/mhensley/labtrack/internal/core/experimentid"
	"github.com/mhensley/labtrack/internal/infrastructure/parsers"
)

// processConditionsSheet applies conditions rows against the post-rename
// identities settled by the experiments phase. Experiments created with a
// parent this batch get the merge-then-override treatment: parent values
// first, then the row's own values on top.
func (s *Service) processConditionsSheet(ctx context.Context, sheet *parsers.ParseResult, st *batchState, result *Result) {
	if !sheetHasColumn(sheet, "experiment_id") {
		result.warnf("[conditions] missing required column 'experiment_id'; sheet skipped")
		return
	}

	for i, row := range sheet.Records {
		rowNum := i + 2
		step := "lookup"

		s.guardRow(sheetConditions, rowNum, &step, result, func() {
			expID := cellString(row["experiment_id"])
			if expID == "" {
				result.Skipped++
				result.warnf("[conditions] Row %d: missing experiment_id", rowNum)
				return
			}

			exp, err := s.experiments.FindByCanonicalID(ctx, expID)
			if err != nil {
				result.Skipped++
				result.warnf("[conditions] Row %d: %v", rowNum, err)
				return
			}
			if exp == nil {
				result.Skipped++
				s.warnConditionsMiss(rowNum, expID, st, result)
				return
			}

			step = "get-or-create conditions"
			cond, err := s.conditions.GetOrCreate(ctx, exp)
			if err != nil {
				result.Skipped++
				result.warnf("[conditions] Row %d: %v", rowNum, err)
				return
			}

			// Parent copy precedes the row's own values so user-supplied
			// fields always win.
			step = "parent copy"
			if parentID, ok := st.parentForCopy[exp.ID]; ok && !st.conditionsSeen[exp.ID] {
				if err := s.copyParentConditions(ctx, parentID, cond); err != nil {
					result.warnf("[conditions] Row %d: parent conditions copy failed: %v", rowNum, err)
				} else {
					result.infof("[conditions] Row %d: '%s' inherited conditions from its parent", rowNum, exp.ExperimentID)
				}
			}

			step = "apply fields"
			for _, col := range sheet.Columns {
				if !domain.IsConditionsColumn(col) {
					continue
				}
				value, present := row[col]
				if !present {
					continue
				}
				if err := domain.SetConditionsValue(cond, col, value); err != nil {
					// Field-degraded: the bad cell is dropped, the row stays.
					result.warnf("[conditions] Row %d (%s): %v", rowNum, exp.ExperimentID, err)
				}
			}

			// Backfill experiment_type from the ID when the sheet left it blank
			if cond.ExperimentType == nil || *cond.ExperimentType == "" {
				if parsed := experimentid.Parse(exp.ExperimentID); parsed.ExperimentType != "" {
					expType := string(parsed.ExperimentType)
					cond.ExperimentType = &expType
				}
			}

			step = "save"
			derived := domain.DeriveConditions(*cond)
			if err := s.conditions.Save(ctx, &derived); err != nil {
				result.Skipped++
				result.warnf("[conditions] Row %d: %v", rowNum, err)
				return
			}

			st.conditionsSeen[exp.ID] = true
		})
	}
}

// warnConditionsMiss differentiates why a conditions row's experiment could
// not be resolved, using the batch state from the experiments phase.
func (s *Service) warnConditionsMiss(rowNum int, expID string, st *batchState, result *Result) {
	canonical := experimentid.Canonical(expID)

	switch {
	case st.failed[canonical]:
		result.warnf("[conditions] Row %d: experiment_id '%s' skipped because its experiments row failed earlier in this batch", rowNum, expID)
	case st.processed[canonical] != 0:
		result.warnf("[conditions] Row %d: experiment_id '%s' was processed this batch but could not be re-read (possible transaction/session issue)", rowNum, expID)
	case st.renamed[canonical] != "":
		result.warnf("[conditions] Row %d: experiment_id '%s' was renamed to '%s' in this batch; use the new ID", rowNum, expID, st.renamed[canonical])
	default:
		result.warnf("[conditions] Row %d: experiment_id '%s' not found (after a rename, rows must use the new ID)", rowNum, expID)
	}
}

// copyParentConditionsFallback gives every derived experiment that got no
// conditions-sheet row a full copy of its parent's conditions, so derived
// experiments never end up without a conditions row.
func (s *Service) copyParentConditionsFallback(ctx context.Context, st *batchState, result *Result) {
	for childID, parentID := range st.parentForCopy {
		if st.conditionsSeen[childID] {
			continue
		}

		child, err := s.experiments.FindByID(ctx, childID)
		if err != nil || child == nil {
			result.warnf("[conditions] fallback copy failed for experiment #%d: %v", childID, err)
			continue
		}

		cond, err := s.conditions.GetOrCreate(ctx, child)
		if err != nil {
			result.warnf("[conditions] fallback copy failed for '%s': %v", child.ExperimentID, err)
			continue
		}
		if err := s.copyParentConditions(ctx, parentID, cond); err != nil {
			result.warnf("[conditions] fallback copy failed for '%s': %v", child.ExperimentID, err)
			continue
		}

		derived := domain.DeriveConditions(*cond)
		if err := s.conditions.Save(ctx, &derived); err != nil {
			result.warnf("[conditions] fallback copy failed for '%s': %v", child.ExperimentID, err)
			continue
		}

		st.conditionsSeen[childID] = true
		result.infof("[conditions] '%s' received a full conditions copy from its parent", child.ExperimentID)
	}
}

// copyParentConditions merges the parent's inheritable fields into cond. A
// parent without a conditions row contributes nothing.
func (s *Service) copyParentConditions(ctx context.Context, parentID uint, cond *domain.ExperimentalConditions) error {
	parentCond, err := s.conditions.FindByExperiment(ctx, parentID)
	if err != nil {
		return err
	}
	domain.CopyInheritableConditions(parentCond, cond)
	return nil
}

func sheetHasColumn(sheet *parsers.ParseResult, name string) bool {
	for _, col := range sheet.Columns {
		if col == name {
			return true
		}
	}
	return false
}
