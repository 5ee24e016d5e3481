package bulkupload

import (
	"context"

	"github.com/mhensley/labtrack/internal/core/domain"
	"github.com/mhensley/labtrack/internal/core/experimentid"
	"github.com/mhensley/labtrack/internal/infrastructure/parsers"
)

var additiveRequiredColumns = []string{"experiment_id", "compound", "amount", "unit"}

type indexedRow struct {
	rowNum int
	row    parsers.Record
}

type additiveGroup struct {
	rawID string // as first presented in the sheet
	rows  []indexedRow
}

// processAdditivesSheet runs last: groups are keyed by post-rename canonical
// identity and the replace-all switch comes from the experiments-sheet
// overwrite flag captured earlier in the batch.
func (s *Service) processAdditivesSheet(ctx context.Context, sheet *parsers.ParseResult, st *batchState, result *Result) {
	for _, col := range additiveRequiredColumns {
		if !sheetHasColumn(sheet, col) {
			result.warnf("[additives] missing required column '%s'; sheet skipped", col)
			return
		}
	}

	for _, group := range groupAdditiveRows(sheet) {
		exp, err := s.experiments.FindByCanonicalID(ctx, group.rawID)
		if err != nil {
			result.warnf("[additives] experiment_id '%s': %v", group.rawID, err)
			continue
		}
		if exp == nil {
			canonical := experimentid.Canonical(group.rawID)
			if newID := st.renamed[canonical]; newID != "" {
				result.warnf("[additives] experiment_id '%s' was renamed to '%s' in this batch; use the new ID", group.rawID, newID)
			} else {
				result.warnf("[additives] experiment_id '%s' not found", group.rawID)
			}
			continue
		}

		cond, err := s.conditions.GetOrCreate(ctx, exp)
		if err != nil {
			result.warnf("[additives] experiment_id '%s': %v", group.rawID, err)
			continue
		}

		replaceAll := st.overwriteByExpID[experimentid.Canonical(exp.ExperimentID)]
		if replaceAll {
			deleted, err := s.additives.DeleteByConditions(ctx, cond.ID)
			if err != nil {
				result.warnf("[additives] experiment_id '%s': %v", group.rawID, err)
				continue
			}
			if deleted > 0 {
				result.infof("[additives] '%s': replaced %d existing additive row(s)", exp.ExperimentID, deleted)
			}
		}

		for _, item := range group.rows {
			step := "validate"
			s.guardRow(sheetAdditives, item.rowNum, &step, result, func() {
				s.upsertAdditiveRow(ctx, item, cond, replaceAll, true, result)
			})
		}
	}
}

// groupAdditiveRows buckets rows by canonical experiment ID, preserving both
// first-appearance group order and row order within each group.
func groupAdditiveRows(sheet *parsers.ParseResult) []additiveGroup {
	index := make(map[string]int)
	var groups []additiveGroup

	for i, row := range sheet.Records {
		rawID := cellString(row["experiment_id"])
		if rawID == "" {
			continue
		}
		canonical := experimentid.Canonical(rawID)

		at, ok := index[canonical]
		if !ok {
			at = len(groups)
			index[canonical] = at
			groups = append(groups, additiveGroup{rawID: rawID})
		}
		groups[at].rows = append(groups[at].rows, indexedRow{rowNum: i + 2, row: row})
	}
	return groups
}

// upsertAdditiveRow validates and persists one additive row. Under
// replaceAll every valid row becomes a fresh insert, duplicates included;
// otherwise the (conditions, compound) pair is upserted. autoCreateCompounds
// distinguishes the workbook path (unseen names become catalog entries) from
// the additives-only path (names must exist already).
func (s *Service) upsertAdditiveRow(ctx context.Context, item indexedRow, cond *domain.ExperimentalConditions, replaceAll, autoCreateCompounds bool, result *Result) {
	row := item.row

	compoundName := cellString(row["compound"])
	if compoundName == "" {
		result.Skipped++
		result.warnf("[additives] Row %d: missing compound name", item.rowNum)
		return
	}

	amount, err := parseFloat(row["amount"])
	if err != nil {
		result.Skipped++
		result.warnf("[additives] Row %d: invalid amount '%v'", item.rowNum, row["amount"])
		return
	}
	if amount <= 0 {
		result.Skipped++
		result.warnf("[additives] Row %d: amount must be > 0", item.rowNum)
		return
	}

	unitText := cellString(row["unit"])
	unit, ok := domain.ParseAmountUnit(unitText)
	if !ok {
		result.Skipped++
		result.warnf("[additives] Row %d: invalid unit '%s'", item.rowNum, unitText)
		return
	}

	var compound *domain.Compound
	if autoCreateCompounds {
		compound, err = s.compounds.FindOrCreateByName(ctx, compoundName)
	} else {
		compound, err = s.compounds.FindByName(ctx, compoundName)
		if err == nil && compound == nil {
			result.Skipped++
			result.warnf("[additives] Row %d: compound '%s' not found; upload the compound inventory first", item.rowNum, compoundName)
			return
		}
	}
	if err != nil {
		result.Skipped++
		result.warnf("[additives] Row %d: %v", item.rowNum, err)
		return
	}

	// Best-effort optional fields: unparsable values degrade to absent
	order := parseOptionalInt(row["order"])
	var method *string
	if m := cellString(row["method"]); m != "" {
		method = &m
	}

	var existing *domain.ChemicalAdditive
	if !replaceAll {
		existing, err = s.additives.FindByCompound(ctx, cond.ID, compound.ID)
		if err != nil {
			result.Skipped++
			result.warnf("[additives] Row %d: %v", item.rowNum, err)
			return
		}
	}

	if existing != nil {
		existing.Amount = amount
		existing.Unit = unit
		existing.AdditionOrder = order
		existing.AdditionMethod = method
		derived := domain.DeriveAdditive(*existing, compound, cond)
		if err := s.additives.Save(ctx, &derived); err != nil {
			result.Skipped++
			result.warnf("[additives] Row %d: %v", item.rowNum, err)
		} else {
			result.Updated++
		}
		return
	}

	additive := domain.ChemicalAdditive{
		ConditionsID:   cond.ID,
		CompoundID:     compound.ID,
		Amount:         amount,
		Unit:           unit,
		AdditionOrder:  order,
		AdditionMethod: method,
	}
	derived := domain.DeriveAdditive(additive, compound, cond)
	if err := s.additives.Create(ctx, &derived); err != nil {
		result.Skipped++
		result.warnf("[additives] Row %d: %v", item.rowNum, err)
		return
	}
	result.Created++
}

// UpsertAdditives processes a flat additives-only sheet: strict per-compound
// upserts against existing experiments, with no replace semantics and no
// compound auto-creation.
func (s *Service) UpsertAdditives(ctx context.Context, sheet *parsers.ParseResult) *Result {
	result := &Result{}

	for _, col := range additiveRequiredColumns {
		if !sheetHasColumn(sheet, col) {
			result.errorf("missing required column '%s'", col)
			return result
		}
	}

	for i, row := range sheet.Records {
		rowNum := i + 2
		step := "validate"
		item := indexedRow{rowNum: rowNum, row: row}

		s.guardRow(sheetAdditives, rowNum, &step, result, func() {
			expID := cellString(row["experiment_id"])
			if expID == "" {
				result.Skipped++
				result.warnf("[additives] Row %d: missing experiment_id", rowNum)
				return
			}

			exp, err := s.experiments.FindByCanonicalID(ctx, expID)
			if err != nil {
				result.Skipped++
				result.warnf("[additives] Row %d: %v", rowNum, err)
				return
			}
			if exp == nil {
				result.Skipped++
				result.warnf("[additives] Row %d: experiment_id '%s' not found", rowNum, expID)
				return
			}

			cond, err := s.conditions.GetOrCreate(ctx, exp)
			if err != nil {
				result.Skipped++
				result.warnf("[additives] Row %d: %v", rowNum, err)
				return
			}

			s.upsertAdditiveRow(ctx, item, cond, false, false, result)
		})
	}

	return result
}
