package bulkupload

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mhensley/labtrack/internal/core/domain"
	"github.com/mhensley/labtrack/internal/core/experimentid"
	"github.com/mhensley/labtrack/internal/infrastructure/parsers"
	apperrors "github.com/mhensley/labtrack/internal/pkg/errors"
)

// experimentFields are the row-supplied experiment attributes. Pointers and
// empty strings mark fields the row did not supply, which updates must leave
// untouched.
type experimentFields struct {
	sampleID    *string
	researcher  string
	status      *domain.ExperimentStatus
	date        *time.Time
	initialNote string
}

func extractExperimentFields(row parsers.Record, parsed experimentid.ParsedExperimentID) experimentFields {
	var fields experimentFields

	if sample := cellString(row["sample_id"]); sample != "" {
		fields.sampleID = &sample
	}

	fields.researcher = cellString(row["researcher"])
	if fields.researcher == "" && parsed.ResearcherInitials != "" {
		// Auto-populate researcher from the ID when the row omits it
		fields.researcher = parsed.ResearcherInitials
	}

	// Invalid status text degrades to absent rather than rejecting the row
	if status, ok := domain.ParseExperimentStatus(cellString(row["status"])); ok {
		fields.status = &status
	}

	fields.date = parseOptionalDate(row["date"])
	fields.initialNote = cellString(row["initial_note"])
	return fields
}

// applyTo overwrites only the fields the row supplied.
func (f experimentFields) applyTo(exp *domain.Experiment) {
	if f.sampleID != nil {
		exp.SampleID = f.sampleID
	}
	if f.researcher != "" {
		exp.Researcher = f.researcher
	}
	if f.status != nil {
		exp.Status = *f.status
	}
	if f.date != nil {
		exp.Date = f.date
	}
}

// processExperimentsSheet runs the per-row decision table: create, update in
// place, rename, or reject. Later sheets depend on the identities this phase
// settles, so it always runs first.
func (s *Service) processExperimentsSheet(ctx context.Context, sheet *parsers.ParseResult, st *batchState, result *Result) {
	nextNumber, err := s.experiments.NextExperimentNumber(ctx)
	if err != nil {
		result.errorf("[experiments] failed to determine next experiment number: %v", err)
		return
	}

	for i, row := range sheet.Records {
		rowNum := i + 2 // 1-based plus header row
		step := "parse"

		s.guardRow(sheetExperiments, rowNum, &step, result, func() {
			expID := cellString(row["experiment_id"])
			if expID == "" {
				result.Skipped++
				result.warnf("[experiments] Row %d: missing experiment_id", rowNum)
				return
			}

			// ID grammar warnings are advisory: surfaced, row proceeds.
			parsed := experimentid.Parse(expID)
			for _, w := range parsed.Warnings {
				result.warnf("[experiments] Row %d (%s): %s", rowNum, expID, w)
			}

			overwrite := parseBool(row["overwrite"])
			st.overwriteByExpID[experimentid.Canonical(expID)] = overwrite
			oldID := cellString(row["old_experiment_id"])
			fields := extractExperimentFields(row, parsed)

			if oldID != "" {
				step = "rename"
				s.renameRow(ctx, rowNum, oldID, expID, overwrite, fields, st, result)
				return
			}

			step = "lookup"
			existing, err := s.experiments.FindByCanonicalID(ctx, expID)
			if err != nil {
				result.Skipped++
				result.warnf("[experiments] Row %d: %v", rowNum, err)
				st.markFailed(expID)
				return
			}

			switch {
			case existing == nil && overwrite:
				result.Skipped++
				result.warnf("[experiments] Row %d: overwrite=True but experiment_id '%s' does not exist", rowNum, expID)
				st.markFailed(expID)

			case existing != nil && !overwrite:
				result.Skipped++
				result.warnf("[experiments] Row %d: experiment_id '%s' already exists; set overwrite=True to update", rowNum, expID)
				st.markFailed(expID)

			case existing != nil:
				step = "update"
				s.updateRow(ctx, rowNum, existing, fields, st, result)

			default:
				step = "create"
				if s.createRow(ctx, rowNum, expID, parsed, nextNumber, fields, st, result) {
					nextNumber++
				}
			}
		})
	}
}

// renameRow handles rows carrying old_experiment_id. A rename whose target
// is still held by another experiment is a chain-rename conflict: that row
// alone is rejected with a reordering instruction, and the uniqueness
// violation never propagates past the row boundary.
func (s *Service) renameRow(ctx context.Context, rowNum int, oldID, newID string, overwrite bool, fields experimentFields, st *batchState, result *Result) {
	if !overwrite {
		result.Skipped++
		result.warnf("[experiments] Row %d: old_experiment_id given for '%s' but overwrite is not set; set overwrite=True to rename", rowNum, newID)
		st.markFailed(newID)
		return
	}

	exp, err := s.experiments.FindByCanonicalID(ctx, oldID)
	if err != nil {
		result.Skipped++
		result.warnf("[experiments] Row %d: %v", rowNum, err)
		st.markFailed(newID)
		return
	}
	if exp == nil {
		result.Skipped++
		result.warnf("[experiments] Row %d: old_experiment_id '%s' not found", rowNum, oldID)
		st.markFailed(newID)
		return
	}

	if err := s.experiments.Rename(ctx, exp, newID); err != nil {
		result.Skipped++
		if apperrors.HasCode(err, apperrors.ErrCodeRenameConflict) ||
			apperrors.HasCode(err, apperrors.ErrCodeDuplicateExperimentID) {
			result.warnf("[experiments] Row %d: CHAIN RENAME CONFLICT: cannot rename '%s' to '%s' because '%s' still identifies another experiment. Order rows so experiments are renamed AWAY from an ID before other rows rename INTO it, then re-upload.",
				rowNum, oldID, newID, newID)
		} else {
			result.warnf("[experiments] Row %d: rename of '%s' failed: %v", rowNum, oldID, err)
		}
		st.markFailed(newID)
		return
	}

	// Lineage is a function of the ID, so the new name means new lineage.
	if _, err := s.resolver.UpdateLineage(ctx, exp); err != nil {
		result.warnf("[experiments] Row %d: lineage recompute failed after rename: %v", rowNum, err)
	}
	fields.applyTo(exp)
	if err := s.experiments.Save(ctx, exp); err != nil {
		result.Skipped++
		result.warnf("[experiments] Row %d: %v", rowNum, err)
		st.markFailed(newID)
		return
	}

	s.logChange(ctx, exp, "rename", map[string]string{"experiment_id": oldID}, map[string]string{"experiment_id": exp.ExperimentID})

	st.markRenamed(oldID, exp.ExperimentID)
	st.markProcessed(exp.ExperimentID, exp.ID)
	result.Updated++
	s.attachInitialNote(ctx, rowNum, exp, fields.initialNote, result)
}

func (s *Service) updateRow(ctx context.Context, rowNum int, exp *domain.Experiment, fields experimentFields, st *batchState, result *Result) {
	fields.applyTo(exp)
	if err := s.experiments.Save(ctx, exp); err != nil {
		result.Skipped++
		result.warnf("[experiments] Row %d: %v", rowNum, err)
		st.markFailed(exp.ExperimentID)
		return
	}

	st.markProcessed(exp.ExperimentID, exp.ID)
	result.Updated++
	s.attachInitialNote(ctx, rowNum, exp, fields.initialNote, result)
}

func (s *Service) createRow(ctx context.Context, rowNum int, expID string, parsed experimentid.ParsedExperimentID, number int, fields experimentFields, st *batchState, result *Result) bool {
	exp := &domain.Experiment{
		ExperimentID:     expID,
		ExperimentNumber: number,
		SampleID:         fields.sampleID,
		Researcher:       fields.researcher,
		Status:           domain.StatusOngoing,
		Date:             fields.date,
	}
	if fields.status != nil {
		exp.Status = *fields.status
	}

	parent, err := s.resolver.ResolveParent(ctx, expID)
	if err != nil {
		result.Skipped++
		result.warnf("[experiments] Row %d: %v", rowNum, err)
		st.markFailed(expID)
		return false
	}

	// Inheritance happens at creation only: a blank sample_id takes the
	// parent's, and the parent is queued for the conditions copy.
	if parent != nil && exp.SampleID == nil {
		exp.SampleID = parent.SampleID
	}

	if _, err := s.resolver.UpdateLineage(ctx, exp); err != nil {
		result.Skipped++
		result.warnf("[experiments] Row %d: %v", rowNum, err)
		st.markFailed(expID)
		return false
	}

	if err := s.experiments.Create(ctx, exp); err != nil {
		result.Skipped++
		result.warnf("[experiments] Row %d: %v", rowNum, err)
		st.markFailed(expID)
		return false
	}

	if parent != nil {
		st.parentForCopy[exp.ID] = parent.ID
		result.infof("[experiments] Row %d: '%s' created as derivation of '%s'", rowNum, expID, parent.ExperimentID)
	} else if parsed.IsDerivation() {
		expectedParent, _ := experimentid.ExpectedParentID(expID)
		result.infof("[experiments] Row %d: '%s' created as orphaned derivation; parent '%s' does not exist yet", rowNum, expID, expectedParent)
	}

	// A newly created experiment may be the missing parent of derivations
	// uploaded earlier.
	if _, err := s.resolver.LinkOrphanedDerivations(ctx, exp); err != nil {
		result.warnf("[experiments] Row %d: orphan linking failed: %v", rowNum, err)
	}

	s.logChange(ctx, exp, "create", nil, map[string]string{"experiment_id": exp.ExperimentID})

	st.markProcessed(exp.ExperimentID, exp.ID)
	result.Created++
	s.attachInitialNote(ctx, rowNum, exp, fields.initialNote, result)
	return true
}

// attachInitialNote creates a fresh note row when the batch supplies one.
// Notes are never inherited and never overwritten.
func (s *Service) attachInitialNote(ctx context.Context, rowNum int, exp *domain.Experiment, text string, result *Result) {
	if text == "" {
		return
	}
	if err := s.experiments.AddNote(ctx, exp, text); err != nil {
		result.warnf("[experiments] Row %d: failed to attach note: %v", rowNum, err)
	}
}

func (s *Service) logChange(ctx context.Context, exp *domain.Experiment, changeType string, oldValues, newValues map[string]string) {
	entry := &domain.ModificationLog{
		ExperimentID:     exp.ExperimentID,
		ExperimentFK:     &exp.ID,
		ModifiedBy:       "bulk_upload",
		ModificationType: changeType,
		ModifiedTable:    "experiments",
	}
	if oldValues != nil {
		if data, err := json.Marshal(oldValues); err == nil {
			entry.OldValues = string(data)
		}
	}
	if newValues != nil {
		if data, err := json.Marshal(newValues); err == nil {
			entry.NewValues = string(data)
		}
	}
	// Audit trail is best-effort; the repository already logs failures.
	_ = s.experiments.LogModification(ctx, entry)
}
