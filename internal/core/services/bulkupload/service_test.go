package bulkupload

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mhensley/labtrack/internal/core/domain"
	"github.com/mhensley/labtrack/internal/infrastructure/parsers"
)

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "bulkupload_test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&domain.Experiment{},
		&domain.ExperimentNote{},
		&domain.ModificationLog{},
		&domain.ExperimentalConditions{},
		&domain.Compound{},
		&domain.ChemicalAdditive{},
	))

	return NewService(db, nil, nil), db
}

func newSheet(columns []string, rows ...parsers.Record) *parsers.ParseResult {
	return &parsers.ParseResult{
		Records:   rows,
		TotalRows: len(rows),
		Columns:   columns,
		Format:    "XLSX",
	}
}

func getExperiment(t *testing.T, db *gorm.DB, id uint) *domain.Experiment {
	t.Helper()
	var exp domain.Experiment
	require.NoError(t, db.First(&exp, id).Error)
	return &exp
}

func getConditions(t *testing.T, db *gorm.DB, experimentFK uint) *domain.ExperimentalConditions {
	t.Helper()
	var cond domain.ExperimentalConditions
	require.NoError(t, db.Where("experiment_fk = ?", experimentFK).First(&cond).Error)
	return &cond
}

func countAdditives(t *testing.T, db *gorm.DB, conditionsID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&domain.ChemicalAdditive{}).
		Where("conditions_id = ?", conditionsID).Count(&count).Error)
	return count
}

func hasWarningContaining(result *Result, fragments ...string) bool {
	for _, w := range result.Warnings {
		matched := true
		for _, fragment := range fragments {
			if !strings.Contains(w, fragment) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func TestUpsertMissingExperimentsSheetIsBatchFatal(t *testing.T) {
	svc, _ := setupService(t)

	result := svc.Upsert(context.Background(), parsers.Workbook{
		"conditions": newSheet([]string{"experiment_id"}),
	})

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "experiments")
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Updated)
}

func TestUpsertCreatesExperiments(t *testing.T) {
	svc, db := setupService(t)

	result := svc.Upsert(context.Background(), parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "researcher", "status", "sample_id", "initial_note"},
			parsers.Record{"experiment_id": "Serum_MH_101", "researcher": "MH", "status": "ONGOING", "sample_id": "RS-77", "initial_note": "baseline run"},
			parsers.Record{"experiment_id": "Serum_MH_101-2", "researcher": "", "status": "", "sample_id": "", "initial_note": ""},
		),
	})

	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Updated)

	var base, child domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "Serum_MH_101").First(&base).Error)
	require.NoError(t, db.Where("experiment_id = ?", "Serum_MH_101-2").First(&child).Error)

	// Sequential experiment numbers
	assert.Equal(t, 1, base.ExperimentNumber)
	assert.Equal(t, 2, child.ExperimentNumber)

	// Researcher auto-populated from the ID when omitted
	assert.Equal(t, "MH", child.Researcher)

	// Lineage: base is self-referential, child points at base
	require.NotNil(t, base.BaseExperimentID)
	assert.Equal(t, "Serum_MH_101", *base.BaseExperimentID)
	assert.Nil(t, base.ParentExperimentFK)
	require.NotNil(t, child.ParentExperimentFK)
	assert.Equal(t, base.ID, *child.ParentExperimentFK)

	// Blank sample_id inherits the parent's
	require.NotNil(t, child.SampleID)
	assert.Equal(t, "RS-77", *child.SampleID)

	// Note attached with denormalized experiment_id
	var note domain.ExperimentNote
	require.NoError(t, db.Where("experiment_fk = ?", base.ID).First(&note).Error)
	assert.Equal(t, "Serum_MH_101", note.ExperimentID)
	assert.Equal(t, "baseline run", note.NoteText)
}

func TestUpsertDecisionTable(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	seed := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "researcher"},
			parsers.Record{"experiment_id": "HPHT_MH_001", "researcher": "MH"},
		),
	})
	require.Equal(t, 1, seed.Created)

	t.Run("existing without overwrite is rejected", func(t *testing.T) {
		result := svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id", "overwrite"},
				parsers.Record{"experiment_id": "HPHT_MH_001", "overwrite": "no"},
			),
		})
		assert.Equal(t, 0, result.Created)
		assert.Equal(t, 0, result.Updated)
		assert.Equal(t, 1, result.Skipped)
		assert.True(t, hasWarningContaining(result, "already exists", "overwrite=True"))
	})

	t.Run("existing matched by cosmetic spelling variant", func(t *testing.T) {
		result := svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id", "overwrite"},
				parsers.Record{"experiment_id": "hpht-mh-001", "overwrite": "no"},
			),
		})
		assert.Equal(t, 1, result.Skipped, "canonical match must catch spelling variants")
	})

	t.Run("overwrite updates only supplied fields", func(t *testing.T) {
		result := svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id", "overwrite", "status"},
				parsers.Record{"experiment_id": "HPHT_MH_001", "overwrite": "yes", "status": "COMPLETED"},
			),
		})
		assert.Equal(t, 1, result.Updated)

		var exp domain.Experiment
		require.NoError(t, db.Where("experiment_id = ?", "HPHT_MH_001").First(&exp).Error)
		assert.Equal(t, domain.StatusCompleted, exp.Status)
		assert.Equal(t, "MH", exp.Researcher, "omitted fields stay untouched")
	})

	t.Run("overwrite on missing experiment is rejected", func(t *testing.T) {
		result := svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id", "overwrite"},
				parsers.Record{"experiment_id": "HPHT_MH_999", "overwrite": "yes"},
			),
		})
		assert.Equal(t, 1, result.Skipped)
		assert.True(t, hasWarningContaining(result, "does not exist"))
	})

	t.Run("missing experiment_id is rejected", func(t *testing.T) {
		result := svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id"},
				parsers.Record{"experiment_id": "  "},
			),
		})
		assert.Equal(t, 1, result.Skipped)
		assert.True(t, hasWarningContaining(result, "missing experiment_id"))
	})
}

func TestSimpleRenameEndToEnd(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	seed := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "researcher", "initial_note"},
			parsers.Record{"experiment_id": "HPHT_MH_001", "researcher": "MH", "initial_note": "pre-rename note"},
		),
	})
	require.Equal(t, 1, seed.Created)

	var before domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "HPHT_MH_001").First(&before).Error)

	result := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "old_experiment_id", "overwrite"},
			parsers.Record{"experiment_id": "HPHT_MH_001_Desorption", "old_experiment_id": "HPHT_MH_001", "overwrite": "yes"},
		),
	})

	assert.Empty(t, result.Errors)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Updated)

	// Surrogate key unchanged, identity renamed
	after := getExperiment(t, db, before.ID)
	assert.Equal(t, "HPHT_MH_001_Desorption", after.ExperimentID)

	// Lineage recomputed from the new ID
	require.NotNil(t, after.BaseExperimentID)
	assert.Equal(t, "HPHT_MH_001", *after.BaseExperimentID)

	// Old identity is gone
	var count int64
	require.NoError(t, db.Model(&domain.Experiment{}).
		Where("experiment_id = ?", "HPHT_MH_001").Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// Denormalized note copy rewritten
	var note domain.ExperimentNote
	require.NoError(t, db.Where("experiment_fk = ?", before.ID).First(&note).Error)
	assert.Equal(t, "HPHT_MH_001_Desorption", note.ExperimentID)
}

func TestRenameOldIDNotFound(t *testing.T) {
	svc, _ := setupService(t)

	result := svc.Upsert(context.Background(), parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "old_experiment_id", "overwrite"},
			parsers.Record{"experiment_id": "HPHT_MH_002", "old_experiment_id": "HPHT_MH_404", "overwrite": "yes"},
		),
	})

	assert.Equal(t, 1, result.Skipped)
	assert.True(t, hasWarningContaining(result, "HPHT_MH_404", "not found"))
}

func TestRenameWithoutOverwriteIsRejected(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	require.Equal(t, 1, svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "HPHT_MH_001"},
		),
	}).Created)

	result := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "old_experiment_id", "overwrite"},
			parsers.Record{"experiment_id": "HPHT_MH_001_Desorption", "old_experiment_id": "HPHT_MH_001", "overwrite": "no"},
		),
	})

	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.True(t, hasWarningContaining(result, "overwrite"))

	var count int64
	require.NoError(t, db.Model(&domain.Experiment{}).
		Where("experiment_id = ?", "HPHT_MH_001").Count(&count).Error)
	assert.Equal(t, int64(1), count, "no rename happened")
}

func TestChainRenameCorrectOrder(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	seed := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "researcher"},
			parsers.Record{"experiment_id": "HPHT_MH_036", "researcher": "MH"},
			parsers.Record{"experiment_id": "HPHT_MH_036-2", "researcher": "MH"},
			parsers.Record{"experiment_id": "HPHT_MH_036-5", "researcher": "MH"},
		),
	})
	require.Equal(t, 3, seed.Created)

	var exp2, exp5 domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "HPHT_MH_036-2").First(&exp2).Error)
	require.NoError(t, db.Where("experiment_id = ?", "HPHT_MH_036-5").First(&exp5).Error)

	// Rename away from -2 before renaming -5 into it.
	result := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "old_experiment_id", "overwrite"},
			parsers.Record{"experiment_id": "HPHT_MH_036_Desorption", "old_experiment_id": "HPHT_MH_036-2", "overwrite": "yes"},
			parsers.Record{"experiment_id": "HPHT_MH_036-2", "old_experiment_id": "HPHT_MH_036-5", "overwrite": "yes"},
		),
	})

	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 0, result.Skipped)

	assert.Equal(t, "HPHT_MH_036_Desorption", getExperiment(t, db, exp2.ID).ExperimentID)
	assert.Equal(t, "HPHT_MH_036-2", getExperiment(t, db, exp5.ID).ExperimentID)

	var count int64
	require.NoError(t, db.Model(&domain.Experiment{}).
		Where("experiment_id = ?", "HPHT_MH_036-5").Count(&count).Error)
	assert.Equal(t, int64(0), count, "vacated identity no longer exists")
}

func TestChainRenameWrongOrder(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	seed := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "researcher"},
			parsers.Record{"experiment_id": "HPHT_MH_036", "researcher": "MH"},
			parsers.Record{"experiment_id": "HPHT_MH_036-2", "researcher": "MH"},
			parsers.Record{"experiment_id": "HPHT_MH_036-5", "researcher": "MH"},
		),
	})
	require.Equal(t, 3, seed.Created)

	var exp2, exp5 domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "HPHT_MH_036-2").First(&exp2).Error)
	require.NoError(t, db.Where("experiment_id = ?", "HPHT_MH_036-5").First(&exp5).Error)

	// -5 claims -2 while -2 still holds it: that row must fail with an
	// actionable warning, and the other rename must still go through.
	result := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "old_experiment_id", "overwrite"},
			parsers.Record{"experiment_id": "HPHT_MH_036-2", "old_experiment_id": "HPHT_MH_036-5", "overwrite": "yes"},
			parsers.Record{"experiment_id": "HPHT_MH_036_Desorption", "old_experiment_id": "HPHT_MH_036-2", "overwrite": "yes"},
		),
	})

	assert.Equal(t, 1, result.Updated, "the non-conflicting rename still succeeds")
	assert.Equal(t, 1, result.Skipped)
	assert.True(t, hasWarningContaining(result, "CHAIN RENAME", "HPHT_MH_036-5", "HPHT_MH_036-2"),
		"warning must name both conflicting IDs")
	assert.True(t, hasWarningContaining(result, "AWAY from", "INTO"),
		"warning must explain the required ordering")

	// The conflicted row did nothing; the valid row renamed.
	assert.Equal(t, "HPHT_MH_036-5", getExperiment(t, db, exp5.ID).ExperimentID)
	assert.Equal(t, "HPHT_MH_036_Desorption", getExperiment(t, db, exp2.ID).ExperimentID)
}

func TestConditionsInheritanceMergeThenOverride(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	seed := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "researcher"},
			parsers.Record{"experiment_id": "Serum_MH_101", "researcher": "MH"},
		),
		"conditions": newSheet(
			[]string{"experiment_id", "temperature_c", "initial_ph"},
			parsers.Record{"experiment_id": "Serum_MH_101", "temperature_c": "80", "initial_ph": "7"},
		),
	})
	require.Empty(t, seed.Errors)

	result := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "Serum_MH_101-2"},
		),
		"conditions": newSheet(
			[]string{"experiment_id", "initial_ph"},
			parsers.Record{"experiment_id": "Serum_MH_101-2", "initial_ph": "5"},
		),
	})
	require.Empty(t, result.Errors)

	var child domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "Serum_MH_101-2").First(&child).Error)
	cond := getConditions(t, db, child.ID)

	// Parent value survives where the row was silent; the supplied value wins.
	require.NotNil(t, cond.TemperatureC)
	assert.Equal(t, 80.0, *cond.TemperatureC)
	require.NotNil(t, cond.InitialPH)
	assert.Equal(t, 5.0, *cond.InitialPH)
}

func TestConditionsFallbackParentCopy(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	seed := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "Serum_MH_101"},
		),
		"conditions": newSheet(
			[]string{"experiment_id", "temperature_c", "rock_mass_g", "water_volume_ml"},
			parsers.Record{"experiment_id": "Serum_MH_101", "temperature_c": "80", "rock_mass_g": "10", "water_volume_ml": "50"},
		),
	})
	require.Empty(t, seed.Errors)

	// Derived child with NO conditions row at all
	result := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "Serum_MH_101_Desorption"},
		),
	})
	require.Empty(t, result.Errors)

	var child domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "Serum_MH_101_Desorption").First(&child).Error)
	cond := getConditions(t, db, child.ID)

	require.NotNil(t, cond.TemperatureC)
	assert.Equal(t, 80.0, *cond.TemperatureC)

	// Derived fields recomputed on the copy
	require.NotNil(t, cond.WaterToRockRatio)
	assert.InDelta(t, 5.0, *cond.WaterToRockRatio, 1e-9)
}

func TestAdditivesNeverInherited(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	seed := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "Serum_MH_101"},
		),
		"conditions": newSheet(
			[]string{"experiment_id", "temperature_c"},
			parsers.Record{"experiment_id": "Serum_MH_101", "temperature_c": "80"},
		),
		"additives": newSheet(
			[]string{"experiment_id", "compound", "amount", "unit"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "2.5", "unit": "g"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "KCl", "amount": "1.0", "unit": "g"},
		),
	})
	require.Empty(t, seed.Errors)

	var parent domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "Serum_MH_101").First(&parent).Error)
	require.Equal(t, int64(2), countAdditives(t, db, getConditions(t, db, parent.ID).ID))

	// Derived child: conditions inherit, additives must not.
	result := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "Serum_MH_101-2"},
		),
		"additives": newSheet(
			[]string{"experiment_id", "compound", "amount", "unit"},
		),
	})
	require.Empty(t, result.Errors)

	var child domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "Serum_MH_101-2").First(&child).Error)
	cond := getConditions(t, db, child.ID)

	require.NotNil(t, cond.TemperatureC, "conditions inherited")
	assert.Equal(t, int64(0), countAdditives(t, db, cond.ID), "additives never inherited")
}

func TestAdditiveValidation(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	require.Equal(t, 1, svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "Serum_MH_101"},
		),
	}).Created)

	result := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "overwrite"},
			parsers.Record{"experiment_id": "Serum_MH_101", "overwrite": "yes"},
		),
		"additives": newSheet(
			[]string{"experiment_id", "compound", "amount", "unit"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "-1", "unit": "g"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "abc", "unit": "g"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "2.5", "unit": "bogus"},
		),
	})

	assert.Equal(t, 3, result.Skipped)
	assert.True(t, hasWarningContaining(result, "amount must be > 0"))
	assert.True(t, hasWarningContaining(result, "invalid amount", "abc"))
	assert.True(t, hasWarningContaining(result, "invalid unit", "bogus"))

	var exp domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "Serum_MH_101").First(&exp).Error)
	assert.Equal(t, int64(0), countAdditives(t, db, getConditions(t, db, exp.ID).ID),
		"no additive row created or mutated")
}

func TestAdditiveReplaceAllVersusUpsert(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	seed := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "Serum_MH_101"},
		),
		"additives": newSheet(
			[]string{"experiment_id", "compound", "amount", "unit", "order"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "2.5", "unit": "g", "order": "1"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "KCl", "amount": "1.0", "unit": "g", "order": "2"},
		),
	})
	require.Empty(t, seed.Errors)

	var exp domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "Serum_MH_101").First(&exp).Error)
	condID := getConditions(t, db, exp.ID).ID

	t.Run("per-compound upsert without overwrite", func(t *testing.T) {
		result := svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id", "overwrite"},
				parsers.Record{"experiment_id": "Serum_MH_101", "overwrite": "yes"},
			),
			"additives": newSheet(
				[]string{"experiment_id", "compound", "amount", "unit"},
				parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "9.9", "unit": "g"},
			),
		})
		require.Empty(t, result.Errors)

		// overwrite=yes means replace-all for that experiment's additives
		assert.Equal(t, int64(1), countAdditives(t, db, condID))

		var additive domain.ChemicalAdditive
		require.NoError(t, db.Where("conditions_id = ?", condID).First(&additive).Error)
		assert.Equal(t, 9.9, additive.Amount)
	})

	t.Run("upsert updates existing pair without overwrite", func(t *testing.T) {
		result := svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id", "overwrite"},
				parsers.Record{"experiment_id": "Serum_MH_101", "overwrite": ""},
			),
			"additives": newSheet(
				[]string{"experiment_id", "compound", "amount", "unit"},
				parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "4.2", "unit": "g"},
				parsers.Record{"experiment_id": "Serum_MH_101", "compound": "MgSO4", "amount": "1.1", "unit": "mg"},
			),
		})
		// experiments row itself is rejected (exists, no overwrite) but the
		// additives still target the existing experiment
		assert.True(t, hasWarningContaining(result, "already exists"))

		assert.Equal(t, int64(2), countAdditives(t, db, condID))

		var nacl domain.ChemicalAdditive
		require.NoError(t, db.Where("conditions_id = ?", condID).
			Joins("JOIN compounds ON compounds.id = chemical_additives.compound_id").
			Where("compounds.name = ?", "NaCl").
			First(&nacl).Error)
		assert.Equal(t, 4.2, nacl.Amount, "existing pair updated in place")
	})
}

func TestAdditiveReplaceAllKeepsDuplicates(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	result := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "Serum_MH_101"},
		),
		"additives": newSheet(
			[]string{"experiment_id", "compound", "amount", "unit"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "1.0", "unit": "g"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "2.0", "unit": "g"},
		),
	})
	require.Empty(t, result.Errors)

	var exp domain.Experiment
	require.NoError(t, db.Where("experiment_id = ?", "Serum_MH_101").First(&exp).Error)
	// New experiments default to replace-all-off, so duplicate compounds
	// upsert into one row here; force replace-all to check duplicates insert.
	replaced := svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id", "overwrite"},
			parsers.Record{"experiment_id": "Serum_MH_101", "overwrite": "yes"},
		),
		"additives": newSheet(
			[]string{"experiment_id", "compound", "amount", "unit"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "1.0", "unit": "g"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "2.0", "unit": "g"},
		),
	})
	require.Empty(t, replaced.Errors)

	assert.Equal(t, int64(2), countAdditives(t, db, getConditions(t, db, exp.ID).ID),
		"full replacement keeps duplicate rows as-is")
}

func TestConditionsWarningsDifferentiate(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	require.Equal(t, 1, svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "Serum_MH_101"},
		),
	}).Created)

	t.Run("upstream failure", func(t *testing.T) {
		result := svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id", "overwrite"},
				// rejected: exists, overwrite not set
				parsers.Record{"experiment_id": "Serum_MH_101", "overwrite": "no"},
			),
			"conditions": newSheet(
				[]string{"experiment_id", "temperature_c"},
				parsers.Record{"experiment_id": "Serum_MH_101", "temperature_c": "80"},
			),
		})
		// conditions row still resolves (the experiment exists in the store),
		// so provoke the upstream-failure path with a genuinely failed ID
		_ = result

		result = svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id", "overwrite"},
				// rejected: overwrite=True but does not exist
				parsers.Record{"experiment_id": "Serum_MH_999", "overwrite": "yes"},
			),
			"conditions": newSheet(
				[]string{"experiment_id", "temperature_c"},
				parsers.Record{"experiment_id": "Serum_MH_999", "temperature_c": "80"},
			),
		})
		assert.True(t, hasWarningContaining(result, "Serum_MH_999", "failed earlier in this batch"))
	})

	t.Run("renamed hint", func(t *testing.T) {
		result := svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id", "old_experiment_id", "overwrite"},
				parsers.Record{"experiment_id": "Serum_MH_101_Desorption", "old_experiment_id": "Serum_MH_101", "overwrite": "yes"},
			),
			"conditions": newSheet(
				[]string{"experiment_id", "temperature_c"},
				// still using the pre-rename ID
				parsers.Record{"experiment_id": "Serum_MH_101", "temperature_c": "80"},
			),
		})
		assert.True(t, hasWarningContaining(result, "was renamed to", "Serum_MH_101_Desorption"))
	})

	t.Run("never mentioned", func(t *testing.T) {
		result := svc.Upsert(ctx, parsers.Workbook{
			"experiments": newSheet(
				[]string{"experiment_id", "overwrite"},
				parsers.Record{"experiment_id": "Serum_MH_102"},
			),
			"conditions": newSheet(
				[]string{"experiment_id", "temperature_c"},
				parsers.Record{"experiment_id": "CF_XX_777", "temperature_c": "80"},
			),
		})
		assert.True(t, hasWarningContaining(result, "CF_XX_777", "not found"))
	})
}

func TestUpsertAdditivesStandalone(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	require.Equal(t, 1, svc.Upsert(ctx, parsers.Workbook{
		"experiments": newSheet(
			[]string{"experiment_id"},
			parsers.Record{"experiment_id": "Serum_MH_101"},
		),
	}).Created)
	require.NoError(t, db.Create(&domain.Compound{Name: "NaCl"}).Error)

	t.Run("compound must pre-exist", func(t *testing.T) {
		result := svc.UpsertAdditives(ctx, newSheet(
			[]string{"experiment_id", "compound", "amount", "unit"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "Unobtainium", "amount": "1.0", "unit": "g"},
		))
		assert.Equal(t, 0, result.Created)
		assert.True(t, hasWarningContaining(result, "Unobtainium", "not found"))
	})

	t.Run("upserts per compound", func(t *testing.T) {
		first := svc.UpsertAdditives(ctx, newSheet(
			[]string{"experiment_id", "compound", "amount", "unit"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "1.0", "unit": "g"},
		))
		assert.Equal(t, 1, first.Created)

		second := svc.UpsertAdditives(ctx, newSheet(
			[]string{"experiment_id", "compound", "amount", "unit"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl", "amount": "3.0", "unit": "g"},
		))
		assert.Equal(t, 1, second.Updated)
		assert.Equal(t, 0, second.Created)

		var exp domain.Experiment
		require.NoError(t, db.Where("experiment_id = ?", "Serum_MH_101").First(&exp).Error)
		assert.Equal(t, int64(1), countAdditives(t, db, getConditions(t, db, exp.ID).ID))
	})

	t.Run("blank experiment_id is skipped with a warning", func(t *testing.T) {
		result := svc.UpsertAdditives(ctx, newSheet(
			[]string{"experiment_id", "compound", "amount", "unit"},
			parsers.Record{"experiment_id": "", "compound": "NaCl", "amount": "1.0", "unit": "g"},
		))
		assert.Equal(t, 1, result.Skipped)
		assert.True(t, hasWarningContaining(result, "Row 2", "missing experiment_id"))
	})

	t.Run("missing required column is fatal", func(t *testing.T) {
		result := svc.UpsertAdditives(ctx, newSheet(
			[]string{"experiment_id", "compound"},
			parsers.Record{"experiment_id": "Serum_MH_101", "compound": "NaCl"},
		))
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "amount")
	})
}
