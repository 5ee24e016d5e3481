package domain

import (
	"time"
)

// Compound is a reusable chemical compound shared across experiments.
type Compound struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Name      string  `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Formula   *string `gorm:"size:50" json:"formula,omitempty"`
	CASNumber *string `gorm:"column:cas_number;size:20;uniqueIndex" json:"cas_number,omitempty"`

	MolecularWeight *float64 `gorm:"column:molecular_weight" json:"molecular_weight,omitempty"` // g/mol
	Density         *float64 `json:"density,omitempty"`                                         // g/mL
	HazardClass     *string  `gorm:"size:50" json:"hazard_class,omitempty"`

	Supplier      *string `gorm:"size:100" json:"supplier,omitempty"`
	CatalogNumber *string `gorm:"size:50" json:"catalog_number,omitempty"`
	Notes         *string `gorm:"size:500" json:"notes,omitempty"`

	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime" json:"updated_at,omitempty"`
}

// TableName specifies the table name for GORM
func (Compound) TableName() string {
	return "compounds"
}

// ChemicalAdditive is a dosed compound on an experiment's conditions row.
//
// (ConditionsID, CompoundID) is kept unique by the upload path rather than a
// database constraint: a full-replacement batch may legitimately insert the
// same compound twice.
type ChemicalAdditive struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ConditionsID uint       `gorm:"column:conditions_id;not null;index:idx_additive_conditions_compound" json:"conditions_id"`
	CompoundID   uint       `gorm:"column:compound_id;not null;index:idx_additive_conditions_compound" json:"compound_id"`
	Amount       float64    `gorm:"not null" json:"amount"`
	Unit         AmountUnit `gorm:"type:varchar(10);not null" json:"unit"`

	AdditionOrder  *int    `gorm:"column:addition_order" json:"addition_order,omitempty"`
	AdditionMethod *string `gorm:"column:addition_method;size:50" json:"addition_method,omitempty"` // solid, solution, dropwise

	// Derived, recomputed by DeriveAdditive after every write
	MassInGrams        *float64 `gorm:"column:mass_in_grams" json:"mass_in_grams,omitempty"`
	MolesAdded         *float64 `gorm:"column:moles_added" json:"moles_added,omitempty"`
	FinalConcentration *float64 `gorm:"column:final_concentration" json:"final_concentration,omitempty"`
	ConcentrationUnits *string  `gorm:"column:concentration_units;size:20" json:"concentration_units,omitempty"`

	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime" json:"updated_at,omitempty"`

	Compound *Compound `gorm:"foreignKey:CompoundID" json:"compound,omitempty"`
}

// TableName specifies the table name for GORM
func (ChemicalAdditive) TableName() string {
	return "chemical_additives"
}

// DeriveAdditive recomputes the derived dose fields (normalized mass, moles,
// final solution concentration) from the raw amount/unit plus whatever the
// compound and conditions provide. Missing inputs leave the corresponding
// derived field nil. Pure: the receiver is not mutated.
func DeriveAdditive(a ChemicalAdditive, compound *Compound, cond *ExperimentalConditions) ChemicalAdditive {
	a.MassInGrams = nil
	a.MolesAdded = nil
	a.FinalConcentration = nil
	a.ConcentrationUnits = nil

	var mw *float64
	if compound != nil {
		mw = compound.MolecularWeight
	}
	var volumeL *float64
	if cond != nil && cond.WaterVolumeML != nil && *cond.WaterVolumeML > 0 {
		v := *cond.WaterVolumeML / 1000.0
		volumeL = &v
	}

	setConc := func(value float64, units string) {
		a.FinalConcentration = &value
		a.ConcentrationUnits = &units
	}
	setMass := func(grams float64) {
		a.MassInGrams = &grams
		if mw != nil && *mw > 0 {
			moles := grams / *mw
			a.MolesAdded = &moles
		}
	}
	setMoles := func(moles float64) {
		a.MolesAdded = &moles
		if mw != nil {
			grams := moles * *mw
			a.MassInGrams = &grams
		}
	}

	switch a.Unit {
	case UnitPPM:
		// ppm is read as mg per liter of water
		if volumeL != nil {
			setMass(a.Amount * *volumeL / 1000.0)
		}
		setConc(a.Amount, "ppm")

	case UnitMillimolar:
		if volumeL != nil {
			setMoles(a.Amount / 1000.0 * *volumeL)
		}
		setConc(a.Amount, "mM")

	case UnitMolar:
		if volumeL != nil {
			setMoles(a.Amount * *volumeL)
		}
		setConc(a.Amount, "M")

	case UnitMicromole, UnitMillimole, UnitMole:
		scale := map[AmountUnit]float64{
			UnitMicromole: 1e-6,
			UnitMillimole: 1e-3,
			UnitMole:      1.0,
		}[a.Unit]
		moles := a.Amount * scale
		setMoles(moles)
		if volumeL != nil {
			setConc(moles / *volumeL * 1000.0, "mM")
		}

	default:
		if grams, ok := amountInGrams(a.Amount, a.Unit, compound); ok {
			setMass(grams)
			if volumeL != nil {
				// same mg/L convention as the ppm input branch
				setConc(grams / *volumeL * 1000.0, "ppm")
			}
		}
	}

	return a
}

// amountInGrams converts a mass- or volume-style amount to grams. Volume
// units use the compound's density when recorded, otherwise water's 1 g/mL.
func amountInGrams(amount float64, unit AmountUnit, compound *Compound) (float64, bool) {
	density := 1.0
	if compound != nil && compound.Density != nil && *compound.Density > 0 {
		density = *compound.Density
	}

	switch unit {
	case UnitGram:
		return amount, true
	case UnitMilligram:
		return amount * 0.001, true
	case UnitMicrogram:
		return amount * 1e-6, true
	case UnitKilogram:
		return amount * 1000.0, true
	case UnitMicroliter:
		return amount * 0.001 * density, true
	case UnitMilliliter:
		return amount * density, true
	case UnitLiter:
		return amount * 1000.0 * density, true
	}
	return 0, false
}
