package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ExperimentalConditions is the one-to-one dependent of an Experiment,
// created lazily on first need. It carries a denormalized experiment_id
// string that the rename path rewrites.
type ExperimentalConditions struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	ExperimentID string `gorm:"column:experiment_id;index;not null" json:"experiment_id"`
	ExperimentFK uint   `gorm:"column:experiment_fk;not null;uniqueIndex" json:"experiment_fk"`

	ParticleSize   *string  `gorm:"column:particle_size" json:"particle_size,omitempty"` // accepts '<75', '>100', '75-100'
	InitialPH      *float64 `gorm:"column:initial_ph" json:"initial_ph,omitempty"`
	RockMassG      *float64 `gorm:"column:rock_mass_g" json:"rock_mass_g,omitempty"`
	WaterVolumeML  *float64 `gorm:"column:water_volume_ml" json:"water_volume_ml,omitempty"`
	TemperatureC   *float64 `gorm:"column:temperature_c" json:"temperature_c,omitempty"`
	ExperimentType *string  `gorm:"column:experiment_type" json:"experiment_type,omitempty"`
	ReactorNumber  *int     `gorm:"column:reactor_number" json:"reactor_number,omitempty"`
	Feedstock      *string  `gorm:"column:feedstock" json:"feedstock,omitempty"`

	RoomTempPressurePSI      *float64 `gorm:"column:room_temp_pressure_psi" json:"room_temp_pressure_psi,omitempty"`
	RxnTempPressurePSI       *float64 `gorm:"column:rxn_temp_pressure_psi" json:"rxn_temp_pressure_psi,omitempty"`
	StirSpeedRPM             *float64 `gorm:"column:stir_speed_rpm" json:"stir_speed_rpm,omitempty"`
	InitialConductivityMSCm  *float64 `gorm:"column:initial_conductivity_ms_cm" json:"initial_conductivity_ms_cm,omitempty"`
	CoreHeightCM             *float64 `gorm:"column:core_height_cm" json:"core_height_cm,omitempty"`
	CoreWidthCM              *float64 `gorm:"column:core_width_cm" json:"core_width_cm,omitempty"`
	CoreVolumeCM3            *float64 `gorm:"column:core_volume_cm3" json:"core_volume_cm3,omitempty"`
	FlowRate                 *float64 `gorm:"column:flow_rate" json:"flow_rate,omitempty"`
	InitialNitrateConc       *float64 `gorm:"column:initial_nitrate_concentration" json:"initial_nitrate_concentration,omitempty"`
	InitialDissolvedOxygen   *float64 `gorm:"column:initial_dissolved_oxygen" json:"initial_dissolved_oxygen,omitempty"`
	CO2PartialPressureMPa    *float64 `gorm:"column:co2_partial_pressure_mpa" json:"co2_partial_pressure_mpa,omitempty"`
	ConfiningPressure        *float64 `gorm:"column:confining_pressure" json:"confining_pressure,omitempty"`
	PorePressure             *float64 `gorm:"column:pore_pressure" json:"pore_pressure,omitempty"`
	InitialAlkalinity        *float64 `gorm:"column:initial_alkalinity" json:"initial_alkalinity,omitempty"`

	// Derived, recomputed by DeriveConditions after every write
	WaterToRockRatio *float64 `gorm:"column:water_to_rock_ratio" json:"water_to_rock_ratio,omitempty"`

	// Legacy fields retained for historical rows. Non-transferable: excluded
	// from sheet updates and from parent inheritance.
	Catalyst                *string  `gorm:"column:catalyst" json:"catalyst,omitempty"`
	CatalystMass            *float64 `gorm:"column:catalyst_mass" json:"catalyst_mass,omitempty"`
	CatalystPercentage      *float64 `gorm:"column:catalyst_percentage" json:"catalyst_percentage,omitempty"`
	CatalystPPM             *float64 `gorm:"column:catalyst_ppm" json:"catalyst_ppm,omitempty"`
	BufferSystem            *string  `gorm:"column:buffer_system" json:"buffer_system,omitempty"`
	BufferConcentration     *float64 `gorm:"column:buffer_concentration" json:"buffer_concentration,omitempty"`
	SurfactantType          *string  `gorm:"column:surfactant_type" json:"surfactant_type,omitempty"`
	SurfactantConcentration *float64 `gorm:"column:surfactant_concentration" json:"surfactant_concentration,omitempty"`
	AmmoniumChlorideConc    *float64 `gorm:"column:ammonium_chloride_concentration" json:"ammonium_chloride_concentration,omitempty"`

	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime" json:"updated_at,omitempty"`

	ChemicalAdditives []ChemicalAdditive `gorm:"foreignKey:ConditionsID;constraint:OnDelete:CASCADE" json:"chemical_additives,omitempty"`
}

// TableName specifies the table name for GORM
func (ExperimentalConditions) TableName() string {
	return "experimental_conditions"
}

// DeriveConditions recomputes every derived condition field from the raw
// fields and returns the updated value. Pure: the receiver is not mutated.
func DeriveConditions(c ExperimentalConditions) ExperimentalConditions {
	c.WaterToRockRatio = nil
	if c.WaterVolumeML != nil && c.RockMassG != nil && *c.RockMassG > 0 {
		ratio := *c.WaterVolumeML / *c.RockMassG
		c.WaterToRockRatio = &ratio
	}
	return c
}

// Column accessors keyed by sheet column name. These drive both the bulk
// sheet updates and the parent inheritance copy; identity columns, derived
// columns and the legacy non-transferable fields are deliberately absent.

var conditionsFloatFields = map[string]func(*ExperimentalConditions) **float64{
	"initial_ph":                      func(c *ExperimentalConditions) **float64 { return &c.InitialPH },
	"rock_mass_g":                     func(c *ExperimentalConditions) **float64 { return &c.RockMassG },
	"water_volume_ml":                 func(c *ExperimentalConditions) **float64 { return &c.WaterVolumeML },
	"temperature_c":                   func(c *ExperimentalConditions) **float64 { return &c.TemperatureC },
	"room_temp_pressure_psi":          func(c *ExperimentalConditions) **float64 { return &c.RoomTempPressurePSI },
	"rxn_temp_pressure_psi":           func(c *ExperimentalConditions) **float64 { return &c.RxnTempPressurePSI },
	"stir_speed_rpm":                  func(c *ExperimentalConditions) **float64 { return &c.StirSpeedRPM },
	"initial_conductivity_ms_cm":      func(c *ExperimentalConditions) **float64 { return &c.InitialConductivityMSCm },
	"core_height_cm":                  func(c *ExperimentalConditions) **float64 { return &c.CoreHeightCM },
	"core_width_cm":                   func(c *ExperimentalConditions) **float64 { return &c.CoreWidthCM },
	"core_volume_cm3":                 func(c *ExperimentalConditions) **float64 { return &c.CoreVolumeCM3 },
	"flow_rate":                       func(c *ExperimentalConditions) **float64 { return &c.FlowRate },
	"initial_nitrate_concentration":   func(c *ExperimentalConditions) **float64 { return &c.InitialNitrateConc },
	"initial_dissolved_oxygen":        func(c *ExperimentalConditions) **float64 { return &c.InitialDissolvedOxygen },
	"co2_partial_pressure_mpa":        func(c *ExperimentalConditions) **float64 { return &c.CO2PartialPressureMPa },
	"confining_pressure":              func(c *ExperimentalConditions) **float64 { return &c.ConfiningPressure },
	"pore_pressure":                   func(c *ExperimentalConditions) **float64 { return &c.PorePressure },
	"initial_alkalinity":              func(c *ExperimentalConditions) **float64 { return &c.InitialAlkalinity },
}

var conditionsTextFields = map[string]func(*ExperimentalConditions) **string{
	"particle_size":   func(c *ExperimentalConditions) **string { return &c.ParticleSize },
	"experiment_type": func(c *ExperimentalConditions) **string { return &c.ExperimentType },
	"feedstock":       func(c *ExperimentalConditions) **string { return &c.Feedstock },
}

var conditionsIntFields = map[string]func(*ExperimentalConditions) **int{
	"reactor_number": func(c *ExperimentalConditions) **int { return &c.ReactorNumber },
}

// IsConditionsColumn reports whether a sheet column maps onto an updatable
// conditions field.
func IsConditionsColumn(name string) bool {
	if _, ok := conditionsFloatFields[name]; ok {
		return true
	}
	if _, ok := conditionsTextFields[name]; ok {
		return true
	}
	_, ok := conditionsIntFields[name]
	return ok
}

// SetConditionsValue assigns a raw cell value to the named field, coercing
// text to the field type. An empty cell clears the field.
func SetConditionsValue(c *ExperimentalConditions, name string, value interface{}) error {
	text := strings.TrimSpace(fmt.Sprintf("%v", value))
	if value == nil {
		text = ""
	}

	if acc, ok := conditionsFloatFields[name]; ok {
		slot := acc(c)
		if text == "" {
			*slot = nil
			return nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("column '%s': expected a number, got '%s'", name, text)
		}
		*slot = &f
		return nil
	}

	if acc, ok := conditionsTextFields[name]; ok {
		slot := acc(c)
		if text == "" {
			*slot = nil
			return nil
		}
		*slot = &text
		return nil
	}

	if acc, ok := conditionsIntFields[name]; ok {
		slot := acc(c)
		if text == "" {
			*slot = nil
			return nil
		}
		// Excel frequently renders integers as "3.0"
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("column '%s': expected an integer, got '%s'", name, text)
		}
		n := int(f)
		*slot = &n
		return nil
	}

	return fmt.Errorf("unknown conditions column '%s'", name)
}

// CopyInheritableConditions copies every inheritable field from parent onto
// child. Identity columns, timestamps, derived fields and the legacy
// non-transferable fields never transfer. Used by the merge-then-override
// inheritance policy: callers apply user-supplied values afterwards so they
// always win.
func CopyInheritableConditions(parent *ExperimentalConditions, child *ExperimentalConditions) {
	if parent == nil || child == nil {
		return
	}
	for _, acc := range conditionsFloatFields {
		if v := *acc(parent); v != nil {
			f := *v
			*acc(child) = &f
		}
	}
	for _, acc := range conditionsTextFields {
		if v := *acc(parent); v != nil {
			s := *v
			*acc(child) = &s
		}
	}
	for _, acc := range conditionsIntFields {
		if v := *acc(parent); v != nil {
			n := *v
			*acc(child) = &n
		}
	}
}
