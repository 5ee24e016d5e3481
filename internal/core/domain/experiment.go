package domain

import (
	"time"
)

// Experiment is the aggregate root of a single experimental run.
//
// The integer primary key is the stable identity; the human-assigned
// experiment_id string is mutable and is the unit of the rename feature.
// Lineage fields are recomputed from the ID whenever it changes.
type Experiment struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	ExperimentID     string           `gorm:"column:experiment_id;uniqueIndex;not null" json:"experiment_id"`
	ExperimentNumber int              `gorm:"uniqueIndex;not null" json:"experiment_number"`
	SampleID         *string          `gorm:"column:sample_id" json:"sample_id,omitempty"`
	Researcher       string           `json:"researcher"`
	Status           ExperimentStatus `gorm:"type:varchar(20);not null;default:'ONGOING'" json:"status"`
	Date             *time.Time       `json:"date,omitempty"`

	// Lineage: BaseExperimentID is the parsed root ID (self-referential for
	// base experiments); ParentExperimentFK is nil for base experiments and
	// for orphaned derivations.
	BaseExperimentID   *string `gorm:"column:base_experiment_id;index" json:"base_experiment_id,omitempty"`
	ParentExperimentFK *uint   `gorm:"column:parent_experiment_fk" json:"parent_experiment_fk,omitempty"`

	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime" json:"updated_at,omitempty"`

	// Relations
	Conditions    *ExperimentalConditions `gorm:"foreignKey:ExperimentFK;constraint:OnDelete:CASCADE" json:"conditions,omitempty"`
	Notes         []ExperimentNote        `gorm:"foreignKey:ExperimentFK;constraint:OnDelete:CASCADE" json:"notes,omitempty"`
	Modifications []ModificationLog       `gorm:"foreignKey:ExperimentFK;constraint:OnDelete:CASCADE" json:"modifications,omitempty"`
}

// TableName specifies the table name for GORM
func (Experiment) TableName() string {
	return "experiments"
}

// IsControl reports whether this run has no sample reference (a control run)
func (e *Experiment) IsControl() bool {
	return e.SampleID == nil || *e.SampleID == ""
}

// ExperimentNote is a free-text note attached to an experiment.
//
// It carries a denormalized copy of the owning experiment_id string for
// display and query convenience. The storage layer does NOT keep that copy
// in sync; the rename path must rewrite it explicitly.
type ExperimentNote struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ExperimentID string     `gorm:"column:experiment_id;index;not null" json:"experiment_id"`
	ExperimentFK uint       `gorm:"column:experiment_fk;not null" json:"experiment_fk"`
	NoteText     string     `gorm:"type:text" json:"note_text"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    *time.Time `gorm:"autoUpdateTime" json:"updated_at,omitempty"`
}

// TableName specifies the table name for GORM
func (ExperimentNote) TableName() string {
	return "experiment_notes"
}

// ModificationLog records a change applied to an experiment. Like notes it
// holds a denormalized experiment_id copy that renames must rewrite.
type ModificationLog struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ExperimentID     string    `gorm:"column:experiment_id;index" json:"experiment_id"`
	ExperimentFK     *uint     `gorm:"column:experiment_fk" json:"experiment_fk,omitempty"`
	ModifiedBy       string    `json:"modified_by"`
	ModificationType string    `json:"modification_type"` // create, update, rename
	ModifiedTable    string    `json:"modified_table"`
	OldValues        string    `gorm:"type:text" json:"old_values,omitempty"`
	NewValues        string    `gorm:"type:text" json:"new_values,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GORM
func (ModificationLog) TableName() string {
	return "modifications_log"
}
