package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadStatus is the lifecycle status of a workbook upload.
type UploadStatus string

const (
	UploadStatusStored     UploadStatus = "stored"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// UploadBatch tracks one uploaded workbook through background processing.
// The row is keyed by the storage-layer upload ID so workers and pollers
// agree on identity without another lookup table.
type UploadBatch struct {
	ID               uuid.UUID    `gorm:"type:uuid;primary_key" json:"id"`
	OriginalFilename string       `gorm:"type:varchar(500);not null" json:"original_filename"`
	FilePath         string       `gorm:"type:text" json:"file_path"`
	FileHash         string       `gorm:"type:varchar(64);index;not null" json:"file_hash"`
	Status           UploadStatus `gorm:"type:varchar(20);not null;default:'stored'" json:"status"`

	CreatedCount int `gorm:"default:0" json:"created_count"`
	UpdatedCount int `gorm:"default:0" json:"updated_count"`
	SkippedCount int `gorm:"default:0" json:"skipped_count"`
	WarningCount int `gorm:"default:0" json:"warning_count"`

	// Summary holds the full batch result (counts plus messages) as JSON.
	Summary JSONB `gorm:"type:jsonb" json:"summary"`

	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (UploadBatch) TableName() string {
	return "upload_batches"
}

// BeforeCreate GORM hook - called before creating a record
func (u *UploadBatch) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether the upload has finished processing.
func (u *UploadBatch) IsTerminal() bool {
	return u.Status == UploadStatusCompleted || u.Status == UploadStatusFailed
}

// JSONB is a custom type for JSONB columns. Stored as serialized JSON so the
// same model works on PostgreSQL and on the SQLite used in tests.
type JSONB map[string]interface{}

// Value implements driver.Valuer
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported type for JSONB: %T", value)
	}
}
