// Package domain defines immutable export snapshots. A snapshot freezes the
// full trip state at export time; no API mutates or deletes one directly,
// only retention pruning removes old rows.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Snapshot is one append-only export record. Payload holds the frozen JSON
// document; FilePath points at the write-once copy on disk.
type Snapshot struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TripID      snowflake.ID   `gorm:"not null;index" json:"trip_id"`
	GeneratedAt time.Time      `gorm:"not null;index" json:"generated_at"`
	FilePath    string         `gorm:"type:text;not null" json:"file_path"`
	Payload     datatypes.JSON `gorm:"not null" json:"payload"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Snapshot) TableName() string { return "export_snapshots" }

// NotReadyError reports a snapshot request for a trip that fails
// validation. Export is refused, never auto-corrected.
type NotReadyError struct {
	TripID   snowflake.ID
	Blockers []string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("trip %s is not ready for export: %d blockers", e.TripID, len(e.Blockers))
}
