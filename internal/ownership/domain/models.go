// Package domain defines the field ownership ledger: a per-(entity, field)
// record of which source last wrote a mutable field, backing the write
// precedence rule between automated extraction and human corrections.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Source identifies the origin of a field write.
type Source string

const (
	SourceOCR    Source = "ocr"
	SourceManual Source = "manual"
	SourceSystem Source = "system"
)

// Valid reports whether the source is one of the recognized values.
func (s Source) Valid() bool {
	switch s {
	case SourceOCR, SourceManual, SourceSystem:
		return true
	}
	return false
}

// Entry is the persisted ledger record. One row per (entity_name, entity_id,
// field_name); ownership never decays and is tracked independently per field.
type Entry struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	EntityName  string       `gorm:"type:text;not null;uniqueIndex:ux_field_ownership,priority:1" json:"entity_name"`
	EntityID    snowflake.ID `gorm:"not null;uniqueIndex:ux_field_ownership,priority:2" json:"entity_id"`
	FieldName   string       `gorm:"type:text;not null;uniqueIndex:ux_field_ownership,priority:3" json:"field_name"`
	OwnerSource Source       `gorm:"type:text;not null" json:"owner_source"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "field_update_ownership" }

// WriteStatus is the resolution outcome of a single field write.
type WriteStatus string

const (
	// WriteApplied means the value may be persisted and the ledger was updated.
	WriteApplied WriteStatus = "applied"
	// WriteBlocked means an ocr write hit a manually-owned field. The entity
	// value is untouched and the ledger keeps its previous state. Blocked is
	// a structured outcome, not an error.
	WriteBlocked WriteStatus = "blocked"
)

// FieldWrite is one requested write against the ledger.
type FieldWrite struct {
	EntityName string
	EntityID   snowflake.ID
	FieldName  string
	Source     Source
	// Force lets an ocr re-run override manual ownership. Callers must pass
	// it through explicitly; the default honors precedence.
	Force bool
}

// WriteOutcome reports how a FieldWrite resolved. Owner is the ledger owner
// after resolution (for blocked writes, the owner that blocked it).
type WriteOutcome struct {
	FieldName string      `json:"field_name"`
	Status    WriteStatus `json:"status"`
	Owner     Source      `json:"owner"`
}

// Applied is a convenience accessor.
func (o WriteOutcome) Applied() bool { return o.Status == WriteApplied }
