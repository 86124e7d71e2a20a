// Package domain defines receipts and their OCR-extracted fields. A receipt
// is an independent entity; it belongs to no trip until an expense item
// links it.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status represents receipt processing states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusVerified  Status = "verified"
)

// Valid reports whether the status is a recognized processing state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusFailed, StatusVerified:
		return true
	}
	return false
}

// Exportable reports whether a receipt in this state may back an exported
// expense.
func (s Status) Exportable() bool {
	return s == StatusProcessed || s == StatusVerified
}

// EntityName is the ledger entity name for receipt field ownership.
const EntityName = "receipt"

// Ledger field names for receipt writes.
const (
	FieldOCRText          = "ocr_text"
	FieldVendor           = "vendor"
	FieldReceiptDate      = "receipt_date"
	FieldAmountCents      = "amount_cents"
	FieldConfidence       = "confidence"
	FieldProcessingStatus = "processing_status"
	FieldCategoryHint     = "category_hint"
)

// Receipt is an uploaded document plus whatever OCR or a human extracted
// from it. ImageHash is the sha256 of the stored file bytes, computed once
// at ingest; it never changes even when extracted fields are edited.
type Receipt struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	TripID           *snowflake.ID `gorm:"index" json:"trip_id,omitempty"`
	FilePath         string        `gorm:"type:text;not null" json:"file_path"`
	ImageHash        string        `gorm:"type:text;not null;index" json:"image_hash"`
	OCRText          *string       `gorm:"type:text" json:"ocr_text,omitempty"`
	Vendor           *string       `gorm:"type:text" json:"vendor,omitempty"`
	ReceiptDate      *time.Time    `gorm:"" json:"receipt_date,omitempty"`
	AmountCents      *int64        `gorm:"" json:"amount_cents,omitempty"`
	Confidence       *float64      `gorm:"" json:"confidence,omitempty"`
	CategoryHint     *string       `gorm:"type:text" json:"category_hint,omitempty"`
	ProcessingStatus Status        `gorm:"type:text;not null;default:'pending'" json:"processing_status"`
	RequiresReview   bool          `gorm:"not null;default:false" json:"requires_review"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Receipt) TableName() string { return "receipts" }

// UpdateFields is the strongly-typed shape of a receipt field update. Nil
// members are untouched. It replaces the loose maps the HTTP layer would
// otherwise hand the resolver.
type UpdateFields struct {
	OCRText          *string
	Vendor           *string
	ReceiptDate      *time.Time
	AmountCents      *int64
	Confidence       *float64
	CategoryHint     *string
	ProcessingStatus *Status
}

// FieldChange is one (column, value) pair derived from UpdateFields.
type FieldChange struct {
	Name  string
	Value any
}

// Changes expands the set fields in a stable order.
func (f UpdateFields) Changes() []FieldChange {
	var changes []FieldChange
	if f.AmountCents != nil {
		changes = append(changes, FieldChange{FieldAmountCents, *f.AmountCents})
	}
	if f.CategoryHint != nil {
		changes = append(changes, FieldChange{FieldCategoryHint, *f.CategoryHint})
	}
	if f.Confidence != nil {
		changes = append(changes, FieldChange{FieldConfidence, *f.Confidence})
	}
	if f.OCRText != nil {
		changes = append(changes, FieldChange{FieldOCRText, *f.OCRText})
	}
	if f.ProcessingStatus != nil {
		changes = append(changes, FieldChange{FieldProcessingStatus, *f.ProcessingStatus})
	}
	if f.ReceiptDate != nil {
		changes = append(changes, FieldChange{FieldReceiptDate, *f.ReceiptDate})
	}
	if f.Vendor != nil {
		changes = append(changes, FieldChange{FieldVendor, *f.Vendor})
	}
	return changes
}

// Validate rejects malformed values before anything reaches the ledger.
func (f UpdateFields) Validate() error {
	if f.AmountCents != nil && *f.AmountCents < 0 {
		return ErrInvalidAmount
	}
	if f.Confidence != nil && (*f.Confidence < 0 || *f.Confidence > 1) {
		return ErrInvalidConfidence
	}
	if f.ProcessingStatus != nil && !f.ProcessingStatus.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// UpdateResult mirrors the resolver outcome for a batch of field writes:
// Updated lists applied fields, Skipped the ownership-blocked ones. Both are
// sorted for stable API responses.
type UpdateResult struct {
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}
