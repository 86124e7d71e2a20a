package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// IngestRequest carries an uploaded receipt file into storage.
type IngestRequest struct {
	TripID   string
	Filename string
	Content  []byte
}

// OCRUpdateRequest applies extraction output to a receipt. Force overrides
// manual ownership and is meant for explicit operator re-runs only.
type OCRUpdateRequest struct {
	ReceiptID string
	Fields    UpdateFields
	Force     bool
}

// ManualCorrectionRequest applies a human edit, taking ownership of every
// touched field.
type ManualCorrectionRequest struct {
	ReceiptID string
	Fields    UpdateFields
}

type Service interface {
	// Ingest stores the file under a sanitized trip-scoped path, hashes its
	// bytes and creates a pending receipt.
	Ingest(ctx context.Context, req IngestRequest) (Receipt, error)

	// Process runs the OCR provider and parser over a pending receipt and
	// applies the extracted fields as ocr-sourced writes.
	Process(ctx context.Context, receiptID string) (Receipt, UpdateResult, error)

	ApplyOCRUpdate(ctx context.Context, req OCRUpdateRequest) (UpdateResult, error)
	ApplyManualCorrection(ctx context.Context, req ManualCorrectionRequest) (UpdateResult, error)

	GetByID(ctx context.Context, id string) (Receipt, error)
	ListByTrip(ctx context.Context, tripID snowflake.ID) ([]Receipt, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidTrip       = errors.New("invalid_trip")
	ErrInvalidFilename   = errors.New("invalid_filename")
	ErrEmptyContent      = errors.New("empty_content")
	ErrEmptyUpdate       = errors.New("empty_update")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidConfidence = errors.New("invalid_confidence")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrNotFound          = errors.New("not_found")
)
