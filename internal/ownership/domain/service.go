package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Resolver applies the write precedence rule:
//
//   - manual writes always succeed and take ownership,
//   - system writes always succeed and take ownership (authoritative
//     recomputation),
//   - ocr writes succeed only while the field is unowned or owned by
//     ocr/system; a manually-owned field blocks them.
//
// Applied writes always refresh the ledger timestamp, including writes that
// repeat the current value. Blocked writes never touch the ledger.
type Resolver interface {
	// Resolve decides a single write. The caller persists the entity value
	// itself, inside the same transaction, only when the outcome is applied.
	Resolve(ctx context.Context, tx *gorm.DB, write FieldWrite) (WriteOutcome, error)

	// Owner reports the current ledger owner of a field, or empty when the
	// field has never been written through the resolver.
	Owner(ctx context.Context, entityName string, entityID snowflake.ID, fieldName string) (Source, error)
}

var ErrInvalidSource = errors.New("invalid_source")
