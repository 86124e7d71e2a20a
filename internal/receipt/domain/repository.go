package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, receipt *Receipt) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Receipt, error)
	ListByTrip(ctx context.Context, db *gorm.DB, tripID snowflake.ID) ([]*Receipt, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]*Receipt, error)
	UpdateColumns(ctx context.Context, db *gorm.DB, id snowflake.ID, changes []FieldChange) error
	SetRequiresReview(ctx context.Context, db *gorm.DB, id snowflake.ID, requires bool) error
}
