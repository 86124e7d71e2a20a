package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, entityName string, entityID snowflake.ID, fieldName string) (*Entry, error)
	Upsert(ctx context.Context, db *gorm.DB, entry *Entry) error
	ListByEntity(ctx context.Context, db *gorm.DB, entityName string, entityID snowflake.ID) ([]*Entry, error)
}
