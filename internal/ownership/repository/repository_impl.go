package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/travelmate/internal/ownership/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, entityName string, entityID snowflake.ID, fieldName string) (*domain.Entry, error) {
	var entry domain.Entry
	err := db.WithContext(ctx).
		Where("entity_name = ? AND entity_id = ? AND field_name = ?", entityName, entityID, fieldName).
		Take(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	// The unique index on (entity_name, entity_id, field_name) makes this a
	// transactional compare-and-set: concurrent writers to the same field
	// converge on a single row.
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "entity_name"},
			{Name: "entity_id"},
			{Name: "field_name"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"owner_source", "updated_at"}),
	}).Create(entry).Error
}

func (r *repo) ListByEntity(ctx context.Context, db *gorm.DB, entityName string, entityID snowflake.ID) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	err := db.WithContext(ctx).
		Model(&domain.Entry{}).
		Where("entity_name = ? AND entity_id = ?", entityName, entityID).
		Order("field_name asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
