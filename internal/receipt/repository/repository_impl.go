package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/travelmate/internal/receipt/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, receipt *domain.Receipt) error {
	return db.WithContext(ctx).Create(receipt).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Receipt, error) {
	var receipt domain.Receipt
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&receipt).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

func (r *repo) ListByTrip(ctx context.Context, db *gorm.DB, tripID snowflake.ID) ([]*domain.Receipt, error) {
	var receipts []*domain.Receipt
	err := db.WithContext(ctx).
		Model(&domain.Receipt{}).
		Where("trip_id = ?", tripID).
		Order("created_at asc").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]*domain.Receipt, error) {
	var receipts []*domain.Receipt
	err := db.WithContext(ctx).
		Model(&domain.Receipt{}).
		Order("created_at asc").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

func (r *repo) UpdateColumns(ctx context.Context, db *gorm.DB, id snowflake.ID, changes []domain.FieldChange) error {
	if len(changes) == 0 {
		return nil
	}
	columns := make(map[string]any, len(changes)+1)
	for _, change := range changes {
		columns[change.Name] = change.Value
	}
	columns["updated_at"] = time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.Receipt{}).
		Where("id = ?", id).
		Updates(columns).Error
}

func (r *repo) SetRequiresReview(ctx context.Context, db *gorm.DB, id snowflake.ID, requires bool) error {
	return db.WithContext(ctx).
		Model(&domain.Receipt{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"requires_review": requires,
			"updated_at":      time.Now().UTC(),
		}).Error
}
