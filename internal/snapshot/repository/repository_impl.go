package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/travelmate/internal/snapshot/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, snapshot *domain.Snapshot) error {
	return db.WithContext(ctx).Create(snapshot).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Snapshot, error) {
	var snapshot domain.Snapshot
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&snapshot).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

func (r *repo) ListByTrip(ctx context.Context, db *gorm.DB, tripID snowflake.ID) ([]*domain.Snapshot, error) {
	var snapshots []*domain.Snapshot
	err := db.WithContext(ctx).
		Model(&domain.Snapshot{}).
		Where("trip_id = ?", tripID).
		Order("generated_at asc").
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *repo) ListPrunable(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]*domain.Snapshot, error) {
	var snapshots []*domain.Snapshot
	err := db.WithContext(ctx).
		Model(&domain.Snapshot{}).
		Where("generated_at < ?", cutoff).
		Where("generated_at < (SELECT MAX(s2.generated_at) FROM export_snapshots s2 WHERE s2.trip_id = export_snapshots.trip_id)").
		Order("generated_at asc").
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Snapshot{}).Error
}
