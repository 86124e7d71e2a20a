package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, snapshot *Snapshot) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Snapshot, error)
	ListByTrip(ctx context.Context, db *gorm.DB, tripID snowflake.ID) ([]*Snapshot, error)

	// ListPrunable returns snapshots older than the cutoff, excluding the
	// newest snapshot of each trip.
	ListPrunable(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]*Snapshot, error)
	Delete(ctx context.Context, db *gorm.DB, id uuid.UUID) error
}
