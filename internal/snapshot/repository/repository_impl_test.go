package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/travelmate/internal/snapshot/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Snapshot{}))
	return db
}

func insertSnapshot(t *testing.T, db *gorm.DB, repo domain.Repository, tripID snowflake.ID, generatedAt time.Time) *domain.Snapshot {
	t.Helper()
	snapshot := &domain.Snapshot{
		ID:          uuid.New(),
		TripID:      tripID,
		GeneratedAt: generatedAt,
		FilePath:    fmt.Sprintf("/exports/%s/%s.json", tripID, generatedAt.Format("20060102T150405")),
		Payload:     datatypes.JSON([]byte(`{"trip_id":"` + tripID.String() + `"}`)),
		CreatedAt:   generatedAt,
	}
	require.NoError(t, repo.Insert(context.Background(), db, snapshot))
	return snapshot
}

func TestListByTripOrdersByGeneratedAt(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	second := insertSnapshot(t, db, repo, 9001, base.Add(time.Hour))
	first := insertSnapshot(t, db, repo, 9001, base)
	insertSnapshot(t, db, repo, 9002, base)

	snapshots, err := repo.ListByTrip(ctx, db, 9001)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, first.ID, snapshots[0].ID)
	assert.Equal(t, second.ID, snapshots[1].ID)
}

func TestFindByIDReturnsStoredPayload(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	stored := insertSnapshot(t, db, repo, 9001, time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))

	found, err := repo.FindByID(ctx, db, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, []byte(stored.Payload), []byte(found.Payload))

	missing, err := repo.FindByID(ctx, db, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListPrunableKeepsNewestPerTrip(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	oldA := insertSnapshot(t, db, repo, 9001, base)
	midA := insertSnapshot(t, db, repo, 9001, base.AddDate(0, 1, 0))
	newestA := insertSnapshot(t, db, repo, 9001, base.AddDate(0, 2, 0))
	onlyB := insertSnapshot(t, db, repo, 9002, base)

	cutoff := base.AddDate(1, 0, 0)
	prunable, err := repo.ListPrunable(ctx, db, cutoff)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(prunable))
	for _, s := range prunable {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []uuid.UUID{oldA.ID, midA.ID}, ids)
	assert.NotContains(t, ids, newestA.ID)
	// A trip's only snapshot is its newest snapshot, however old it is.
	assert.NotContains(t, ids, onlyB.ID)
}

func TestListPrunableHonorsCutoff(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	insertSnapshot(t, db, repo, 9001, base)
	insertSnapshot(t, db, repo, 9001, base.AddDate(0, 1, 0))

	// Both snapshots are newer than the cutoff.
	prunable, err := repo.ListPrunable(ctx, db, base.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Empty(t, prunable)
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	stored := insertSnapshot(t, db, repo, 9001, time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Delete(ctx, db, stored.ID))

	found, err := repo.FindByID(ctx, db, stored.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}
