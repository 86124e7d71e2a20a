package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/travelmate/internal/ownership/domain"
	"github.com/smallbiznis/travelmate/internal/ownership/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Entry{}))
	return db
}

func newTestResolver(t *testing.T) (domain.Resolver, *gorm.DB, domain.Repository) {
	t.Helper()
	db := openTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide()
	resolver := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repo,
	})
	return resolver, db, repo
}

func write(entityID snowflake.ID, field string, source domain.Source, force bool) domain.FieldWrite {
	return domain.FieldWrite{
		EntityName: "receipt",
		EntityID:   entityID,
		FieldName:  field,
		Source:     source,
		Force:      force,
	}
}

func TestResolveOCRWriteOnUnownedField(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	ctx := context.Background()

	outcome, err := resolver.Resolve(ctx, nil, write(1, "amount_cents", domain.SourceOCR, false))
	require.NoError(t, err)
	assert.True(t, outcome.Applied())
	assert.Equal(t, domain.SourceOCR, outcome.Owner)

	owner, err := resolver.Owner(ctx, "receipt", 1, "amount_cents")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceOCR, owner)
}

func TestResolveManualBlocksLaterOCR(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceOCR, false))
	require.NoError(t, err)

	outcome, err := resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceManual, false))
	require.NoError(t, err)
	assert.True(t, outcome.Applied())

	outcome, err = resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceOCR, false))
	require.NoError(t, err)
	assert.Equal(t, domain.WriteBlocked, outcome.Status)
	assert.Equal(t, domain.SourceManual, outcome.Owner)

	owner, err := resolver.Owner(ctx, "receipt", 1, "vendor")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceManual, owner)
}

func TestResolveForceOverridesManual(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceManual, false))
	require.NoError(t, err)

	outcome, err := resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceOCR, true))
	require.NoError(t, err)
	assert.True(t, outcome.Applied())
	assert.Equal(t, domain.SourceOCR, outcome.Owner)
}

func TestResolveSystemOverridesManual(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, nil, write(1, "open_amount_cents", domain.SourceManual, false))
	require.NoError(t, err)

	outcome, err := resolver.Resolve(ctx, nil, write(1, "open_amount_cents", domain.SourceSystem, false))
	require.NoError(t, err)
	assert.True(t, outcome.Applied())
	assert.Equal(t, domain.SourceSystem, outcome.Owner)
}

func TestResolveOwnershipIsPerField(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceManual, false))
	require.NoError(t, err)

	outcome, err := resolver.Resolve(ctx, nil, write(1, "amount_cents", domain.SourceOCR, false))
	require.NoError(t, err)
	assert.True(t, outcome.Applied())
}

func TestResolveOwnershipIsPerEntity(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceManual, false))
	require.NoError(t, err)

	outcome, err := resolver.Resolve(ctx, nil, write(2, "vendor", domain.SourceOCR, false))
	require.NoError(t, err)
	assert.True(t, outcome.Applied())
}

func TestResolveAppliedWriteRefreshesTimestamp(t *testing.T) {
	resolver, db, repo := newTestResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceManual, false))
	require.NoError(t, err)
	first, err := repo.Find(ctx, db, "receipt", 1, "vendor")
	require.NoError(t, err)
	require.NotNil(t, first)

	time.Sleep(5 * time.Millisecond)

	// Repeating the same source still counts as a fresh write.
	_, err = resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceManual, false))
	require.NoError(t, err)
	second, err := repo.Find(ctx, db, "receipt", 1, "vendor")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestResolveBlockedWriteLeavesLedgerUntouched(t *testing.T) {
	resolver, db, repo := newTestResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceManual, false))
	require.NoError(t, err)
	before, err := repo.Find(ctx, db, "receipt", 1, "vendor")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = resolver.Resolve(ctx, nil, write(1, "vendor", domain.SourceOCR, false))
	require.NoError(t, err)
	after, err := repo.Find(ctx, db, "receipt", 1, "vendor")
	require.NoError(t, err)

	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, domain.SourceManual, after.OwnerSource)
}

func TestResolveRejectsUnknownSource(t *testing.T) {
	resolver, _, _ := newTestResolver(t)

	_, err := resolver.Resolve(context.Background(), nil, write(1, "vendor", domain.Source("robot"), false))
	assert.ErrorIs(t, err, domain.ErrInvalidSource)
}

func countLedgerRows(t *testing.T, db *gorm.DB, entityID snowflake.ID, field string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&domain.Entry{}).
		Where("entity_name = ? AND entity_id = ? AND field_name = ?", "receipt", entityID, field).
		Count(&count).Error)
	return count
}

func TestResolveSerializesConcurrentWriters(t *testing.T) {
	resolver, db, _ := newTestResolver(t)
	ctx := context.Background()

	const writers = 16
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := resolver.Resolve(ctx, nil, write(7, "amount_cents", domain.SourceOCR, false))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), countLedgerRows(t, db, 7, "amount_cents"))

	owner, err := resolver.Owner(ctx, "receipt", 7, "amount_cents")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceOCR, owner)
}

func TestResolveConcurrentManualAndOCRConvergeOnManual(t *testing.T) {
	resolver, db, _ := newTestResolver(t)
	ctx := context.Background()

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		source := domain.SourceOCR
		if i%2 == 0 {
			source = domain.SourceManual
		}
		wg.Add(1)
		go func(source domain.Source) {
			defer wg.Done()
			_, err := resolver.Resolve(ctx, nil, write(8, "vendor", source, false))
			errs <- err
		}(source)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), countLedgerRows(t, db, 8, "vendor"))

	// However the writers interleave, once a manual write lands no ocr
	// write can take the field back.
	owner, err := resolver.Owner(ctx, "receipt", 8, "vendor")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceManual, owner)
}
