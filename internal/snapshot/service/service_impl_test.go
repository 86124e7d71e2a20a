package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/travelmate/internal/clock"
	"github.com/smallbiznis/travelmate/internal/config"
	ownershipdomain "github.com/smallbiznis/travelmate/internal/ownership/domain"
	ownershiprepository "github.com/smallbiznis/travelmate/internal/ownership/repository"
	ownershipservice "github.com/smallbiznis/travelmate/internal/ownership/service"
	projectdomain "github.com/smallbiznis/travelmate/internal/project/domain"
	projectrepository "github.com/smallbiznis/travelmate/internal/project/repository"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
	receiptrepository "github.com/smallbiznis/travelmate/internal/receipt/repository"
	"github.com/smallbiznis/travelmate/internal/snapshot/domain"
	snapshotrepository "github.com/smallbiznis/travelmate/internal/snapshot/repository"
	"github.com/smallbiznis/travelmate/internal/storage"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
	triprepository "github.com/smallbiznis/travelmate/internal/trip/repository"
	tripservice "github.com/smallbiznis/travelmate/internal/trip/service"
	"github.com/smallbiznis/travelmate/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	svc     *Service
	trips   tripdomain.Service
	db      *gorm.DB
	node    *snowflake.Node
	store   *storage.Store
	root    string
	clock   *clock.FakeClock
	project projectdomain.Project
}

func newHarness(t *testing.T, scope string) harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&projectdomain.Project{},
		&tripdomain.Trip{},
		&tripdomain.ExpenseItem{},
		&tripdomain.AllowanceCalculation{},
		&tripdomain.Reimbursement{},
		&receiptdomain.Receipt{},
		&ownershipdomain.Entry{},
		&domain.Snapshot{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	resolver := ownershipservice.New(ownershipservice.Params{
		DB: db, Log: log, GenID: node, Repo: ownershiprepository.Provide(),
	})
	receiptRepo := receiptrepository.Provide()
	trips := tripservice.New(tripservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        triprepository.Provide(),
		ProjectRepo: projectrepository.Provide(),
		ReceiptRepo: receiptRepo,
		Resolver:    resolver,
	})
	validator := validation.New(validation.Params{
		DB:          db,
		Log:         log,
		Trips:       trips,
		ReceiptRepo: receiptRepo,
		Retention: config.NewStaticRetentionConfigHolder(config.RetentionConfig{
			SnapshotRetentionDays: 365,
			UploadRetentionDays:   365,
			DuplicateScope:        scope,
		}),
	})
	root := t.TempDir()
	store := storage.NewAtRoot(root, nil)
	fake := clock.NewFakeClock(time.Date(2026, 3, 17, 8, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:         db,
		Log:        log,
		Clock:      fake,
		Repo:       snapshotrepository.Provide(),
		Trips:      trips,
		Validation: validator,
		Store:      store,
	})

	now := time.Now().UTC()
	project := projectdomain.Project{
		ID:         node.Generate(),
		CustomerID: node.Generate(),
		Code:       "ACME-CONSULTING",
		Name:       "Consulting Engagement",
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, db.Create(&project).Error)

	return harness{svc: svc, trips: trips, db: db, node: node, store: store, root: root, clock: fake, project: project}
}

func (h harness) createReadyTrip(t *testing.T) tripdomain.Trip {
	t.Helper()
	trip, err := h.trips.Create(context.Background(), tripdomain.CreateTripRequest{
		EmployeeName:  "Jane Doe",
		ProjectID:     h.project.ID.String(),
		StartDatetime: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		EndDatetime:   time.Date(2026, 3, 16, 18, 0, 0, 0, time.UTC),
		IsDomestic:    true,
	})
	require.NoError(t, err)

	_, err = h.trips.AddExpense(context.Background(), tripdomain.AddExpenseRequest{
		TripID:           trip.ID.String(),
		Category:         "meals",
		GrossAmountCents: 2380,
		Currency:         "EUR",
		BookingDate:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return trip
}

func (h harness) insertReceipt(t *testing.T, tripID snowflake.ID, imageHash string, amount int64, vendor string) receiptdomain.Receipt {
	t.Helper()
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	receipt := receiptdomain.Receipt{
		ID:               h.node.Generate(),
		TripID:           &tripID,
		FilePath:         "/uploads/x/" + imageHash + ".pdf",
		ImageHash:        imageHash,
		AmountCents:      &amount,
		ReceiptDate:      &date,
		Vendor:           &vendor,
		ProcessingStatus: receiptdomain.StatusProcessed,
	}
	require.NoError(t, h.db.Create(&receipt).Error)
	return receipt
}

func TestSaveFreezesTripState(t *testing.T) {
	h := newHarness(t, config.DuplicateScopeTrip)
	trip := h.createReadyTrip(t)

	snapshot, err := h.svc.Save(context.Background(), trip.ID.String())
	require.NoError(t, err)
	assert.Equal(t, trip.ID, snapshot.TripID)
	assert.Equal(t, h.clock.Now(), snapshot.GeneratedAt)
	assert.NotEmpty(t, snapshot.Payload)

	fileContent, err := h.store.ReadSnapshot(snapshot.FilePath)
	require.NoError(t, err)
	assert.Equal(t, []byte(snapshot.Payload), fileContent)

	assert.Contains(t, string(snapshot.Payload), `"ready_for_export": true`)
	assert.Contains(t, string(snapshot.Payload), `"employee_name": "Jane Doe"`)
}

func TestSaveRejectsTripWithBlockers(t *testing.T) {
	h := newHarness(t, config.DuplicateScopeTrip)
	trip := h.createReadyTrip(t)

	_, err := h.trips.AddExpense(context.Background(), tripdomain.AddExpenseRequest{
		TripID:           trip.ID.String(),
		Category:         "taxi",
		GrossAmountCents: 1500,
		Currency:         "EUR",
		BookingDate:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = h.svc.Save(context.Background(), trip.ID.String())
	var notReady *domain.NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, trip.ID, notReady.TripID)
	assert.NotEmpty(t, notReady.Blockers)

	snapshots, err := h.svc.List(context.Background(), trip.ID.String())
	require.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestSaveDetectsCrossTripDuplicatesUnderGlobalScope(t *testing.T) {
	h := newHarness(t, config.DuplicateScopeGlobal)
	trip := h.createReadyTrip(t)
	otherTrip := h.createReadyTrip(t)

	h.insertReceipt(t, trip.ID, "hash-1", 2380, "Gasthaus Alpenblick")
	h.insertReceipt(t, otherTrip.ID, "hash-1", 2380, "Gasthaus Alpenblick")

	_, err := h.svc.Save(context.Background(), trip.ID.String())
	var notReady *domain.NotReadyError
	require.ErrorAs(t, err, &notReady)
}

func TestSameUploadInTwoTripsInvisibleUnderTripScope(t *testing.T) {
	h := newHarness(t, config.DuplicateScopeTrip)
	trip := h.createReadyTrip(t)
	otherTrip := h.createReadyTrip(t)

	h.insertReceipt(t, trip.ID, "hash-1", 2380, "Gasthaus Alpenblick")
	h.insertReceipt(t, otherTrip.ID, "hash-1", 2380, "Gasthaus Alpenblick")

	_, err := h.svc.Save(context.Background(), trip.ID.String())
	require.NoError(t, err)
}

func TestSnapshotPayloadSurvivesLaterEdits(t *testing.T) {
	h := newHarness(t, config.DuplicateScopeTrip)
	trip := h.createReadyTrip(t)
	ctx := context.Background()

	first, err := h.svc.Save(ctx, trip.ID.String())
	require.NoError(t, err)

	// Later edits must not leak into the frozen payload.
	h.clock.Advance(time.Hour)
	_, err = h.trips.AddExpense(ctx, tripdomain.AddExpenseRequest{
		TripID:           trip.ID.String(),
		Category:         "taxi",
		GrossAmountCents: 1500,
		Currency:         "EUR",
		BookingDate:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	second, err := h.svc.Save(ctx, trip.ID.String())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, firstPayload, err := h.svc.Get(ctx, first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, []byte(first.Payload), firstPayload)
	assert.NotContains(t, string(firstPayload), `"category": "taxi"`)
	assert.Contains(t, string(second.Payload), `"category": "taxi"`)

	snapshots, err := h.svc.List(ctx, trip.ID.String())
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, first.ID, snapshots[0].ID)
	assert.Equal(t, second.ID, snapshots[1].ID)
}

func TestGetUnknownSnapshot(t *testing.T) {
	h := newHarness(t, config.DuplicateScopeTrip)

	_, _, err := h.svc.Get(context.Background(), "c2d29867-3d0b-d497-9191-18a9d8ee7830")
	assert.True(t, errors.Is(err, tripdomain.ErrNotFound))

	_, _, err = h.svc.Get(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, tripdomain.ErrInvalidID))
}

func TestSaveUnknownTrip(t *testing.T) {
	h := newHarness(t, config.DuplicateScopeTrip)

	_, err := h.svc.Save(context.Background(), h.node.Generate().String())
	assert.True(t, errors.Is(err, tripdomain.ErrNotFound))
}

func TestSaveRemovesFileWhenInsertFails(t *testing.T) {
	h := newHarness(t, config.DuplicateScopeTrip)
	trip := h.createReadyTrip(t)

	require.NoError(t, h.db.Migrator().DropTable(&domain.Snapshot{}))

	_, err := h.svc.Save(context.Background(), trip.ID.String())
	require.Error(t, err)

	// A failed insert must not leave a write-once file behind; retention
	// only deletes files referenced by rows.
	var files []string
	require.NoError(t, filepath.WalkDir(h.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			files = append(files, path)
		}
		return nil
	}))
	assert.Empty(t, files)
}
