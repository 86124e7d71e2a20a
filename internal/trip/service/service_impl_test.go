package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	ownershipdomain "github.com/smallbiznis/travelmate/internal/ownership/domain"
	ownershiprepository "github.com/smallbiznis/travelmate/internal/ownership/repository"
	ownershipservice "github.com/smallbiznis/travelmate/internal/ownership/service"
	projectdomain "github.com/smallbiznis/travelmate/internal/project/domain"
	projectrepository "github.com/smallbiznis/travelmate/internal/project/repository"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
	receiptrepository "github.com/smallbiznis/travelmate/internal/receipt/repository"
	"github.com/smallbiznis/travelmate/internal/trip/domain"
	triprepository "github.com/smallbiznis/travelmate/internal/trip/repository"
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
	require.NoError(t, db.AutoMigrate(
		&projectdomain.Project{},
		&domain.Trip{},
		&domain.ExpenseItem{},
		&domain.AllowanceCalculation{},
		&domain.Reimbursement{},
		&receiptdomain.Receipt{},
		&ownershipdomain.Entry{},
	))
	return db
}

type harness struct {
	svc     domain.Service
	db      *gorm.DB
	node    *snowflake.Node
	project projectdomain.Project
}

func newHarness(t *testing.T) harness {
	t.Helper()
	db := openTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	resolver := ownershipservice.New(ownershipservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  ownershiprepository.Provide(),
	})
	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        triprepository.Provide(),
		ProjectRepo: projectrepository.Provide(),
		ReceiptRepo: receiptrepository.Provide(),
		Resolver:    resolver,
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

	return harness{svc: svc, db: db, node: node, project: project}
}

func (h harness) createTrip(t *testing.T) domain.Trip {
	t.Helper()
	trip, err := h.svc.Create(context.Background(), domain.CreateTripRequest{
		EmployeeName:  "Jane Doe",
		ProjectID:     h.project.ID.String(),
		StartDatetime: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		EndDatetime:   time.Date(2026, 3, 16, 18, 0, 0, 0, time.UTC),
		IsDomestic:    true,
	})
	require.NoError(t, err)
	return trip
}

func (h harness) addExpense(t *testing.T, tripID snowflake.ID) domain.ExpenseItem {
	t.Helper()
	item, err := h.svc.AddExpense(context.Background(), domain.AddExpenseRequest{
		TripID:           tripID.String(),
		Category:         "meals",
		GrossAmountCents: 2380,
		Currency:         "eur",
		PaymentMethod:    "credit card",
		BookingDate:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return item
}

func TestCreateTripDenormalizesCustomer(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)

	assert.Equal(t, h.project.ID, trip.ProjectID)
	assert.Equal(t, h.project.CustomerID, trip.CustomerID)
	assert.Equal(t, domain.TripStatusDraft, trip.Status)
}

func TestCreateTripValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	_, err := h.svc.Create(ctx, domain.CreateTripRequest{
		ProjectID: h.project.ID.String(), StartDatetime: start, EndDatetime: start.AddDate(0, 0, 1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidEmployee)

	_, err = h.svc.Create(ctx, domain.CreateTripRequest{
		EmployeeName: "Jane Doe", ProjectID: h.project.ID.String(),
		StartDatetime: start, EndDatetime: start.AddDate(0, 0, -1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDates)

	_, err = h.svc.Create(ctx, domain.CreateTripRequest{
		EmployeeName: "Jane Doe", ProjectID: h.node.Generate().String(),
		StartDatetime: start, EndDatetime: start.AddDate(0, 0, 1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidProject)
}

func TestUpdateStatus(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)

	updated, err := h.svc.UpdateStatus(context.Background(), trip.ID.String(), domain.TripStatusSubmitted)
	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusSubmitted, updated.Status)

	_, err = h.svc.UpdateStatus(context.Background(), trip.ID.String(), domain.TripStatus("lost"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestAddExpenseNormalizesCurrency(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)

	item := h.addExpense(t, trip.ID)
	assert.Equal(t, "EUR", item.Currency)
	assert.Equal(t, int64(2380), item.GrossAmountCents)
}

func TestAddExpenseValidation(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)
	ctx := context.Background()
	booking := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	_, err := h.svc.AddExpense(ctx, domain.AddExpenseRequest{
		TripID: trip.ID.String(), Category: "meals", GrossAmountCents: -1, Currency: "EUR", BookingDate: booking,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.svc.AddExpense(ctx, domain.AddExpenseRequest{
		TripID: trip.ID.String(), Category: "meals", GrossAmountCents: 100, Currency: "XYZ", BookingDate: booking,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)

	_, err = h.svc.AddExpense(ctx, domain.AddExpenseRequest{
		TripID: trip.ID.String(), Category: " ", GrossAmountCents: 100, Currency: "EUR", BookingDate: booking,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)

	_, err = h.svc.AddExpense(ctx, domain.AddExpenseRequest{
		TripID: trip.ID.String(), Category: "meals", GrossAmountCents: 100, Currency: "EUR",
		BookingDate: booking, ReceiptID: h.node.Generate().String(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidReceipt)
}

func TestUpdateExpenseManualBlocksLaterAutomated(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)
	item := h.addExpense(t, trip.ID)
	ctx := context.Background()

	corrected := int64(2500)
	result, err := h.svc.UpdateExpense(ctx, domain.UpdateExpenseRequest{
		ExpenseID: item.ID.String(),
		Fields:    domain.ExpenseUpdate{GrossAmountCents: &corrected},
		Manual:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.FieldGrossAmount}, result.Updated)

	rescanned := int64(2380)
	category := "taxi"
	result, err = h.svc.UpdateExpense(ctx, domain.UpdateExpenseRequest{
		ExpenseID: item.ID.String(),
		Fields:    domain.ExpenseUpdate{GrossAmountCents: &rescanned, Category: &category},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.FieldCategory}, result.Updated)
	assert.Equal(t, []string{domain.FieldGrossAmount}, result.Skipped)

	expenses, err := h.svc.ListExpenses(ctx, trip.ID.String())
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, int64(2500), expenses[0].GrossAmountCents)
	assert.Equal(t, "taxi", expenses[0].Category)
}

func TestUpdateExpenseForceOverridesManual(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)
	item := h.addExpense(t, trip.ID)
	ctx := context.Background()

	corrected := int64(2500)
	_, err := h.svc.UpdateExpense(ctx, domain.UpdateExpenseRequest{
		ExpenseID: item.ID.String(),
		Fields:    domain.ExpenseUpdate{GrossAmountCents: &corrected},
		Manual:    true,
	})
	require.NoError(t, err)

	rescanned := int64(2380)
	result, err := h.svc.UpdateExpense(ctx, domain.UpdateExpenseRequest{
		ExpenseID: item.ID.String(),
		Fields:    domain.ExpenseUpdate{GrossAmountCents: &rescanned},
		Force:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.FieldGrossAmount}, result.Updated)

	expenses, err := h.svc.ListExpenses(ctx, trip.ID.String())
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, rescanned, expenses[0].GrossAmountCents)
}

func TestUpdateExpenseEmptyUpdate(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)
	item := h.addExpense(t, trip.ID)

	_, err := h.svc.UpdateExpense(context.Background(), domain.UpdateExpenseRequest{
		ExpenseID: item.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrEmptyUpdate)
}

func TestEnsureReimbursementCreatesThenRefreshes(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)
	ctx := context.Background()

	created, err := h.svc.EnsureReimbursement(ctx, trip.ID.String(), 7420)
	require.NoError(t, err)
	assert.Equal(t, int64(7420), created.ExpectedAmountCents)
	assert.Equal(t, int64(0), created.PaidAmountCents)
	assert.Equal(t, int64(7420), created.OpenAmountCents)

	refreshed, err := h.svc.EnsureReimbursement(ctx, trip.ID.String(), 8000)
	require.NoError(t, err)
	assert.Equal(t, created.ID, refreshed.ID)
	assert.Equal(t, int64(8000), refreshed.ExpectedAmountCents)
	assert.Equal(t, int64(8000), refreshed.OpenAmountCents)
}

func TestRecordPaymentRecomputesOpenAmount(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)
	ctx := context.Background()

	_, err := h.svc.EnsureReimbursement(ctx, trip.ID.String(), 7420)
	require.NoError(t, err)

	partial, err := h.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		TripID:      trip.ID.String(),
		AmountCents: 5000,
		PaidDate:    time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), partial.PaidAmountCents)
	assert.Equal(t, int64(2420), partial.OpenAmountCents)
	require.NotNil(t, partial.PaidDate)

	// Overpayment never drives the open amount below zero.
	full, err := h.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		TripID:      trip.ID.String(),
		AmountCents: 3000,
		PaidDate:    time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8000), full.PaidAmountCents)
	assert.Equal(t, int64(0), full.OpenAmountCents)
}

func TestRecordPaymentValidation(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)
	ctx := context.Background()

	_, err := h.svc.RecordPayment(ctx, domain.RecordPaymentRequest{TripID: trip.ID.String(), AmountCents: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidPayment)

	_, err = h.svc.RecordPayment(ctx, domain.RecordPaymentRequest{TripID: trip.ID.String(), AmountCents: 100})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadAggregateAssemblesFullGraph(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)
	ctx := context.Background()

	// A receipt uploaded under another trip but linked to this trip's expense
	// must still appear in the aggregate.
	foreignReceiptTrip := h.node.Generate()
	receipt := receiptdomain.Receipt{
		ID:               h.node.Generate(),
		TripID:           &foreignReceiptTrip,
		FilePath:         "/uploads/x/receipt.pdf",
		ImageHash:        "abc123",
		ProcessingStatus: receiptdomain.StatusProcessed,
	}
	require.NoError(t, h.db.Create(&receipt).Error)

	_, err := h.svc.AddExpense(ctx, domain.AddExpenseRequest{
		TripID:           trip.ID.String(),
		ReceiptID:        receipt.ID.String(),
		Category:         "meals",
		GrossAmountCents: 2380,
		Currency:         "EUR",
		BookingDate:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = h.svc.EnsureReimbursement(ctx, trip.ID.String(), 2380)
	require.NoError(t, err)

	agg, err := h.svc.LoadAggregate(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, trip.ID, agg.Trip.ID)
	require.Len(t, agg.Expenses, 1)
	_, ok := agg.Receipt(receipt.ID)
	assert.True(t, ok)
	require.NotNil(t, agg.Reimbursement)
	assert.Nil(t, agg.Allowance)
}

func TestListTripsPaginates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.createTrip(t)
	time.Sleep(2 * time.Millisecond)
	second := h.createTrip(t)
	time.Sleep(2 * time.Millisecond)
	third := h.createTrip(t)

	page, err := h.svc.List(ctx, domain.ListTripsRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Trips, 2)
	assert.Equal(t, third.ID, page.Trips[0].ID)
	assert.Equal(t, second.ID, page.Trips[1].ID)
	require.True(t, page.PageInfo.HasMore)
	require.NotEmpty(t, page.PageInfo.NextPageToken)

	rest, err := h.svc.List(ctx, domain.ListTripsRequest{
		PageSize:  2,
		PageToken: page.PageInfo.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, rest.Trips, 1)
	assert.Equal(t, first.ID, rest.Trips[0].ID)
	assert.False(t, rest.PageInfo.HasMore)
}

func TestListTripsValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.List(ctx, domain.ListTripsRequest{PageToken: "%%%not-base64%%%"})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)

	_, err = h.svc.List(ctx, domain.ListTripsRequest{Status: "vacationing"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestListTripsFiltersByProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	mine := h.createTrip(t)

	other := projectdomain.Project{
		ID:         h.node.Generate(),
		CustomerID: h.node.Generate(),
		Code:       "OTHER-PROJECT",
		Name:       "Other Project",
		Active:     true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, h.db.Create(&other).Error)
	_, err := h.svc.Create(ctx, domain.CreateTripRequest{
		EmployeeName:  "John Roe",
		ProjectID:     other.ID.String(),
		StartDatetime: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		EndDatetime:   time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC),
		IsDomestic:    true,
	})
	require.NoError(t, err)

	page, err := h.svc.List(ctx, domain.ListTripsRequest{ProjectID: h.project.ID})
	require.NoError(t, err)
	require.Len(t, page.Trips, 1)
	assert.Equal(t, mine.ID, page.Trips[0].ID)
}

func TestLoadAggregateReadsWithinOneTransaction(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)
	h.addExpense(t, trip.ID)

	var pools []gorm.ConnPool
	require.NoError(t, h.db.Callback().Query().After("gorm:query").Register("record_conn_pool", func(tx *gorm.DB) {
		pools = append(pools, tx.Statement.ConnPool)
	}))
	defer func() {
		require.NoError(t, h.db.Callback().Query().Remove("record_conn_pool"))
	}()

	_, err := h.svc.LoadAggregate(context.Background(), trip.ID)
	require.NoError(t, err)

	// Trip, expenses, receipts, allowance and reimbursement all read on the
	// same transaction, so no writer can slip between the queries.
	require.GreaterOrEqual(t, len(pools), 3)
	first, ok := pools[0].(*sql.Tx)
	require.True(t, ok, "aggregate reads ran outside a transaction")
	for _, pool := range pools[1:] {
		assert.Same(t, first, pool)
	}
}

func TestUpdateExpenseNormalizesCurrency(t *testing.T) {
	h := newHarness(t)
	trip := h.createTrip(t)
	item := h.addExpense(t, trip.ID)

	currency := "usd"
	_, err := h.svc.UpdateExpense(context.Background(), domain.UpdateExpenseRequest{
		ExpenseID: item.ID.String(),
		Fields:    domain.ExpenseUpdate{Currency: &currency},
		Manual:    true,
	})
	require.NoError(t, err)

	expenses, err := h.svc.ListExpenses(context.Background(), trip.ID.String())
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, "USD", expenses[0].Currency)
}
