package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// FieldChange is one (column, value) pair for a ledger-governed update.
type FieldChange struct {
	Name  string
	Value any
}

// TripCursor marks the last row of the previous page. Listing orders by
// (created_at desc, id desc), so the cursor carries both columns.
type TripCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// ListTripsFilter narrows trip listings. Zero values mean no filter.
type ListTripsFilter struct {
	ProjectID snowflake.ID
	Status    TripStatus
	Cursor    *TripCursor
	Limit     int
}

type Repository interface {
	InsertTrip(ctx context.Context, db *gorm.DB, trip *Trip) error
	FindTripByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Trip, error)
	ListTrips(ctx context.Context, db *gorm.DB, filter ListTripsFilter) ([]*Trip, error)
	UpdateTripColumns(ctx context.Context, db *gorm.DB, id snowflake.ID, changes []FieldChange) error

	InsertExpense(ctx context.Context, db *gorm.DB, item *ExpenseItem) error
	FindExpenseByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ExpenseItem, error)
	ListExpensesByTrip(ctx context.Context, db *gorm.DB, tripID snowflake.ID) ([]*ExpenseItem, error)
	UpdateExpenseColumns(ctx context.Context, db *gorm.DB, id snowflake.ID, changes []FieldChange) error

	FindAllowanceByTrip(ctx context.Context, db *gorm.DB, tripID snowflake.ID) (*AllowanceCalculation, error)
	UpsertAllowance(ctx context.Context, db *gorm.DB, calc *AllowanceCalculation) error

	FindReimbursementByTrip(ctx context.Context, db *gorm.DB, tripID snowflake.ID) (*Reimbursement, error)
	InsertReimbursement(ctx context.Context, db *gorm.DB, reimbursement *Reimbursement) error
	UpdateReimbursementColumns(ctx context.Context, db *gorm.DB, id snowflake.ID, changes []FieldChange) error
}
