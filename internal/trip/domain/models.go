// Package domain holds the trip aggregate: trips, their expense items and
// the one-to-one allowance calculation and reimbursement records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
)

// TripStatus represents trip lifecycle states.
type TripStatus string

const (
	TripStatusDraft     TripStatus = "draft"
	TripStatusSubmitted TripStatus = "submitted"
	TripStatusApproved  TripStatus = "approved"
	TripStatusRejected  TripStatus = "rejected"
	TripStatusPaid      TripStatus = "paid"
)

// Valid reports whether the status is a recognized lifecycle state.
func (s TripStatus) Valid() bool {
	switch s {
	case TripStatusDraft, TripStatusSubmitted, TripStatusApproved, TripStatusRejected, TripStatusPaid:
		return true
	}
	return false
}

// Ledger entity names for field ownership tracking.
const (
	EntityTrip          = "trip"
	EntityExpenseItem   = "expense_item"
	EntityReimbursement = "reimbursement"
	EntityAllowance     = "allowance_calculation"
)

// Trip is a single business trip of one employee on one project. CustomerID
// is denormalized from the project for reporting.
type Trip struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	EmployeeName  string       `gorm:"type:text;not null" json:"employee_name"`
	ProjectID     snowflake.ID `gorm:"not null;index" json:"project_id"`
	CustomerID    snowflake.ID `gorm:"not null;index" json:"customer_id"`
	StartDatetime time.Time    `gorm:"not null" json:"start_datetime"`
	EndDatetime   time.Time    `gorm:"not null" json:"end_datetime"`
	IsDomestic    bool         `gorm:"not null;default:true" json:"is_domestic"`
	Status        TripStatus   `gorm:"type:text;not null;default:'draft'" json:"status"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Trip) TableName() string { return "trips" }

// ExpenseItem is one expense line on a trip, optionally backed by a receipt.
// Amounts are cents.
type ExpenseItem struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	TripID           snowflake.ID  `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"trip_id"`
	ReceiptID        *snowflake.ID `gorm:"index" json:"receipt_id,omitempty"`
	Category         string        `gorm:"type:text;not null" json:"category"`
	GrossAmountCents int64         `gorm:"not null" json:"gross_amount_cents"`
	NetAmountCents   *int64        `gorm:"" json:"net_amount_cents,omitempty"`
	VATAmountCents   *int64        `gorm:"" json:"vat_amount_cents,omitempty"`
	Currency         string        `gorm:"type:text;not null" json:"currency"`
	PaymentMethod    string        `gorm:"type:text" json:"payment_method"`
	BookingDate      time.Time     `gorm:"not null" json:"booking_date"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ExpenseItem) TableName() string { return "expense_items" }

// AllowanceCalculation is the per-diem result for a trip, at most one per
// trip. RuleVersion records which policy revision produced the numbers and
// is preserved on re-save unless the computation explicitly requests a new
// version.
type AllowanceCalculation struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	TripID               snowflake.ID `gorm:"not null;uniqueIndex:ux_allowance_trip;constraint:OnDelete:CASCADE" json:"trip_id"`
	AllowancePerDayCents int64        `gorm:"not null" json:"allowance_per_day_cents"`
	RuleVersion          string       `gorm:"type:text;not null" json:"rule_version"`
	MealPerDiemCents     int64        `gorm:"not null" json:"meal_per_diem_cents"`
	DeductionCents       int64        `gorm:"not null" json:"deduction_cents"`
	TotalAllowanceCents  int64        `gorm:"not null" json:"total_allowance_cents"`
	TotalPayableCents    int64        `gorm:"not null" json:"total_payable_cents"`
	CreatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (AllowanceCalculation) TableName() string { return "allowance_calculations" }

// Reimbursement tracks payout progress for a trip, at most one per trip.
// OpenAmountCents is a derived field recomputed by system-sourced writes and
// never allowed below zero.
type Reimbursement struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	TripID              snowflake.ID `gorm:"not null;uniqueIndex:ux_reimbursement_trip;constraint:OnDelete:CASCADE" json:"trip_id"`
	ExpectedAmountCents int64        `gorm:"not null" json:"expected_amount_cents"`
	PaidAmountCents     int64        `gorm:"not null;default:0" json:"paid_amount_cents"`
	OpenAmountCents     int64        `gorm:"not null" json:"open_amount_cents"`
	PaidDate            *time.Time   `gorm:"" json:"paid_date,omitempty"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Reimbursement) TableName() string { return "reimbursements" }

// Aggregate is the fully loaded trip graph handed to the validator and the
// snapshot store. It is a read model; mutating it has no effect on storage.
type Aggregate struct {
	Trip          Trip
	Expenses      []ExpenseItem
	Receipts      map[snowflake.ID]receiptdomain.Receipt
	Allowance     *AllowanceCalculation
	Reimbursement *Reimbursement
}

// Receipt resolves a linked receipt by ID.
func (a Aggregate) Receipt(id snowflake.ID) (receiptdomain.Receipt, bool) {
	rec, ok := a.Receipts[id]
	return rec, ok
}
