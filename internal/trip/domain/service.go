package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/travelmate/pkg/db/pagination"
)

// Ledger field names for expense item writes.
const (
	FieldCategory      = "category"
	FieldGrossAmount   = "gross_amount_cents"
	FieldNetAmount     = "net_amount_cents"
	FieldVATAmount     = "vat_amount_cents"
	FieldCurrency      = "currency"
	FieldPaymentMethod = "payment_method"
	FieldBookingDate   = "booking_date"
)

// Ledger field names for reimbursement writes. These are always
// system-sourced; the payout ledger is authoritative over them.
const (
	FieldExpectedAmount = "expected_amount_cents"
	FieldPaidAmount     = "paid_amount_cents"
	FieldOpenAmount     = "open_amount_cents"
	FieldPaidDate       = "paid_date"
)

type CreateTripRequest struct {
	EmployeeName  string
	ProjectID     string
	StartDatetime time.Time
	EndDatetime   time.Time
	IsDomestic    bool
}

type AddExpenseRequest struct {
	TripID           string
	ReceiptID        string
	Category         string
	GrossAmountCents int64
	NetAmountCents   *int64
	VATAmountCents   *int64
	Currency         string
	PaymentMethod    string
	BookingDate      time.Time
}

// ExpenseUpdate is the typed shape of an expense field update. Nil members
// are untouched.
type ExpenseUpdate struct {
	Category         *string
	GrossAmountCents *int64
	NetAmountCents   *int64
	VATAmountCents   *int64
	Currency         *string
	PaymentMethod    *string
	BookingDate      *time.Time
}

// Changes expands the set fields in a stable order.
func (u ExpenseUpdate) Changes() []FieldChange {
	var changes []FieldChange
	if u.BookingDate != nil {
		changes = append(changes, FieldChange{FieldBookingDate, *u.BookingDate})
	}
	if u.Category != nil {
		changes = append(changes, FieldChange{FieldCategory, *u.Category})
	}
	if u.Currency != nil {
		// Stored currency codes are always uppercase, matching AddExpense.
		changes = append(changes, FieldChange{FieldCurrency, strings.ToUpper(*u.Currency)})
	}
	if u.GrossAmountCents != nil {
		changes = append(changes, FieldChange{FieldGrossAmount, *u.GrossAmountCents})
	}
	if u.NetAmountCents != nil {
		changes = append(changes, FieldChange{FieldNetAmount, *u.NetAmountCents})
	}
	if u.PaymentMethod != nil {
		changes = append(changes, FieldChange{FieldPaymentMethod, *u.PaymentMethod})
	}
	if u.VATAmountCents != nil {
		changes = append(changes, FieldChange{FieldVATAmount, *u.VATAmountCents})
	}
	return changes
}

// Validate rejects malformed values before anything reaches the ledger.
func (u ExpenseUpdate) Validate() error {
	if u.GrossAmountCents != nil && *u.GrossAmountCents < 0 {
		return ErrInvalidAmount
	}
	if u.Currency != nil && !ValidCurrency(*u.Currency) {
		return ErrInvalidCurrency
	}
	if u.Category != nil && *u.Category == "" {
		return ErrInvalidCategory
	}
	return nil
}

type UpdateExpenseRequest struct {
	ExpenseID string
	Fields    ExpenseUpdate
	// Manual marks the update as a human correction; it then takes ownership
	// of every touched field. Non-manual updates resolve as ocr writes.
	Manual bool
	Force  bool
}

// FieldUpdateResult lists applied and ownership-blocked fields, sorted.
type FieldUpdateResult struct {
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}

type RecordPaymentRequest struct {
	TripID      string
	AmountCents int64
	PaidDate    time.Time
}

type ListTripsRequest struct {
	ProjectID snowflake.ID
	Status    TripStatus
	PageToken string
	PageSize  int32
}

type ListTripsResponse struct {
	Trips    []Trip              `json:"trips"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(ctx context.Context, req CreateTripRequest) (Trip, error)
	GetByID(ctx context.Context, id string) (Trip, error)
	List(ctx context.Context, req ListTripsRequest) (ListTripsResponse, error)
	UpdateStatus(ctx context.Context, id string, status TripStatus) (Trip, error)

	AddExpense(ctx context.Context, req AddExpenseRequest) (ExpenseItem, error)
	UpdateExpense(ctx context.Context, req UpdateExpenseRequest) (FieldUpdateResult, error)
	ListExpenses(ctx context.Context, tripID string) ([]ExpenseItem, error)

	// LoadAggregate assembles the full trip graph for validation and export.
	LoadAggregate(ctx context.Context, tripID snowflake.ID) (Aggregate, error)

	// EnsureReimbursement creates or refreshes the payout record so its
	// expected amount matches the given total.
	EnsureReimbursement(ctx context.Context, tripID string, expectedAmountCents int64) (Reimbursement, error)

	// RecordPayment books a payout. The open amount is recomputed as an
	// authoritative system write and clamped at zero.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (Reimbursement, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidEmployee  = errors.New("invalid_employee")
	ErrInvalidProject   = errors.New("invalid_project")
	ErrInvalidDates     = errors.New("invalid_dates")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidCategory  = errors.New("invalid_category")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidReceipt   = errors.New("invalid_receipt")
	ErrInvalidPayment   = errors.New("invalid_payment")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrEmptyUpdate      = errors.New("empty_update")
	ErrNotFound         = errors.New("not_found")
	ErrExpenseNotFound  = errors.New("expense_not_found")
)
