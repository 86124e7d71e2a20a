// Package validation gates export: it inspects a fully loaded trip and
// reports every reason the trip cannot be exported yet. Validation never
// mutates anything and never short-circuits; the report is exhaustive.
package validation

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/travelmate/internal/fingerprint"
	"github.com/smallbiznis/travelmate/internal/money"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
)

// Blocker codes. Stable identifiers for API consumers; messages are for
// humans and may change.
const (
	CodeTripBasicsIncomplete    = "trip_basics_incomplete"
	CodeTripDatesInvalid        = "trip_dates_invalid"
	CodeExpenseAmountNegative   = "expense_amount_negative"
	CodeExpenseCurrencyUnknown  = "expense_currency_unknown"
	CodeExpenseDateOutOfRange   = "expense_date_out_of_range"
	CodeReceiptNotProcessed     = "receipt_not_processed"
	CodeDuplicateReceipt        = "duplicate_receipt"
	CodeAllowanceTotalsMismatch = "allowance_totals_mismatch"
)

// allowanceToleranceCents bounds acceptable rounding drift in persisted
// allowance arithmetic. Anything larger is treated as corruption.
const allowanceToleranceCents = 1

// Blocker is one specific reason a trip is not exportable.
type Blocker struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	FieldRef string `json:"field_ref"`
}

// Report is the validation outcome. ReadyForExport is true iff Blockers is
// empty.
type Report struct {
	ReadyForExport bool      `json:"ready_for_export"`
	Blockers       []Blocker `json:"blockers"`
}

// Validate runs every check against the aggregate and the duplicate
// candidate set. Candidates normally hold the trip's own receipts; under
// global duplicate scope the caller widens them to the whole corpus, and
// only pairs touching this trip's receipts are reported. Pure function, safe
// to call repeatedly and concurrently.
func Validate(agg tripdomain.Aggregate, candidates []fingerprint.Candidate) Report {
	blockers := []Blocker{}
	blockers = append(blockers, checkTripBasics(agg.Trip)...)
	blockers = append(blockers, checkExpenses(agg)...)
	blockers = append(blockers, checkDuplicates(agg, candidates)...)
	blockers = append(blockers, checkAllowance(agg.Allowance)...)

	return Report{
		ReadyForExport: len(blockers) == 0,
		Blockers:       blockers,
	}
}

func checkTripBasics(trip tripdomain.Trip) []Blocker {
	var blockers []Blocker

	var missing []string
	if trip.CustomerID == 0 {
		missing = append(missing, "customer_id")
	}
	if trip.ProjectID == 0 {
		missing = append(missing, "project_id")
	}
	if trip.StartDatetime.IsZero() {
		missing = append(missing, "start_datetime")
	}
	if trip.EndDatetime.IsZero() {
		missing = append(missing, "end_datetime")
	}
	if trip.EmployeeName == "" {
		missing = append(missing, "employee_name")
	}
	if len(missing) > 0 {
		blockers = append(blockers, Blocker{
			Code:     CodeTripBasicsIncomplete,
			Message:  fmt.Sprintf("trip is missing mandatory fields: %v", missing),
			FieldRef: fmt.Sprintf("trips/%s", trip.ID),
		})
	}

	if !trip.StartDatetime.IsZero() && !trip.EndDatetime.IsZero() && trip.EndDatetime.Before(trip.StartDatetime) {
		blockers = append(blockers, Blocker{
			Code:     CodeTripDatesInvalid,
			Message:  "trip end precedes trip start",
			FieldRef: fmt.Sprintf("trips/%s/end_datetime", trip.ID),
		})
	}
	return blockers
}

func checkExpenses(agg tripdomain.Aggregate) []Blocker {
	var blockers []Blocker
	startDate := dateOnly(agg.Trip.StartDatetime)
	endDate := dateOnly(agg.Trip.EndDatetime)

	for _, expense := range agg.Expenses {
		ref := fmt.Sprintf("expense_items/%s", expense.ID)

		if expense.GrossAmountCents < 0 {
			blockers = append(blockers, Blocker{
				Code:     CodeExpenseAmountNegative,
				Message:  fmt.Sprintf("expense %s has negative gross amount %s", expense.ID, money.FormatCents(expense.GrossAmountCents)),
				FieldRef: ref + "/gross_amount_cents",
			})
		}

		if !tripdomain.ValidCurrency(expense.Currency) {
			blockers = append(blockers, Blocker{
				Code:     CodeExpenseCurrencyUnknown,
				Message:  fmt.Sprintf("expense %s has unrecognized currency %q", expense.ID, expense.Currency),
				FieldRef: ref + "/currency",
			})
		}

		if !agg.Trip.StartDatetime.IsZero() && !agg.Trip.EndDatetime.IsZero() {
			booked := dateOnly(expense.BookingDate)
			if booked.Before(startDate) || booked.After(endDate) {
				blockers = append(blockers, Blocker{
					Code:     CodeExpenseDateOutOfRange,
					Message:  fmt.Sprintf("expense %s booked %s outside trip range %s to %s", expense.ID, booked.Format("2006-01-02"), startDate.Format("2006-01-02"), endDate.Format("2006-01-02")),
					FieldRef: ref + "/booking_date",
				})
			}
		}

		if expense.ReceiptID != nil {
			receipt, ok := agg.Receipt(*expense.ReceiptID)
			if !ok || !receipt.ProcessingStatus.Exportable() {
				status := "missing"
				if ok {
					status = string(receipt.ProcessingStatus)
				}
				blockers = append(blockers, Blocker{
					Code:     CodeReceiptNotProcessed,
					Message:  fmt.Sprintf("expense %s references receipt %s with status %s", expense.ID, *expense.ReceiptID, status),
					FieldRef: ref + "/receipt_id",
				})
			}
		}
	}
	return blockers
}

func checkDuplicates(agg tripdomain.Aggregate, candidates []fingerprint.Candidate) []Blocker {
	linked := map[snowflake.ID]struct{}{}
	for id := range agg.Receipts {
		linked[id] = struct{}{}
	}

	var blockers []Blocker
	for _, pair := range fingerprint.DetectDuplicates(candidates) {
		_, aLinked := linked[pair.A]
		_, bLinked := linked[pair.B]
		if !aLinked && !bLinked {
			continue
		}
		blockers = append(blockers, Blocker{
			Code:     CodeDuplicateReceipt,
			Message:  fmt.Sprintf("receipts %s and %s match on the %s fingerprint", pair.A, pair.B, pair.Signal),
			FieldRef: fmt.Sprintf("receipts/%s,%s", pair.A, pair.B),
		})
	}
	return blockers
}

func checkAllowance(calc *tripdomain.AllowanceCalculation) []Blocker {
	if calc == nil {
		return nil
	}
	expected := calc.TotalAllowanceCents - calc.DeductionCents
	drift := calc.TotalPayableCents - expected
	if drift < 0 {
		drift = -drift
	}
	if drift <= allowanceToleranceCents {
		return nil
	}
	return []Blocker{{
		Code:     CodeAllowanceTotalsMismatch,
		Message:  fmt.Sprintf("allowance payable %s does not match allowance %s minus deduction %s", money.FormatCents(calc.TotalPayableCents), money.FormatCents(calc.TotalAllowanceCents), money.FormatCents(calc.DeductionCents)),
		FieldRef: fmt.Sprintf("allowance_calculations/%s/total_payable_cents", calc.ID),
	}}
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
