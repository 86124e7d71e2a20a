// Package export renders frozen snapshot payloads into accounting files.
// It only reads the snapshot document; live rows are never consulted, so a
// snapshot always re-renders to the same content.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/smallbiznis/travelmate/internal/money"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
	"github.com/xuri/excelize/v2"
)

// Document is the parsed snapshot payload.
type Document struct {
	SnapshotID    string                           `json:"snapshot_id"`
	TripID        string                           `json:"trip_id"`
	GeneratedAt   string                           `json:"generated_at"`
	Trip          tripdomain.Trip                  `json:"trip"`
	Expenses      []tripdomain.ExpenseItem         `json:"expenses"`
	Receipts      []receiptdomain.Receipt          `json:"receipts"`
	Allowance     *tripdomain.AllowanceCalculation `json:"allowance"`
	Reimbursement *tripdomain.Reimbursement        `json:"reimbursement"`
}

// Parse decodes a frozen snapshot payload.
func Parse(payload []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot payload: %w", err)
	}
	return doc, nil
}

var expenseHeader = []string{
	"expense_id", "category", "booking_date", "gross_amount", "net_amount",
	"vat_amount", "currency", "payment_method", "receipt_id",
}

func expenseRow(item tripdomain.ExpenseItem) []string {
	receiptID := ""
	if item.ReceiptID != nil {
		receiptID = item.ReceiptID.String()
	}
	return []string{
		item.ID.String(),
		item.Category,
		item.BookingDate.Format("2006-01-02"),
		money.FormatCents(item.GrossAmountCents),
		formatOptionalCents(item.NetAmountCents),
		formatOptionalCents(item.VATAmountCents),
		item.Currency,
		item.PaymentMethod,
		receiptID,
	}
}

// RenderCSV produces the accounting CSV for one snapshot.
func RenderCSV(payload []byte) ([]byte, error) {
	doc, err := Parse(payload)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(expenseHeader); err != nil {
		return nil, err
	}
	for _, item := range doc.Expenses {
		if err := w.Write(expenseRow(item)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderXLSX produces the accounting workbook for one snapshot: a summary
// sheet with trip basics and totals, and one row per expense.
func RenderXLSX(payload []byte) ([]byte, error) {
	doc, err := Parse(payload)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Trip"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Snapshot", doc.SnapshotID},
		{"Generated at", doc.GeneratedAt},
		{"Trip", doc.TripID},
		{"Employee", doc.Trip.EmployeeName},
		{"Start", doc.Trip.StartDatetime.Format("2006-01-02 15:04")},
		{"End", doc.Trip.EndDatetime.Format("2006-01-02 15:04")},
		{"Status", string(doc.Trip.Status)},
		{"Domestic", strconv.FormatBool(doc.Trip.IsDomestic)},
	}
	if doc.Allowance != nil {
		summary = append(summary,
			[2]any{"Rule version", doc.Allowance.RuleVersion},
			[2]any{"Allowance total", money.FormatCents(doc.Allowance.TotalAllowanceCents)},
			[2]any{"Meal deductions", money.FormatCents(doc.Allowance.DeductionCents)},
			[2]any{"Allowance payable", money.FormatCents(doc.Allowance.TotalPayableCents)},
		)
	}
	if doc.Reimbursement != nil {
		summary = append(summary,
			[2]any{"Reimbursement expected", money.FormatCents(doc.Reimbursement.ExpectedAmountCents)},
			[2]any{"Reimbursement paid", money.FormatCents(doc.Reimbursement.PaidAmountCents)},
			[2]any{"Reimbursement open", money.FormatCents(doc.Reimbursement.OpenAmountCents)},
		)
	}
	for i, pair := range summary {
		row := i + 1
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), pair[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), pair[1]); err != nil {
			return nil, err
		}
	}

	const expenseSheet = "Expenses"
	if _, err := f.NewSheet(expenseSheet); err != nil {
		return nil, err
	}
	for col, title := range expenseHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(expenseSheet, cell, title); err != nil {
			return nil, err
		}
	}
	for i, item := range doc.Expenses {
		for col, value := range expenseRow(item) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(expenseSheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatOptionalCents(v *int64) string {
	if v == nil {
		return ""
	}
	return money.FormatCents(*v)
}
