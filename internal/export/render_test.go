package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func samplePayload(t *testing.T) []byte {
	t.Helper()

	receiptID := snowflake.ID(100)
	netAmount := int64(2000)
	vatAmount := int64(380)
	doc := Document{
		SnapshotID:  "8f14e45f-ea2f-4c1b-9f3a-111111111111",
		TripID:      "9001",
		GeneratedAt: "2026-03-17T08:00:00.000000000Z",
		Trip: tripdomain.Trip{
			ID:            snowflake.ID(9001),
			EmployeeName:  "Jane Doe",
			ProjectID:     snowflake.ID(2),
			CustomerID:    snowflake.ID(3),
			StartDatetime: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
			EndDatetime:   time.Date(2026, 3, 16, 18, 0, 0, 0, time.UTC),
			IsDomestic:    true,
			Status:        tripdomain.TripStatusSubmitted,
		},
		Expenses: []tripdomain.ExpenseItem{{
			ID:               snowflake.ID(10),
			TripID:           snowflake.ID(9001),
			ReceiptID:        &receiptID,
			Category:         "meals",
			GrossAmountCents: 2380,
			NetAmountCents:   &netAmount,
			VATAmountCents:   &vatAmount,
			Currency:         "EUR",
			PaymentMethod:    "credit card",
			BookingDate:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		}},
		Allowance: &tripdomain.AllowanceCalculation{
			ID:                  snowflake.ID(50),
			TripID:              snowflake.ID(9001),
			RuleVersion:         "DE_TRAVEL_RULES_2026_01",
			TotalAllowanceCents: 5600,
			DeductionCents:      560,
			TotalPayableCents:   5040,
		},
		Reimbursement: &tripdomain.Reimbursement{
			ID:                  snowflake.ID(60),
			TripID:              snowflake.ID(9001),
			ExpectedAmountCents: 7420,
			OpenAmountCents:     7420,
		},
	}

	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	return payload
}

func TestRenderCSV(t *testing.T) {
	out, err := RenderCSV(samplePayload(t))
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, expenseHeader, records[0])
	assert.Equal(t, []string{
		"10", "meals", "2026-03-15", "23.80", "20.00", "3.80", "EUR", "credit card", "100",
	}, records[1])
}

func TestRenderCSVOptionalColumnsEmpty(t *testing.T) {
	payload := samplePayload(t)
	doc, err := Parse(payload)
	require.NoError(t, err)
	doc.Expenses[0].ReceiptID = nil
	doc.Expenses[0].NetAmountCents = nil
	doc.Expenses[0].VATAmountCents = nil
	payload, err = json.Marshal(doc)
	require.NoError(t, err)

	out, err := RenderCSV(payload)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "", records[1][4])
	assert.Equal(t, "", records[1][5])
	assert.Equal(t, "", records[1][8])
}

func TestRenderXLSX(t *testing.T) {
	out, err := RenderXLSX(samplePayload(t))
	require.NoError(t, err)
	require.NotEmpty(t, out)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Trip", "Expenses"}, f.GetSheetList())

	employee, err := f.GetCellValue("Trip", "B4")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", employee)

	category, err := f.GetCellValue("Expenses", "B2")
	require.NoError(t, err)
	assert.Equal(t, "meals", category)
}

func TestRenderRejectsMalformedPayload(t *testing.T) {
	_, err := RenderCSV([]byte("not json"))
	assert.Error(t, err)

	_, err = RenderXLSX([]byte("{"))
	assert.Error(t, err)
}

func TestParseRoundTripsSnapshotShape(t *testing.T) {
	doc, err := Parse(samplePayload(t))
	require.NoError(t, err)
	assert.Equal(t, "9001", doc.TripID)
	require.Len(t, doc.Expenses, 1)
	require.NotNil(t, doc.Allowance)
	assert.Equal(t, int64(5040), doc.Allowance.TotalPayableCents)
	require.NotNil(t, doc.Reimbursement)
	assert.Equal(t, int64(7420), doc.Reimbursement.OpenAmountCents)
}
