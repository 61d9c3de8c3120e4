package statement_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messbook/canteen-engine/ledger"
	"github.com/messbook/canteen-engine/statement"
)

// =============================================================================
// MATRIX SHAPE
// =============================================================================

func TestComputeMaster_PerItemMatrix(t *testing.T) {
	// GIVEN: two members consuming overlapping item sets in June
	// WHEN: the fleet report is built
	// THEN: columns are the union of non-fund names, sorted, and each row
	//       carries its own quantities

	customers := []ledger.Customer{
		{ID: 1, UID: "M-1", Name: "Asif", TotalBaki: dec("50")},
		{ID: 2, UID: "M-2", Name: "Rahim", TotalBaki: dec("120")},
	}
	txs := []ledger.Transaction{
		bakiSale(1, monthStart.AddDate(0, 0, 1), line("Tea", "10", 3), line("Egg", "10", 2)),
		bakiSale(2, monthStart.AddDate(0, 0, 2), line("Rice", "120", 1)),
		bakiSale(2, monthStart.AddDate(0, 0, 3), line(ledger.FundNameUnit, "500", 1)),
	}
	inventory := []ledger.InventoryItem{
		{ID: 1, ItemName: "Tea", Price: dec("10")},
		{ID: 2, ItemName: "Egg", Price: dec("10")},
		{ID: 3, ItemName: "Rice", Price: dec("120")},
	}

	report := statement.ComputeMaster(customers, txs, inventory, time.June, 2025, time.UTC, statement.GlobalFunds{})

	assert.Equal(t, []string{"Egg", "Rice", "Tea"}, report.ItemNames, "fund names never become columns")
	require.Len(t, report.Rows, 2)

	asif := report.Rows[0]
	assert.Equal(t, map[string]int{"Tea": 3, "Egg": 2}, asif.Consumption)
	assert.True(t, dec("50").Equal(asif.CanteenBill))

	rahim := report.Rows[1]
	assert.Equal(t, map[string]int{"Rice": 1}, rahim.Consumption)
	assert.True(t, dec("120").Equal(rahim.CanteenBill), "fund line excluded from the bill")
}

func TestComputeMaster_WindowIsCalendarMonth(t *testing.T) {
	// Transactions from May and July must not leak into June.
	customers := []ledger.Customer{{ID: 1, UID: "M-1", Name: "Asif", TotalBaki: dec("300")}}
	txs := []ledger.Transaction{
		bakiSale(1, time.Date(2025, time.May, 31, 23, 0, 0, 0, time.UTC), line("Rice", "100", 1)),
		bakiSale(1, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), line("Tea", "10", 1)),
		bakiSale(1, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), line("Egg", "10", 1)),
	}
	inventory := []ledger.InventoryItem{{ID: 1, ItemName: "Tea", Price: dec("10")}}

	report := statement.ComputeMaster(customers, txs, inventory, time.June, 2025, time.UTC, statement.GlobalFunds{})

	assert.Equal(t, []string{"Tea"}, report.ItemNames)
	require.Len(t, report.Rows, 1)
	assert.True(t, dec("10").Equal(report.Rows[0].CanteenBill))
}

// =============================================================================
// ARREARS & SUPPRESSION
// =============================================================================

func TestComputeMaster_OpeningArrearsBackSolves(t *testing.T) {
	// GIVEN: balance 200, a June bill of 120 and a June payment of 50
	// THEN: openingArrears = 200 + 50 - 120 = 130

	customers := []ledger.Customer{{ID: 1, UID: "M-1", Name: "Asif", TotalBaki: dec("200")}}
	txs := []ledger.Transaction{
		bakiSale(1, monthStart.AddDate(0, 0, 1), line("Rice", "120", 1)),
		payment(1, monthStart.AddDate(0, 0, 5), "50"),
	}
	inventory := []ledger.InventoryItem{{ID: 1, ItemName: "Rice", Price: dec("120")}}

	report := statement.ComputeMaster(customers, txs, inventory, time.June, 2025, time.UTC, statement.GlobalFunds{})

	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	assert.True(t, dec("120").Equal(row.CanteenBill))
	assert.True(t, dec("50").Equal(row.Paid))
	assert.True(t, dec("130").Equal(row.OpeningArrears), "expected 130, got %s", row.OpeningArrears)
	assert.True(t, dec("200").Equal(row.Total))
}

func TestComputeMaster_SuppressesSettledIdleRows(t *testing.T) {
	// GIVEN: one idle settled member, one idle member with arrears, and one
	//        member with a sub-epsilon rounding remnant
	// THEN: only the member with real arrears gets a row

	customers := []ledger.Customer{
		{ID: 1, UID: "M-1", Name: "Settled", TotalBaki: decimal.Zero},
		{ID: 2, UID: "M-2", Name: "Owes", TotalBaki: dec("75")},
		{ID: 3, UID: "M-3", Name: "Remnant", TotalBaki: dec("0.005")},
	}

	report := statement.ComputeMaster(customers, nil, nil, time.June, 2025, time.UTC, statement.GlobalFunds{})

	require.Len(t, report.Rows, 1)
	assert.Equal(t, "Owes", report.Rows[0].CustomerName)
	assert.True(t, dec("75").Equal(report.Rows[0].OpeningArrears))
}

func TestComputeMaster_PaymentAloneKeepsRow(t *testing.T) {
	// A member who only paid this month still appears.
	customers := []ledger.Customer{{ID: 1, UID: "M-1", Name: "Asif", TotalBaki: decimal.Zero}}
	txs := []ledger.Transaction{payment(1, monthStart.AddDate(0, 0, 3), "40")}

	report := statement.ComputeMaster(customers, txs, nil, time.June, 2025, time.UTC, statement.GlobalFunds{})

	require.Len(t, report.Rows, 1)
	assert.True(t, dec("40").Equal(report.Rows[0].Paid))
	assert.True(t, dec("40").Equal(report.Rows[0].OpeningArrears))
}

// =============================================================================
// GLOBAL FUND SURCHARGE
// =============================================================================

func TestComputeMaster_GlobalFundsApplyUniformly(t *testing.T) {
	// GIVEN: a manually-entered unit fund of 500 and car wash of 50
	// THEN: every surviving row's total is its live balance plus 550, and
	//       the footer sums accordingly

	customers := []ledger.Customer{
		{ID: 1, UID: "M-1", Name: "Asif", TotalBaki: dec("100")},
		{ID: 2, UID: "M-2", Name: "Rahim", TotalBaki: dec("30")},
	}
	funds := statement.GlobalFunds{UnitFund: dec("500"), CarWash: dec("50")}

	report := statement.ComputeMaster(customers, nil, nil, time.June, 2025, time.UTC, funds)

	require.Len(t, report.Rows, 2)
	assert.True(t, dec("650").Equal(report.Rows[0].Total))
	assert.True(t, dec("580").Equal(report.Rows[1].Total))
	assert.True(t, dec("1230").Equal(report.Totals.Grand))
	assert.True(t, dec("130").Equal(report.Totals.Arrears))
	assert.True(t, report.Totals.CanteenBill.IsZero())
	assert.True(t, report.Totals.Paid.IsZero())
}

// =============================================================================
// RATES
// =============================================================================

func TestComputeMaster_CurrentRateWithHistoricalFallback(t *testing.T) {
	// Tea re-prices at the current 12; the discontinued curry keeps its
	// first-seen historical rate.
	customers := []ledger.Customer{{ID: 1, UID: "M-1", Name: "Asif", TotalBaki: dec("55")}}
	txs := []ledger.Transaction{
		bakiSale(1, monthStart.AddDate(0, 0, 1), line("Tea", "10", 2)),
		bakiSale(1, monthStart.AddDate(0, 0, 2), line("Special Curry", "35", 1)),
	}
	inventory := []ledger.InventoryItem{{ID: 1, ItemName: "Tea", Price: dec("12")}}

	report := statement.ComputeMaster(customers, txs, inventory, time.June, 2025, time.UTC, statement.GlobalFunds{})

	require.Len(t, report.Rows, 1)
	assert.True(t, dec("59").Equal(report.Rows[0].CanteenBill), "2x12 + 1x35")
}
