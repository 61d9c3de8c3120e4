/*
master.go - Fleet-wide monthly report

PURPOSE:
  ComputeMaster is the cross-member variant of Compute: for a specified
  month it builds one row per member with a wide per-item consumption
  matrix (columns = every distinct non-fund item sold that month across
  the whole fleet), the member's canteen bill, payments, residual opening
  arrears and total.

GLOBAL FUND SURCHARGE:
  The report accepts a manually-entered unit-fund and car-wash amount
  applied uniformly to every row's total. This is a presentation-time
  override for the printed sheet, NOT derived from the per-transaction
  fund charges the statement reports - the two must not be conflated.

ROW SUPPRESSION:
  Members with no bill, no payments and |arrears| < 0.01 carry no
  information and are dropped from the sheet.
*/
package statement

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/messbook/canteen-engine/ledger"
)

// =============================================================================
// TYPES
// =============================================================================

// GlobalFunds is the manually-entered surcharge added to every row.
type GlobalFunds struct {
	UnitFund decimal.Decimal
	CarWash  decimal.Decimal
}

// Sum is the per-row surcharge amount.
func (g GlobalFunds) Sum() decimal.Decimal {
	return g.UnitFund.Add(g.CarWash)
}

// MasterRow is one member's line on the fleet report.
type MasterRow struct {
	CustomerID   int64
	UID          string
	CustomerName string

	// Consumption maps item name to quantity for the month. Only names in
	// MasterReport.ItemNames appear.
	Consumption map[string]int

	// CanteenBill is this month's non-fund consumption at display rates.
	CanteenBill decimal.Decimal

	// Paid is this month's payment sum.
	Paid decimal.Decimal

	// OpeningArrears back-solves what the live balance does not explain:
	// TotalBaki + Paid - CanteenBill. May be negative.
	OpeningArrears decimal.Decimal

	// Total is the live balance plus the global fund surcharge.
	Total decimal.Decimal
}

// MasterTotals is the report footer.
type MasterTotals struct {
	CanteenBill decimal.Decimal
	Paid        decimal.Decimal
	Arrears     decimal.Decimal
	Grand       decimal.Decimal
}

// MasterReport is the full fleet sheet for one month.
type MasterReport struct {
	Month      time.Month
	Year       int
	MonthLabel string

	// ItemNames are the matrix columns: every distinct non-fund item sold
	// this month across all members, sorted.
	ItemNames []string

	Rows   []MasterRow
	Totals MasterTotals
}

// rowSuppressionEpsilon: arrears below this are considered settled.
var rowSuppressionEpsilon = decimal.NewFromFloat(0.01)

// =============================================================================
// COMPUTE
// =============================================================================

// ComputeMaster builds the fleet report for the given calendar month in
// loc. Transactions outside [month start, month end] are ignored. Rows
// keep the customers' incoming order (the store lists them by name).
func ComputeMaster(customers []ledger.Customer, txs []ledger.Transaction, inventory []ledger.InventoryItem, month time.Month, year int, loc *time.Location, funds GlobalFunds) MasterReport {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0)

	currentRate := make(map[string]decimal.Decimal, len(inventory))
	for _, it := range inventory {
		currentRate[it.ItemName] = it.Price
	}

	// Partition the month's transactions per member and collect the
	// distinct non-fund item names in one pass.
	nameSet := make(map[string]struct{})
	byCustomer := make(map[int64][]ledger.Transaction)
	for _, t := range txs {
		if t.Timestamp.Before(start) || !t.Timestamp.Before(end) {
			continue
		}
		if t.CustomerID != nil {
			byCustomer[*t.CustomerID] = append(byCustomer[*t.CustomerID], t)
		}
		if t.Type == ledger.TxPayment {
			continue
		}
		for _, line := range t.Items {
			if !line.Classify().IsFund() {
				nameSet[line.ItemName] = struct{}{}
			}
		}
	}
	itemNames := make([]string, 0, len(nameSet))
	for name := range nameSet {
		itemNames = append(itemNames, name)
	}
	sort.Strings(itemNames)

	surcharge := funds.Sum()
	var rows []MasterRow
	var totals MasterTotals

	for _, c := range customers {
		paid := decimal.Zero
		consumption := make(map[string]int)
		historicalRate := make(map[string]decimal.Decimal)

		for _, t := range byCustomer[c.ID] {
			if t.Type == ledger.TxPayment {
				paid = paid.Add(t.TotalAmount)
				continue
			}
			for _, line := range t.Items {
				if line.Classify().IsFund() {
					continue
				}
				consumption[line.ItemName] += line.Quantity
				if _, ok := historicalRate[line.ItemName]; !ok {
					historicalRate[line.ItemName] = line.Price
				}
			}
		}

		bill := decimal.Zero
		for name, qty := range consumption {
			rate, ok := currentRate[name]
			if !ok {
				rate = historicalRate[name]
			}
			bill = bill.Add(rate.Mul(decimal.NewFromInt(int64(qty))))
		}

		arrears := c.TotalBaki.Add(paid).Sub(bill)

		// No activity worth reporting.
		if bill.IsZero() && paid.IsZero() && arrears.Abs().LessThan(rowSuppressionEpsilon) {
			continue
		}

		row := MasterRow{
			CustomerID:     c.ID,
			UID:            c.UID,
			CustomerName:   c.Name,
			Consumption:    consumption,
			CanteenBill:    bill,
			Paid:           paid,
			OpeningArrears: arrears,
			Total:          c.TotalBaki.Add(surcharge),
		}
		rows = append(rows, row)

		totals.CanteenBill = totals.CanteenBill.Add(row.CanteenBill)
		totals.Paid = totals.Paid.Add(row.Paid)
		totals.Arrears = totals.Arrears.Add(row.OpeningArrears)
		totals.Grand = totals.Grand.Add(row.Total)
	}

	return MasterReport{
		Month:      month,
		Year:       year,
		MonthLabel: MonthLabel(month, year),
		ItemNames:  itemNames,
		Rows:       rows,
		Totals:     totals,
	}
}
