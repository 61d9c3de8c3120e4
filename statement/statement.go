/*
Package statement derives monthly bills from the append-only ledger.

PURPOSE:
  A statement is a live reconciliation, not a stored snapshot. Given a
  member's full transaction history, the current price list and "now",
  Compute produces an itemized breakdown of this month's consumption plus
  a residual carried-over figure, such that

      itemized this month + previous arrears - this month's payments
        == the member's live TotalBaki

  always holds. Nothing is persisted; viewing a statement twice over the
  same log yields the same numbers.

RE-PRICING AT DISPLAY TIME:
  Itemized lines are shown at the CURRENT inventory rate when the item
  still exists, falling back to the historical rate otherwise. This is a
  deliberate approximation: price changes should reflect in bills not yet
  settled. The residual arrears formula absorbs the difference, so the
  grand total still reconciles to the live balance.

FUNDS:
  Fund-kind lines (unit fund, car wash, others) accumulate as amount
  sums, never qty x rate, so a fund charged at a nonstandard amount still
  aggregates correctly. They are reported separately from food lines.

SEE ALSO:
  - master.go: the fleet-wide per-item matrix over the same month
  - ledger: transaction log and line-item classification
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

// Line is one itemized (non-fund) row on the statement.
type Line struct {
	ItemName string
	Quantity int

	// Rate is the display rate: the current inventory price when the item
	// still exists, otherwise the historical rate frozen at sale time.
	Rate  decimal.Decimal
	Total decimal.Decimal
}

// Funds holds this month's fund charges as amount sums.
type Funds struct {
	UnitFund decimal.Decimal
	CarWash  decimal.Decimal
	Others   decimal.Decimal
}

// Total is the sum of the three fund buckets.
func (f Funds) Total() decimal.Decimal {
	return f.UnitFund.Add(f.CarWash).Add(f.Others)
}

// Statement is a member's derived monthly bill.
type Statement struct {
	CustomerID   int64
	CustomerName string
	Month        time.Month
	Year         int
	MonthLabel   string // Bengali month + year, as printed on the bill

	Items            []Line
	CanteenFoodTotal decimal.Decimal
	Funds            Funds
	MonthlyPayments  decimal.Decimal

	// TotalThisMonth is food + funds for the month (payments excluded).
	TotalThisMonth decimal.Decimal

	// PreviousArrears is the residual: whatever the live balance does not
	// explain through this month's activity. May be negative (member in
	// credit); never clamped.
	PreviousArrears decimal.Decimal

	// GrandTotal is the live TotalBaki. The breakdown above exists to
	// explain it, never to override it.
	GrandTotal decimal.Decimal
}

// Bengali month names, indexed by time.Month-1. Bills are printed in
// Bengali; the struct keeps numeric Month/Year alongside for callers.
var bengaliMonths = [12]string{
	"জানুয়ারি", "ফেব্রুয়ারি", "মার্চ", "এপ্রিল", "মে", "জুন",
	"জুলাই", "আগস্ট", "সেপ্টেম্বর", "অক্টোবর", "নভেম্বর", "ডিসেম্বর",
}

// MonthLabel formats a month/year pair the way bills print it.
func MonthLabel(month time.Month, year int) string {
	return bengaliMonths[month-1] + " " + formatYear(year)
}

func formatYear(year int) string {
	// Years are small positive integers; avoid fmt for a hot-ish path.
	if year <= 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for year > 0 {
		i--
		buf[i] = byte('0' + year%10)
		year /= 10
	}
	return string(buf[i:])
}

// MonthStart returns the first instant of now's calendar month in now's
// location, hours zeroed.
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// =============================================================================
// COMPUTE
// =============================================================================

// Compute derives the member's statement for now's calendar month from
// their full transaction history and the current inventory price list.
func Compute(customer *ledger.Customer, txs []ledger.Transaction, inventory []ledger.InventoryItem, now time.Time) Statement {
	monthStart := MonthStart(now)

	// Current rates by item name, for display re-pricing.
	currentRate := make(map[string]decimal.Decimal, len(inventory))
	for _, it := range inventory {
		currentRate[it.ItemName] = it.Price
	}

	type accum struct {
		qty            int
		historicalRate decimal.Decimal // rate of the first sale seen
	}
	itemMap := make(map[string]*accum)
	var funds Funds
	monthlyPayments := decimal.Zero

	for _, t := range txs {
		if t.Timestamp.Before(monthStart) {
			continue
		}
		if t.Type == ledger.TxPayment {
			monthlyPayments = monthlyPayments.Add(t.TotalAmount)
			continue
		}
		for _, line := range t.Items {
			switch line.Classify() {
			case ledger.KindUnitFund:
				funds.UnitFund = funds.UnitFund.Add(line.LineTotal())
			case ledger.KindCarWashFund:
				funds.CarWash = funds.CarWash.Add(line.LineTotal())
			case ledger.KindOtherFund:
				funds.Others = funds.Others.Add(line.LineTotal())
			default:
				if a, ok := itemMap[line.ItemName]; ok {
					a.qty += line.Quantity
				} else {
					itemMap[line.ItemName] = &accum{qty: line.Quantity, historicalRate: line.Price}
				}
			}
		}
	}

	items := make([]Line, 0, len(itemMap))
	canteenFoodTotal := decimal.Zero
	for name, a := range itemMap {
		rate := a.historicalRate
		if current, ok := currentRate[name]; ok {
			rate = current
		}
		total := rate.Mul(decimal.NewFromInt(int64(a.qty)))
		items = append(items, Line{ItemName: name, Quantity: a.qty, Rate: rate, Total: total})
		canteenFoodTotal = canteenFoodTotal.Add(total)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemName < items[j].ItemName })

	totalThisMonth := canteenFoodTotal.Add(funds.Total())

	return Statement{
		CustomerID:       customer.ID,
		CustomerName:     customer.Name,
		Month:            now.Month(),
		Year:             now.Year(),
		MonthLabel:       MonthLabel(now.Month(), now.Year()),
		Items:            items,
		CanteenFoodTotal: canteenFoodTotal,
		Funds:            funds,
		MonthlyPayments:  monthlyPayments,
		TotalThisMonth:   totalThisMonth,
		PreviousArrears:  customer.TotalBaki.Sub(totalThisMonth.Sub(monthlyPayments)),
		GrandTotal:       customer.TotalBaki,
	}
}
