/*
Package ledger provides the core member-ledger engine for a canteen.

PURPOSE:
  This package contains the domain types and the balance reconciliation
  engine. Members ("customers") carry a running credit balance ("baki"),
  every sale and payment is an immutable entry in an append-only
  transaction log, and the balance is always a value derived from that
  log - never an independently mutated field.

KEY CONCEPTS IN THIS FILE (types.go):
  - Customer: a member with a materialized outstanding balance
  - InventoryItem: a sellable item with a current price and stock count
  - Transaction: an immutable ledger entry (sale or payment)
  - TransactionItem: a line item with the price frozen at sale time
  - LineItemKind: typed discriminator separating products from fund charges
  - Demand: a member-submitted pre-order awaiting staff action

DESIGN PRINCIPLES:
  1. Single authority: TotalBaki is recomputed from the transaction log
     on every write. There is exactly one mutation path.
  2. Immutability: transactions are never updated or deleted in normal
     operation (admin purge of a member is the only exception).
  3. Precision: all money uses decimal.Decimal, never float64.
  4. Historical pricing: each line item freezes the rate it was sold at,
     so later price changes cannot rewrite past charges.

SEE ALSO:
  - engine.go: balance engine (RecordSale, RecordPayment)
  - store.go: persistence interfaces
  - errors.go: error taxonomy
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT & TRANSACTION KINDS
// =============================================================================

// PaymentType is how a transaction was settled.
// Baki defers settlement and raises the member's outstanding balance;
// Cash and UCB settle immediately and leave the balance untouched.
type PaymentType string

const (
	PaymentCash PaymentType = "Cash"
	PaymentUCB  PaymentType = "UCB"
	PaymentBaki PaymentType = "Baki"
)

// Valid reports whether pt is one of the known settlement methods.
func (pt PaymentType) Valid() bool {
	switch pt {
	case PaymentCash, PaymentUCB, PaymentBaki:
		return true
	}
	return false
}

// TransactionType distinguishes charges from settlements.
type TransactionType string

const (
	TxSale    TransactionType = "sale"
	TxPayment TransactionType = "payment"
)

// LineItemKind classifies a transaction line at creation time.
// Fund charges flow through the same transaction mechanism as product
// sales but are excluded from itemized food aggregation. Classifying at
// creation removes any reliance on exact name matching later.
type LineItemKind string

const (
	KindProduct     LineItemKind = "product"
	KindUnitFund    LineItemKind = "fund:unit"
	KindCarWashFund LineItemKind = "fund:carwash"
	KindOtherFund   LineItemKind = "fund:other"
)

// Reserved fund display names. Kept for presentation and for classifying
// rows recorded before LineItemKind existed.
const (
	FundNameUnit    = "Unit Fund"
	FundNameCarWash = "Car Wash"
	FundNameOther   = "Others"
)

// KindForName maps a reserved fund name to its kind, defaulting to
// KindProduct for everything else.
func KindForName(name string) LineItemKind {
	switch name {
	case FundNameUnit:
		return KindUnitFund
	case FundNameCarWash:
		return KindCarWashFund
	case FundNameOther:
		return KindOtherFund
	}
	return KindProduct
}

// IsFund reports whether the kind is one of the fund charges.
func (k LineItemKind) IsFund() bool {
	return k == KindUnitFund || k == KindCarWashFund || k == KindOtherFund
}

// =============================================================================
// CUSTOMER - A canteen member
// =============================================================================

// Customer is a member of the canteen. TotalBaki is the outstanding
// balance: the sum of all Baki-settled sale amounts minus all payment
// amounts, materialized from the transaction log. A negative TotalBaki
// means the member is in credit.
type Customer struct {
	ID        int64
	UID       string // human-facing external identifier, unique
	Name      string
	Phone     string
	Email     string
	TotalBaki decimal.Decimal
	CreatedAt time.Time
}

// =============================================================================
// INVENTORY
// =============================================================================

// InventoryItem is a sellable item. Price is the current rate; line items
// snapshot it at sale time.
type InventoryItem struct {
	ID            int64
	ItemName      string
	Price         decimal.Decimal
	StockQuantity int
	Category      string
	ImageURL      string
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

// TransactionItem is a single line inside a sale. Price is the rate
// frozen at the moment of sale, not a reference to current inventory.
type TransactionItem struct {
	ItemID   int64           `json:"item_id"`
	ItemName string          `json:"item_name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Kind     LineItemKind    `json:"kind,omitempty"`
}

// Classify returns the line's kind, deriving it from the reserved fund
// names for rows recorded before kinds were attached at creation.
func (ti TransactionItem) Classify() LineItemKind {
	if ti.Kind != "" {
		return ti.Kind
	}
	return KindForName(ti.ItemName)
}

// LineTotal is price x quantity at the historical rate.
func (ti TransactionItem) LineTotal() decimal.Decimal {
	return ti.Price.Mul(decimal.NewFromInt(int64(ti.Quantity)))
}

// Transaction is one entry in the append-only ledger. CustomerID is nil
// for walk-in/guest sales. For payments, Items is empty and TotalAmount
// is the amount received.
type Transaction struct {
	ID          int64
	CustomerID  *int64
	Items       []TransactionItem
	TotalAmount decimal.Decimal
	PaymentType PaymentType
	Type        TransactionType
	Note        string
	Timestamp   time.Time
	CreatedAt   time.Time
}

// BakiDelta is the transaction's effect on the customer's outstanding
// balance: +TotalAmount for a Baki sale, -TotalAmount for a payment,
// zero for immediately-settled sales.
func (t Transaction) BakiDelta() decimal.Decimal {
	switch {
	case t.Type == TxPayment:
		return t.TotalAmount.Neg()
	case t.Type == TxSale && t.PaymentType == PaymentBaki:
		return t.TotalAmount
	}
	return decimal.Zero
}

// SumItems returns the total of all line items at their historical rates.
func SumItems(items []TransactionItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// BalanceFromLog derives the outstanding balance from a full transaction
// history. This is the authoritative definition of TotalBaki; the stored
// column is only a materialization of it.
func BalanceFromLog(txs []Transaction) decimal.Decimal {
	balance := decimal.Zero
	for _, t := range txs {
		balance = balance.Add(t.BakiDelta())
	}
	return balance
}

// =============================================================================
// DEMAND - Member pre-order request
// =============================================================================

// DemandStatus is the pre-order lifecycle state. Fulfilled and cancelled
// are terminal.
type DemandStatus string

const (
	DemandPending   DemandStatus = "pending"
	DemandFulfilled DemandStatus = "fulfilled"
	DemandCancelled DemandStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s DemandStatus) Terminal() bool {
	return s == DemandFulfilled || s == DemandCancelled
}

// Demand is a member-submitted pre-order for a menu item. Name fields are
// denormalized snapshots for display; the item's price is NOT frozen here -
// approval charges the current inventory rate.
type Demand struct {
	ID           int64
	CustomerID   int64
	CustomerName string
	ItemID       int64
	ItemName     string
	Status       DemandStatus
	Timestamp    time.Time
}

// =============================================================================
// SETTINGS & DAILY MENU
// =============================================================================

// Config is the canteen's branding/contact record, stored under a
// settings key. Auth credentials are deliberately not part of it.
type Config struct {
	CanteenName  string `json:"canteen_name"`
	ManagerName  string `json:"manager_name"`
	ManagerPhone string `json:"manager_phone"`
	LogoURL      string `json:"logo_url,omitempty"`
}

// ConfigKey is the settings key the Config record lives under.
const ConfigKey = "config"

// DailyMenu is the set of inventory items open for pre-ordering on a
// given date. A dedicated entity rather than a bare id-array under a
// generic settings key, so menus can be prepared ahead of time.
type DailyMenu struct {
	EffectiveDate time.Time
	ItemIDs       []int64
}

// Contains reports whether the item is on the menu.
func (m DailyMenu) Contains(itemID int64) bool {
	for _, id := range m.ItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// Resolve filters the inventory down to the items on the menu, preserving
// inventory order.
func (m DailyMenu) Resolve(inventory []InventoryItem) []InventoryItem {
	var items []InventoryItem
	for _, it := range inventory {
		if m.Contains(it.ID) {
			items = append(items, it)
		}
	}
	return items
}
