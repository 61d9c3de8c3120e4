/*
engine.go - Balance reconciliation engine

PURPOSE:
  The Engine is the write front-door for the ledger. It validates input,
  freezes line-item prices, and appends transactions. It never touches
  TotalBaki itself: the store's AppendTransaction recomputes the balance
  from the log inside the same atomic write, so every transaction moves
  the balance exactly once.

WHY ONE AUTHORITY?
  A balance maintained by two mechanisms (client arithmetic plus a
  store-side trigger) double-counts the moment both fire. Deriving
  TotalBaki from the log on every write leaves nothing to disagree:
  replaying the log always reproduces the stored balance, and
  RecomputeBalance makes that replay available as an idempotent repair
  pass.

OVER-PAYMENT POLICY:
  Payments may drive the balance negative - the member is in credit.
  Clamping at zero would break the log-derived invariant and silently
  discard money.

SEE ALSO:
  - store.go: AppendTransaction contract
  - statement/: read-side aggregation over the same log
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine records sales and payments against the ledger store.
type Engine struct {
	Store Store

	// Now is the clock used to stamp transactions. Defaults to time.Now.
	Now func() time.Time
}

// NewEngine creates an engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{Store: store, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// RecordSale validates the cart, computes the total from the frozen line
// prices and appends a sale transaction. A Baki sale requires a customer;
// Cash/UCB sales may be walk-in (nil customerID). The customer's balance
// changes by exactly the sale total for Baki, and not at all otherwise.
func (e *Engine) RecordSale(ctx context.Context, customerID *int64, items []TransactionItem, paymentType PaymentType, note string) (*Transaction, error) {
	if !paymentType.Valid() {
		return nil, &ValidationError{Field: "payment_type", Reason: "unknown payment type"}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "sale requires at least one line item"}
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, &ValidationError{Field: "items", Reason: "quantity must be positive"}
		}
		if it.Price.IsNegative() {
			return nil, &ValidationError{Field: "items", Reason: "price must not be negative"}
		}
	}
	if paymentType == PaymentBaki && customerID == nil {
		return nil, &ValidationError{Field: "customer_id", Reason: "a Baki sale requires a member"}
	}
	if customerID != nil {
		if _, err := e.Store.GetCustomer(ctx, *customerID); err != nil {
			return nil, err
		}
	}

	// Attach kinds so aggregation never depends on name matching.
	lines := make([]TransactionItem, len(items))
	for i, it := range items {
		if it.Kind == "" {
			it.Kind = KindForName(it.ItemName)
		}
		lines[i] = it
	}

	t := &Transaction{
		CustomerID:  customerID,
		Items:       lines,
		TotalAmount: SumItems(lines),
		PaymentType: paymentType,
		Type:        TxSale,
		Note:        note,
		Timestamp:   e.now(),
	}
	if err := e.Store.AppendTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordPayment appends a payment transaction for the member. The amount
// must be strictly positive; the balance drops by exactly that amount and
// may go negative (member in credit).
func (e *Engine) RecordPayment(ctx context.Context, customerID int64, amount decimal.Decimal, paymentType PaymentType, note string) (*Transaction, error) {
	if !paymentType.Valid() || paymentType == PaymentBaki {
		return nil, &ValidationError{Field: "payment_type", Reason: "payment must be settled in Cash or UCB"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "payment amount must be positive"}
	}
	if _, err := e.Store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	t := &Transaction{
		CustomerID:  &customerID,
		Items:       nil,
		TotalAmount: amount,
		PaymentType: paymentType,
		Type:        TxPayment,
		Note:        note,
		Timestamp:   e.now(),
	}
	if err := e.Store.AppendTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Balance returns the member's materialized outstanding balance.
func (e *Engine) Balance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	c, err := e.Store.GetCustomer(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.TotalBaki, nil
}

// Reconcile re-derives the member's balance from the transaction log and
// stores it. Safe to run any number of times; returns the derived value.
func (e *Engine) Reconcile(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	if _, err := e.Store.GetCustomer(ctx, customerID); err != nil {
		return decimal.Zero, err
	}
	return e.Store.RecomputeBalance(ctx, customerID)
}
