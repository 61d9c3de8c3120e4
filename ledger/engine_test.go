package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messbook/canteen-engine/ledger"
	"github.com/messbook/canteen-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*ledger.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	eng := ledger.NewEngine(mem)
	eng.Now = func() time.Time {
		return time.Date(2025, time.June, 10, 13, 0, 0, 0, time.UTC)
	}
	return eng, mem
}

func newMember(t *testing.T, mem *store.Memory, uid, name string) *ledger.Customer {
	t.Helper()
	c := &ledger.Customer{UID: uid, Name: name}
	require.NoError(t, mem.SaveCustomer(context.Background(), c))
	return c
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func productLine(name, price string, qty int) ledger.TransactionItem {
	return ledger.TransactionItem{ItemName: name, Price: dec(price), Quantity: qty}
}

// =============================================================================
// BALANCE MUTATION
// =============================================================================

func TestEngine_BakiSalesThenPayment(t *testing.T) {
	// GIVEN: a member with two Baki sales of 120 and 80
	// WHEN: a payment of 150 is recorded
	// THEN: the balance is exactly 50

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	member := newMember(t, mem, "M-1", "Asif")

	_, err := eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Rice", "120", 1)}, ledger.PaymentBaki, "")
	require.NoError(t, err)
	_, err = eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Tea", "40", 2)}, ledger.PaymentBaki, "")
	require.NoError(t, err)

	balance, err := eng.Balance(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, dec("200").Equal(balance), "expected 200, got %s", balance)

	_, err = eng.RecordPayment(ctx, member.ID, dec("150"), ledger.PaymentCash, "")
	require.NoError(t, err)

	balance, err = eng.Balance(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(balance), "expected 50, got %s", balance)
}

func TestEngine_BakiSale_MovesBalanceExactlyOnce(t *testing.T) {
	// GIVEN: a member with a zero balance
	// WHEN: a single Baki sale of 75 is recorded
	// THEN: the balance is 75 and replaying the log reproduces it

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	member := newMember(t, mem, "M-1", "Asif")

	tx, err := eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Egg", "25", 3)}, ledger.PaymentBaki, "")
	require.NoError(t, err)
	assert.True(t, dec("75").Equal(tx.TotalAmount))

	balance, err := eng.Balance(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, dec("75").Equal(balance))

	txs, err := mem.ListTransactions(ctx, ledger.TransactionFilter{CustomerID: &member.ID})
	require.NoError(t, err)
	assert.True(t, ledger.BalanceFromLog(txs).Equal(balance), "stored balance must equal log replay")
}

func TestEngine_CashSale_DoesNotTouchBalance(t *testing.T) {
	// GIVEN: a member with an outstanding balance of 100
	// WHEN: they buy again but settle in Cash
	// THEN: the balance stays at 100

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	member := newMember(t, mem, "M-1", "Asif")

	_, err := eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Rice", "100", 1)}, ledger.PaymentBaki, "")
	require.NoError(t, err)
	_, err = eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Tea", "10", 2)}, ledger.PaymentCash, "")
	require.NoError(t, err)

	balance, err := eng.Balance(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(balance))
}

func TestEngine_WalkInCashSale_NoMember(t *testing.T) {
	// GIVEN: no member attached to the sale
	// WHEN: a Cash sale is recorded
	// THEN: it lands in the log with a nil customer

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	tx, err := eng.RecordSale(ctx, nil, []ledger.TransactionItem{productLine("Tea", "10", 1)}, ledger.PaymentCash, "")
	require.NoError(t, err)
	assert.Nil(t, tx.CustomerID)

	txs, err := mem.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestEngine_BakiSale_RequiresMember(t *testing.T) {
	// GIVEN: no member attached to the sale
	// WHEN: a Baki sale is attempted
	// THEN: it is rejected as a validation error and nothing is written

	eng, mem := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.RecordSale(ctx, nil, []ledger.TransactionItem{productLine("Rice", "100", 1)}, ledger.PaymentBaki, "")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	txs, err := mem.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestEngine_RecordSale_RejectsBadInput(t *testing.T) {
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	member := newMember(t, mem, "M-1", "Asif")

	_, err := eng.RecordSale(ctx, &member.ID, nil, ledger.PaymentCash, "")
	assert.ErrorIs(t, err, ledger.ErrValidation, "empty cart")

	_, err = eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Tea", "10", 0)}, ledger.PaymentCash, "")
	assert.ErrorIs(t, err, ledger.ErrValidation, "zero quantity")

	_, err = eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Tea", "-5", 1)}, ledger.PaymentCash, "")
	assert.ErrorIs(t, err, ledger.ErrValidation, "negative price")

	_, err = eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Tea", "10", 1)}, ledger.PaymentType("Barter"), "")
	assert.ErrorIs(t, err, ledger.ErrValidation, "unknown payment type")

	missing := int64(99)
	_, err = eng.RecordSale(ctx, &missing, []ledger.TransactionItem{productLine("Tea", "10", 1)}, ledger.PaymentCash, "")
	assert.ErrorIs(t, err, ledger.ErrNotFound, "unknown member")
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestEngine_Payment_RejectsNonPositiveAmount(t *testing.T) {
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	member := newMember(t, mem, "M-1", "Asif")

	_, err := eng.RecordPayment(ctx, member.ID, decimal.Zero, ledger.PaymentCash, "")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = eng.RecordPayment(ctx, member.ID, dec("-10"), ledger.PaymentCash, "")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestEngine_Payment_RejectsBakiSettlement(t *testing.T) {
	// A payment is a settlement; settling credit with more credit is
	// meaningless.
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	member := newMember(t, mem, "M-1", "Asif")

	_, err := eng.RecordPayment(ctx, member.ID, dec("10"), ledger.PaymentBaki, "")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestEngine_OverPayment_DrivesBalanceNegative(t *testing.T) {
	// GIVEN: a member owing 30
	// WHEN: they pay 100
	// THEN: the balance is -70 (member in credit), not clamped

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	member := newMember(t, mem, "M-1", "Asif")

	_, err := eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Tea", "30", 1)}, ledger.PaymentBaki, "")
	require.NoError(t, err)
	_, err = eng.RecordPayment(ctx, member.ID, dec("100"), ledger.PaymentUCB, "")
	require.NoError(t, err)

	balance, err := eng.Balance(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, dec("-70").Equal(balance), "expected -70, got %s", balance)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestEngine_Reconcile_IsIdempotent(t *testing.T) {
	// GIVEN: a mixed log of Baki sales, cash sales and payments
	// WHEN: the reconciliation pass runs repeatedly
	// THEN: it always derives the same balance as the live one

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	member := newMember(t, mem, "M-1", "Asif")

	_, err := eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Rice", "120", 1)}, ledger.PaymentBaki, "")
	require.NoError(t, err)
	_, err = eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{productLine("Tea", "10", 3)}, ledger.PaymentCash, "")
	require.NoError(t, err)
	_, err = eng.RecordPayment(ctx, member.ID, dec("20"), ledger.PaymentCash, "")
	require.NoError(t, err)

	want := dec("100")
	for i := 0; i < 3; i++ {
		got, err := eng.Reconcile(ctx, member.ID)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "pass %d: expected %s, got %s", i, want, got)
	}

	balance, err := eng.Balance(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, want.Equal(balance))
}

// =============================================================================
// LINE CLASSIFICATION
// =============================================================================

func TestEngine_RecordSale_AttachesFundKinds(t *testing.T) {
	// Fund names without an explicit kind classify at creation time.
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	member := newMember(t, mem, "M-1", "Asif")

	tx, err := eng.RecordSale(ctx, &member.ID, []ledger.TransactionItem{
		productLine(ledger.FundNameUnit, "500", 1),
		productLine("Rice", "120", 1),
	}, ledger.PaymentBaki, "")
	require.NoError(t, err)

	assert.Equal(t, ledger.KindUnitFund, tx.Items[0].Kind)
	assert.Equal(t, ledger.KindProduct, tx.Items[1].Kind)
}

func TestTransaction_BakiDelta(t *testing.T) {
	sale := ledger.Transaction{Type: ledger.TxSale, PaymentType: ledger.PaymentBaki, TotalAmount: dec("40")}
	assert.True(t, dec("40").Equal(sale.BakiDelta()))

	cash := ledger.Transaction{Type: ledger.TxSale, PaymentType: ledger.PaymentCash, TotalAmount: dec("40")}
	assert.True(t, cash.BakiDelta().IsZero())

	payment := ledger.Transaction{Type: ledger.TxPayment, PaymentType: ledger.PaymentCash, TotalAmount: dec("15")}
	assert.True(t, dec("-15").Equal(payment.BakiDelta()))
}
