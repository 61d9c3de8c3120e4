package demand_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messbook/canteen-engine/demand"
	"github.com/messbook/canteen-engine/ledger"
	"github.com/messbook/canteen-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// Fixed reference instants on either side of the window boundaries.
var (
	eveningOpen   = time.Date(2025, time.June, 10, 21, 0, 0, 0, time.UTC) // window open
	morningOpen   = time.Date(2025, time.June, 11, 8, 0, 0, 0, time.UTC)  // still open
	afternoonZone = time.Date(2025, time.June, 11, 14, 0, 0, 0, time.UTC) // expiry zone
)

type fixture struct {
	svc  *demand.Service
	mem  *store.Memory
	item *ledger.InventoryItem
	cust *ledger.Customer
}

func newTestDemandService(t *testing.T, now time.Time) *fixture {
	t.Helper()
	mem := store.NewMemory()
	svc := demand.NewService(mem, zerolog.Nop())
	svc.Now = func() time.Time { return now }

	cust := &ledger.Customer{UID: "M-1", Name: "Asif"}
	require.NoError(t, mem.SaveCustomer(context.Background(), cust))

	item := &ledger.InventoryItem{ItemName: "Paratha", Price: dec("15"), StockQuantity: 10}
	require.NoError(t, mem.SaveInventoryItem(context.Background(), item))

	return &fixture{svc: svc, mem: mem, item: item, cust: cust}
}

func (f *fixture) setClock(now time.Time) {
	f.svc.Now = func() time.Time { return now }
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// ORDERING WINDOW
// =============================================================================

func TestWindow_Boundaries(t *testing.T) {
	w := demand.DefaultWindow
	day := func(h int) time.Time {
		return time.Date(2025, time.June, 10, h, 30, 0, 0, time.UTC)
	}

	assert.True(t, w.IsOpen(day(20)), "opens at 20:00 inclusive")
	assert.True(t, w.IsOpen(day(23)))
	assert.True(t, w.IsOpen(day(0)), "wraps past midnight")
	assert.True(t, w.IsOpen(day(11)))
	assert.False(t, w.IsOpen(day(12)), "closes at noon")
	assert.False(t, w.IsOpen(day(15)))
	assert.False(t, w.IsOpen(day(19)))

	assert.False(t, w.InExpiryZone(day(21)))
	assert.True(t, w.InExpiryZone(day(12)))
	assert.True(t, w.InExpiryZone(day(19)))
}

func TestPlace_InsideWindow(t *testing.T) {
	// GIVEN: an evening clock inside the ordering window
	// WHEN: a member places a pre-order
	// THEN: a pending demand exists with snapshot display names

	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	d, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DemandPending, d.Status)
	assert.Equal(t, "Asif", d.CustomerName)
	assert.Equal(t, "Paratha", d.ItemName)

	got, err := f.mem.GetDemand(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DemandPending, got.Status)
}

func TestPlace_OutsideWindow(t *testing.T) {
	// GIVEN: an afternoon clock in the closed band
	// WHEN: a member tries to place a pre-order
	// THEN: ErrOrderingClosed, and nothing is created

	f := newTestDemandService(t, afternoonZone)
	ctx := context.Background()

	_, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	assert.ErrorIs(t, err, ledger.ErrOrderingClosed)
	assert.ErrorIs(t, err, ledger.ErrValidation, "closed window is a client error")

	demands, err := f.mem.ListDemands(ctx, ledger.DemandFilter{})
	require.NoError(t, err)
	assert.Empty(t, demands)
}

func TestPlace_UnknownCustomerOrItem(t *testing.T) {
	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	_, err := f.svc.Place(ctx, 999, f.item.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.svc.Place(ctx, f.cust.ID, 999)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// APPROVAL
// =============================================================================

func TestApprove_ChargesCurrentPriceAndDecrementsStock(t *testing.T) {
	// GIVEN: a pending demand placed when paratha cost 15, price since
	//        raised to 18
	// WHEN: staff approve it
	// THEN: a Baki sale for 18 lands, stock drops by one, status flips

	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	d, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)

	f.item.Price = dec("18")
	require.NoError(t, f.mem.SaveInventoryItem(ctx, f.item))

	sale, err := f.svc.Approve(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, dec("18").Equal(sale.TotalAmount), "approval charges the current rate")
	assert.Equal(t, ledger.PaymentBaki, sale.PaymentType)
	require.Len(t, sale.Items, 1)
	assert.Equal(t, 1, sale.Items[0].Quantity)

	item, err := f.mem.GetInventoryItem(ctx, f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, item.StockQuantity)

	got, err := f.mem.GetDemand(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DemandFulfilled, got.Status)

	cust, err := f.mem.GetCustomer(ctx, f.cust.ID)
	require.NoError(t, err)
	assert.True(t, dec("18").Equal(cust.TotalBaki), "member balance reflects the approval sale")
}

func TestApprove_ZeroStockClampsAtZero(t *testing.T) {
	// GIVEN: a pending demand for an item whose stock already hit zero
	// WHEN: staff approve it
	// THEN: the member is still charged and stock stays at zero

	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	d, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)

	f.item.StockQuantity = 0
	require.NoError(t, f.mem.SaveInventoryItem(ctx, f.item))

	sale, err := f.svc.Approve(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, dec("15").Equal(sale.TotalAmount))

	item, err := f.mem.GetInventoryItem(ctx, f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, item.StockQuantity, "stock floors at zero, never negative")

	cust, err := f.mem.GetCustomer(ctx, f.cust.ID)
	require.NoError(t, err)
	assert.True(t, dec("15").Equal(cust.TotalBaki))
}

func TestApprove_VanishedItemLeavesNoSideEffects(t *testing.T) {
	// GIVEN: a pending demand whose item was deleted afterwards
	// WHEN: staff approve it
	// THEN: not-found, the demand stays pending and the ledger is untouched

	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	d, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)
	require.NoError(t, f.mem.DeleteInventoryItem(ctx, f.item.ID))

	_, err = f.svc.Approve(ctx, d.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	got, err := f.mem.GetDemand(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DemandPending, got.Status, "failed approval must not consume the demand")

	txs, err := f.mem.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	cust, err := f.mem.GetCustomer(ctx, f.cust.ID)
	require.NoError(t, err)
	assert.True(t, cust.TotalBaki.IsZero())
}

func TestApprove_TerminalStatusConflicts(t *testing.T) {
	// GIVEN: an already-approved demand
	// WHEN: it is approved again, or cancelled
	// THEN: ErrConflict both times, with exactly one sale in the log

	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	d, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, d.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, d.ID)
	assert.ErrorIs(t, err, ledger.ErrConflict, "double approval")

	err = f.svc.Cancel(ctx, d.ID)
	assert.ErrorIs(t, err, ledger.ErrConflict, "cancel after fulfilment")

	txs, err := f.mem.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1, "side effects happen exactly once")
}

func TestCancel_PendingDemand(t *testing.T) {
	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	d, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(ctx, d.ID))

	got, err := f.mem.GetDemand(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DemandCancelled, got.Status)

	_, err = f.svc.Approve(ctx, d.ID)
	assert.ErrorIs(t, err, ledger.ErrConflict, "cancelled is terminal")
}

// =============================================================================
// AUTO-EXPIRY
// =============================================================================

func TestExpireStale_CancelsPendingInZone(t *testing.T) {
	// GIVEN: a demand placed in the evening, clock now in the afternoon
	//        expiry zone
	// WHEN: the member's demands are listed
	// THEN: the demand reads cancelled; no pre-expiry state is visible

	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	d, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)

	f.setClock(afternoonZone)
	demands, err := f.svc.ListForCustomer(ctx, f.cust.ID)
	require.NoError(t, err)
	require.Len(t, demands, 1)
	assert.Equal(t, d.ID, demands[0].ID)
	assert.Equal(t, ledger.DemandCancelled, demands[0].Status)
}

func TestExpireStale_NoOpOutsideZone(t *testing.T) {
	// A pending demand viewed while the window is still open stays pending.
	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	_, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)

	f.setClock(morningOpen)
	demands, err := f.svc.ListForCustomer(ctx, f.cust.ID)
	require.NoError(t, err)
	require.Len(t, demands, 1)
	assert.Equal(t, ledger.DemandPending, demands[0].Status)
}

func TestExpireAllStale_SweepsFleetWide(t *testing.T) {
	// GIVEN: pending demands from two members plus one already fulfilled
	// WHEN: the fleet-wide sweep runs in the expiry zone
	// THEN: only the pending ones are cancelled and the count says two

	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	other := &ledger.Customer{UID: "M-2", Name: "Rahim"}
	require.NoError(t, f.mem.SaveCustomer(ctx, other))

	d1, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)
	_, err = f.svc.Place(ctx, other.ID, f.item.ID)
	require.NoError(t, err)
	fulfilled, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, fulfilled.ID)
	require.NoError(t, err)

	f.setClock(afternoonZone)
	expired, err := f.svc.ExpireAllStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	got, err := f.mem.GetDemand(ctx, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DemandCancelled, got.Status)

	got, err = f.mem.GetDemand(ctx, fulfilled.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DemandFulfilled, got.Status, "terminal states survive the sweep")
}

func TestExpireAllStale_NoOpOutsideZone(t *testing.T) {
	f := newTestDemandService(t, eveningOpen)
	ctx := context.Background()

	_, err := f.svc.Place(ctx, f.cust.ID, f.item.ID)
	require.NoError(t, err)

	expired, err := f.svc.ExpireAllStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}
