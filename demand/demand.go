/*
Package demand implements the pre-order lifecycle.

PURPOSE:
  Members submit next-morning pre-orders ("demands") during an evening
  ordering window. Staff approve or reject them; approval is the moment
  the ledger is touched: a sale at the item's CURRENT price, a stock
  decrement and the status flip land in one store transaction. Pending
  demands left over into the afternoon are presumed served and are
  auto-cancelled before any member-facing read.

STATE MACHINE:
  pending -> fulfilled   (admin approval, ledger side effects)
  pending -> cancelled   (reject, self-revoke, or auto-expiry; no ledger
                          side effects)
  fulfilled / cancelled are terminal. Transitions go through the store's
  compare-and-set guard, so a double approval or an approve-after-cancel
  loses cleanly with ErrConflict.

STOCK AT APPROVAL:
  Submission never reserves stock, so demand volume may exceed supply.
  Approval decrements with a floor at zero: approving at zero stock
  charges the member and leaves stock at zero rather than refusing, which
  matches how the counter actually operates (the item was served; the
  count was already wrong).
*/
package demand

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/messbook/canteen-engine/ledger"
)

// =============================================================================
// ORDERING WINDOW
// =============================================================================

// Window is the daily ordering window, defined by two local-clock hour
// boundaries and wrapping past midnight: open from OpenHour through
// midnight until CloseHour.
type Window struct {
	OpenHour  int // inclusive: ordering opens at this hour
	CloseHour int // exclusive: ordering closes at this hour
}

// DefaultWindow opens at 20:00 and closes at noon the next day. The band
// from noon to 20:00 is the expiry zone: pending demands found there are
// presumed already served.
var DefaultWindow = Window{OpenHour: 20, CloseHour: 12}

// IsOpen reports whether a pre-order may be placed at t.
func (w Window) IsOpen(t time.Time) bool {
	h := t.Hour()
	if w.OpenHour > w.CloseHour {
		// Wraps past midnight.
		return h >= w.OpenHour || h < w.CloseHour
	}
	return h >= w.OpenHour && h < w.CloseHour
}

// InExpiryZone reports whether t falls in the closed daytime band where
// leftover pending demands are auto-cancelled.
func (w Window) InExpiryZone(t time.Time) bool {
	return !w.IsOpen(t)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service drives the demand lifecycle against the ledger store.
type Service struct {
	Store  ledger.TxStore
	Window Window
	Logger zerolog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewService creates a demand service with the default ordering window.
func NewService(store ledger.TxStore, logger zerolog.Logger) *Service {
	return &Service{
		Store:  store,
		Window: DefaultWindow,
		Logger: logger,
		Now:    time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Place submits a pre-order for the member. Outside the ordering window
// nothing is created and ErrOrderingClosed is returned.
func (s *Service) Place(ctx context.Context, customerID, itemID int64) (*ledger.Demand, error) {
	now := s.now()
	if !s.Window.IsOpen(now) {
		return nil, ledger.ErrOrderingClosed
	}

	customer, err := s.Store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	item, err := s.Store.GetInventoryItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	d := &ledger.Demand{
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		ItemID:       item.ID,
		ItemName:     item.ItemName,
		Status:       ledger.DemandPending,
		Timestamp:    now,
	}
	if err := s.Store.AppendDemand(ctx, d); err != nil {
		return nil, err
	}
	s.Logger.Info().
		Int64("demand_id", d.ID).
		Int64("customer_id", customer.ID).
		Str("item", item.ItemName).
		Msg("demand placed")
	return d, nil
}

// Approve fulfils a pending demand: one atomic store transaction appends
// a Baki sale at the item's current price, decrements stock (floored at
// zero) and flips the status. If the item no longer exists or the demand
// is not pending, nothing is written.
func (s *Service) Approve(ctx context.Context, demandID int64) (*ledger.Transaction, error) {
	var sale *ledger.Transaction

	err := s.Store.WithTx(ctx, func(tx ledger.Store) error {
		d, err := tx.GetDemand(ctx, demandID)
		if err != nil {
			return err
		}
		if d.Status != ledger.DemandPending {
			return &ledger.ConflictError{Reason: "demand is " + string(d.Status) + ", expected pending"}
		}
		// Current price, read inside the transaction. A vanished item
		// fails the whole approval before any write.
		item, err := tx.GetInventoryItem(ctx, d.ItemID)
		if err != nil {
			return err
		}

		t := &ledger.Transaction{
			CustomerID: &d.CustomerID,
			Items: []ledger.TransactionItem{{
				ItemID:   item.ID,
				ItemName: item.ItemName,
				Price:    item.Price,
				Quantity: 1,
				Kind:     ledger.KindForName(item.ItemName),
			}},
			TotalAmount: item.Price,
			PaymentType: ledger.PaymentBaki,
			Type:        ledger.TxSale,
			Note:        "pre-order approval",
			Timestamp:   s.now(),
		}
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return err
		}
		if err := tx.AdjustStock(ctx, item.ID, -1); err != nil {
			return err
		}
		if err := tx.UpdateDemandStatus(ctx, d.ID, ledger.DemandPending, ledger.DemandFulfilled); err != nil {
			return err
		}
		sale = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info().
		Int64("demand_id", demandID).
		Int64("transaction_id", sale.ID).
		Str("amount", sale.TotalAmount.String()).
		Msg("demand approved")
	return sale, nil
}

// Cancel moves a pending demand to cancelled. No ledger side effects.
func (s *Service) Cancel(ctx context.Context, demandID int64) error {
	return s.Store.UpdateDemandStatus(ctx, demandID, ledger.DemandPending, ledger.DemandCancelled)
}

// ExpireStale cancels the member's pending demands when the clock is in
// the expiry zone. Outside the zone it is a no-op. Returns how many were
// cancelled.
func (s *Service) ExpireStale(ctx context.Context, customerID int64) (int, error) {
	if !s.Window.InExpiryZone(s.now()) {
		return 0, nil
	}
	return s.expirePending(ctx, ledger.DemandFilter{CustomerID: &customerID})
}

// ExpireAllStale is the sweeper entry point: in the expiry zone it
// cancels every pending demand fleet-wide.
func (s *Service) ExpireAllStale(ctx context.Context) (int, error) {
	if !s.Window.InExpiryZone(s.now()) {
		return 0, nil
	}
	return s.expirePending(ctx, ledger.DemandFilter{})
}

func (s *Service) expirePending(ctx context.Context, f ledger.DemandFilter) (int, error) {
	pending := ledger.DemandPending
	f.Status = &pending

	demands, err := s.Store.ListDemands(ctx, f)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, d := range demands {
		err := s.Store.UpdateDemandStatus(ctx, d.ID, ledger.DemandPending, ledger.DemandCancelled)
		switch {
		case err == nil:
			expired++
		case ledger.IsClientError(err):
			// Lost the race to an approval. Fine.
		default:
			return expired, err
		}
	}
	if expired > 0 {
		s.Logger.Info().Int("expired", expired).Msg("stale demands cancelled")
	}
	return expired, nil
}

// ListForCustomer returns the member's demands, newest first, after
// applying auto-expiry, so the caller never sees pre-expiry state.
func (s *Service) ListForCustomer(ctx context.Context, customerID int64) ([]ledger.Demand, error) {
	if _, err := s.ExpireStale(ctx, customerID); err != nil {
		return nil, err
	}
	return s.Store.ListDemands(ctx, ledger.DemandFilter{CustomerID: &customerID})
}
