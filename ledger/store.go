/*
store.go - Persistence interfaces for the canteen ledger

PURPOSE:
  Defines the interface between the domain logic and the database. The
  transaction log is append-only; customer balances are a materialized
  aggregate the store recomputes inside the same write that appends a
  transaction.

APPEND-ONLY CONTRACT:
  AppendTransaction is the ONLY way a transaction enters the log, and it
  is the ONLY operation that moves a customer's TotalBaki. There is no
  UpdateTransaction and no DeleteTransaction. The single exception is
  PurgeCustomer, an explicit admin operation that removes a member along
  with their demands and transactions in one atomic write.

ATOMICITY:
  Operations that span tables (demand approval: append sale, decrement
  stock, flip status) run inside TxStore.WithTx. Implementations must
  make the whole function atomic: either every write lands or none do.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (WAL mode)
  - ledger/store: in-memory, for tests and dev

SEE ALSO:
  - engine.go: the only caller of AppendTransaction
  - demand/: runs its approval flow under WithTx
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

// TransactionFilter narrows ListTransactions. Nil fields match everything.
type TransactionFilter struct {
	CustomerID *int64
	From       *time.Time
	To         *time.Time
}

// DemandFilter narrows ListDemands. Nil fields match everything.
type DemandFilter struct {
	CustomerID *int64
	Status     *DemandStatus
}

// =============================================================================
// STORE - Full ledger persistence
// =============================================================================

// CustomerStore persists members.
type CustomerStore interface {
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	GetCustomerByUID(ctx context.Context, uid string) (*Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)

	// SaveCustomer inserts (ID zero) or updates an existing member.
	// TotalBaki is owned by the transaction log and is not written here.
	SaveCustomer(ctx context.Context, c *Customer) error

	// UpsertCustomerByUID inserts or updates keyed on UID. Used by bulk
	// import.
	UpsertCustomerByUID(ctx context.Context, c *Customer) error

	// PurgeCustomer removes the member and, atomically, their demands and
	// transactions. Admin-only.
	PurgeCustomer(ctx context.Context, id int64) error
}

// InventoryStore persists sellable items.
type InventoryStore interface {
	GetInventoryItem(ctx context.Context, id int64) (*InventoryItem, error)
	ListInventory(ctx context.Context) ([]InventoryItem, error)
	SaveInventoryItem(ctx context.Context, item *InventoryItem) error
	DeleteInventoryItem(ctx context.Context, id int64) error

	// AdjustStock applies a delta to an item's stock, clamped at zero.
	AdjustStock(ctx context.Context, id int64, delta int) error
}

// TransactionStore is the append-only ledger log.
type TransactionStore interface {
	// AppendTransaction assigns the ID, persists the row and, in the same
	// atomic write, recomputes the affected customer's TotalBaki from the
	// full log. This is the single authoritative balance mutation path.
	AppendTransaction(ctx context.Context, t *Transaction) error

	// ListTransactions returns matching entries ordered by timestamp.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)

	// RecomputeBalance re-derives a customer's TotalBaki from the log and
	// stores it. Idempotent; exists as a reconciliation pass for operators.
	RecomputeBalance(ctx context.Context, customerID int64) (decimal.Decimal, error)
}

// DemandStore persists pre-order requests.
type DemandStore interface {
	AppendDemand(ctx context.Context, d *Demand) error
	GetDemand(ctx context.Context, id int64) (*Demand, error)
	ListDemands(ctx context.Context, f DemandFilter) ([]Demand, error)

	// UpdateDemandStatus transitions a demand from one status to another.
	// The from-status is a compare-and-set guard: if the stored status no
	// longer matches, the update fails with ErrConflict and nothing
	// changes. Terminal states are immutable by construction.
	UpdateDemandStatus(ctx context.Context, id int64, from, to DemandStatus) error
}

// SettingsStore persists the config record and daily menus.
type SettingsStore interface {
	ReadSetting(ctx context.Context, key string) (string, error)
	UpsertSetting(ctx context.Context, key, value string) error

	GetDailyMenu(ctx context.Context, date time.Time) (*DailyMenu, error)
	SaveDailyMenu(ctx context.Context, m DailyMenu) error
}

// Store is the full persistence surface the engine and aggregators use.
type Store interface {
	CustomerStore
	InventoryStore
	TransactionStore
	DemandStore
	SettingsStore
}

// TxStore wraps Store with multi-operation atomicity.
type TxStore interface {
	Store

	// WithTx executes fn against a Store bound to one transaction. If fn
	// returns an error the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
