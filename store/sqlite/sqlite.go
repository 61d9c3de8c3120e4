/*
Package sqlite provides the SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Production persistence for the canteen ledger. The same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  There is no UPDATE and no DELETE on the transactions table. The only
  exception is PurgeCustomer, which removes a member together with their
  demands and transactions in one SQL transaction.

BALANCE MATERIALIZATION:
  AppendTransaction inserts the row and recomputes the affected member's
  total_baki from the full log before committing, so the stored balance
  can never drift from the log. The arithmetic runs in Go over
  decimal.Decimal; money columns are TEXT to keep SQLite out of the
  floating-point business.

KEY TABLES:
  customers:    members with the materialized total_baki
  inventory:    sellable items, current price and stock
  transactions: immutable ledger (line items as JSON)
  demands:      pre-order requests with their lifecycle status
  settings:     key/value config records
  daily_menus:  per-date orderable item sets

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/canteen.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/messbook/canteen-engine/ledger"
)

// conn is satisfied by both *sql.DB and *sql.Tx. Every operation in this
// package is written against it, so the plain store and the WithTx view
// share one implementation.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY under the write lock and
	// keeps :memory: databases from evaporating between connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		total_baki TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS inventory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_name TEXT NOT NULL,
		price TEXT NOT NULL,
		stock_quantity INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT ''
	);

	-- Append-only ledger. Line items ride along as JSON: they are only
	-- ever read back whole, never queried individually.
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER REFERENCES customers(id),
		items_json TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Balance recomputation and statement reads (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_customer_ts
		ON transactions(customer_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_transactions_ts
		ON transactions(timestamp);

	CREATE TABLE IF NOT EXISTS demands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		customer_name TEXT NOT NULL,
		item_id INTEGER NOT NULL,
		item_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_demands_customer
		ON demands(customer_id, status);
	CREATE INDEX IF NOT EXISTS idx_demands_status
		ON demands(status);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_menus (
		effective_date TEXT PRIMARY KEY,
		item_ids_json TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER.STORE - Store methods lock and delegate to the conn helpers
// =============================================================================

func (s *Store) GetCustomer(ctx context.Context, id int64) (*ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCustomer(ctx, s.db, id)
}

func (s *Store) GetCustomerByUID(ctx context.Context, uid string) (*ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCustomerByUID(ctx, s.db, uid)
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCustomers(ctx, s.db)
}

func (s *Store) SaveCustomer(ctx context.Context, c *ledger.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCustomer(ctx, s.db, c)
}

func (s *Store) UpsertCustomerByUID(ctx context.Context, c *ledger.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertCustomerByUID(ctx, s.db, c)
}

// PurgeCustomer removes the member and, in the same SQL transaction,
// their demands and transactions.
func (s *Store) PurgeCustomer(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapIO(err)
	}
	defer sqlTx.Rollback()

	if err := purgeCustomer(ctx, sqlTx, id); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) GetInventoryItem(ctx context.Context, id int64) (*ledger.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInventoryItem(ctx, s.db, id)
}

func (s *Store) ListInventory(ctx context.Context) ([]ledger.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInventory(ctx, s.db)
}

func (s *Store) SaveInventoryItem(ctx context.Context, item *ledger.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveInventoryItem(ctx, s.db, item)
}

func (s *Store) DeleteInventoryItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteInventoryItem(ctx, s.db, id)
}

func (s *Store) AdjustStock(ctx context.Context, id int64, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return adjustStock(ctx, s.db, id, delta)
}

// AppendTransaction inserts the row and recomputes the affected member's
// total_baki from the full log, all inside one SQL transaction.
func (s *Store) AppendTransaction(ctx context.Context, t *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapIO(err)
	}
	defer sqlTx.Rollback()

	if err := appendTransaction(ctx, sqlTx, t); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, f)
}

func (s *Store) RecomputeBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := getCustomer(ctx, s.db, customerID); err != nil {
		return decimal.Zero, err
	}
	return recomputeBalance(ctx, s.db, customerID)
}

func (s *Store) AppendDemand(ctx context.Context, d *ledger.Demand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendDemand(ctx, s.db, d)
}

func (s *Store) GetDemand(ctx context.Context, id int64) (*ledger.Demand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDemand(ctx, s.db, id)
}

func (s *Store) ListDemands(ctx context.Context, f ledger.DemandFilter) ([]ledger.Demand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDemands(ctx, s.db, f)
}

func (s *Store) UpdateDemandStatus(ctx context.Context, id int64, from, to ledger.DemandStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateDemandStatus(ctx, s.db, id, from, to)
}

func (s *Store) ReadSetting(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readSetting(ctx, s.db, key)
}

func (s *Store) UpsertSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertSetting(ctx, s.db, key, value)
}

func (s *Store) GetDailyMenu(ctx context.Context, date time.Time) (*ledger.DailyMenu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDailyMenu(ctx, s.db, date)
}

func (s *Store) SaveDailyMenu(ctx context.Context, menu ledger.DailyMenu) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveDailyMenu(ctx, s.db, menu)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore)
// =============================================================================

// WithTx executes fn against a view bound to one SQL transaction. If fn
// returns an error the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapIO(err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txView{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txView implements ledger.Store over an open *sql.Tx. The parent holds
// the write lock for the duration, so no locking here.
type txView struct {
	tx *sql.Tx
}

func (v *txView) GetCustomer(ctx context.Context, id int64) (*ledger.Customer, error) {
	return getCustomer(ctx, v.tx, id)
}

func (v *txView) GetCustomerByUID(ctx context.Context, uid string) (*ledger.Customer, error) {
	return getCustomerByUID(ctx, v.tx, uid)
}

func (v *txView) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	return listCustomers(ctx, v.tx)
}

func (v *txView) SaveCustomer(ctx context.Context, c *ledger.Customer) error {
	return saveCustomer(ctx, v.tx, c)
}

func (v *txView) UpsertCustomerByUID(ctx context.Context, c *ledger.Customer) error {
	return upsertCustomerByUID(ctx, v.tx, c)
}

func (v *txView) PurgeCustomer(ctx context.Context, id int64) error {
	return purgeCustomer(ctx, v.tx, id)
}

func (v *txView) GetInventoryItem(ctx context.Context, id int64) (*ledger.InventoryItem, error) {
	return getInventoryItem(ctx, v.tx, id)
}

func (v *txView) ListInventory(ctx context.Context) ([]ledger.InventoryItem, error) {
	return listInventory(ctx, v.tx)
}

func (v *txView) SaveInventoryItem(ctx context.Context, item *ledger.InventoryItem) error {
	return saveInventoryItem(ctx, v.tx, item)
}

func (v *txView) DeleteInventoryItem(ctx context.Context, id int64) error {
	return deleteInventoryItem(ctx, v.tx, id)
}

func (v *txView) AdjustStock(ctx context.Context, id int64, delta int) error {
	return adjustStock(ctx, v.tx, id, delta)
}

func (v *txView) AppendTransaction(ctx context.Context, t *ledger.Transaction) error {
	return appendTransaction(ctx, v.tx, t)
}

func (v *txView) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return listTransactions(ctx, v.tx, f)
}

func (v *txView) RecomputeBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	if _, err := getCustomer(ctx, v.tx, customerID); err != nil {
		return decimal.Zero, err
	}
	return recomputeBalance(ctx, v.tx, customerID)
}

func (v *txView) AppendDemand(ctx context.Context, d *ledger.Demand) error {
	return appendDemand(ctx, v.tx, d)
}

func (v *txView) GetDemand(ctx context.Context, id int64) (*ledger.Demand, error) {
	return getDemand(ctx, v.tx, id)
}

func (v *txView) ListDemands(ctx context.Context, f ledger.DemandFilter) ([]ledger.Demand, error) {
	return listDemands(ctx, v.tx, f)
}

func (v *txView) UpdateDemandStatus(ctx context.Context, id int64, from, to ledger.DemandStatus) error {
	return updateDemandStatus(ctx, v.tx, id, from, to)
}

func (v *txView) ReadSetting(ctx context.Context, key string) (string, error) {
	return readSetting(ctx, v.tx, key)
}

func (v *txView) UpsertSetting(ctx context.Context, key, value string) error {
	return upsertSetting(ctx, v.tx, key, value)
}

func (v *txView) GetDailyMenu(ctx context.Context, date time.Time) (*ledger.DailyMenu, error) {
	return getDailyMenu(ctx, v.tx, date)
}

func (v *txView) SaveDailyMenu(ctx context.Context, menu ledger.DailyMenu) error {
	return saveDailyMenu(ctx, v.tx, menu)
}

// =============================================================================
// CUSTOMERS
// =============================================================================

const customerColumns = "id, uid, name, phone, email, total_baki, created_at"

func getCustomer(ctx context.Context, c conn, id int64) (*ledger.Customer, error) {
	row := c.QueryRowContext(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE id = ?", id)
	cust, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "customer", ID: id}
	}
	return cust, err
}

func getCustomerByUID(ctx context.Context, c conn, uid string) (*ledger.Customer, error) {
	row := c.QueryRowContext(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE uid = ?", uid)
	cust, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "customer", ID: uid}
	}
	return cust, err
}

func scanCustomer(row *sql.Row) (*ledger.Customer, error) {
	var c ledger.Customer
	var totalBaki, createdAt string
	if err := row.Scan(&c.ID, &c.UID, &c.Name, &c.Phone, &c.Email, &totalBaki, &createdAt); err != nil {
		return nil, err
	}
	c.TotalBaki = mustDecimal(totalBaki)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func listCustomers(ctx context.Context, c conn) ([]ledger.Customer, error) {
	rows, err := c.QueryContext(ctx,
		"SELECT "+customerColumns+" FROM customers ORDER BY name")
	if err != nil {
		return nil, wrapIO(err)
	}
	defer rows.Close()

	var customers []ledger.Customer
	for rows.Next() {
		var cust ledger.Customer
		var totalBaki, createdAt string
		if err := rows.Scan(&cust.ID, &cust.UID, &cust.Name, &cust.Phone, &cust.Email, &totalBaki, &createdAt); err != nil {
			return nil, err
		}
		cust.TotalBaki = mustDecimal(totalBaki)
		cust.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		customers = append(customers, cust)
	}
	return customers, rows.Err()
}

func saveCustomer(ctx context.Context, c conn, cust *ledger.Customer) error {
	if cust.ID == 0 {
		cust.CreatedAt = time.Now().UTC()
		res, err := c.ExecContext(ctx,
			"INSERT INTO customers (uid, name, phone, email, total_baki, created_at) VALUES (?, ?, ?, ?, '0', ?)",
			cust.UID, cust.Name, cust.Phone, cust.Email, cust.CreatedAt.Format(time.RFC3339))
		if err != nil {
			if isUniqueConstraintError(err) {
				return &ledger.ConflictError{Reason: "uid already registered: " + cust.UID}
			}
			return wrapIO(err)
		}
		cust.ID, _ = res.LastInsertId()
		return nil
	}

	// total_baki is owned by the transaction log and never written here.
	res, err := c.ExecContext(ctx,
		"UPDATE customers SET uid = ?, name = ?, phone = ?, email = ? WHERE id = ?",
		cust.UID, cust.Name, cust.Phone, cust.Email, cust.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{Reason: "uid already registered: " + cust.UID}
		}
		return wrapIO(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "customer", ID: cust.ID}
	}
	return nil
}

func upsertCustomerByUID(ctx context.Context, c conn, cust *ledger.Customer) error {
	_, err := c.ExecContext(ctx, `
		INSERT INTO customers (uid, name, phone, email, total_baki, created_at)
		VALUES (?, ?, ?, ?, '0', ?)
		ON CONFLICT(uid) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			email = excluded.email`,
		cust.UID, cust.Name, cust.Phone, cust.Email, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return wrapIO(err)
	}
	return c.QueryRowContext(ctx, "SELECT id FROM customers WHERE uid = ?", cust.UID).Scan(&cust.ID)
}

func purgeCustomer(ctx context.Context, c conn, id int64) error {
	res, err := c.ExecContext(ctx, "DELETE FROM customers WHERE id = ?", id)
	if err != nil {
		return wrapIO(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "customer", ID: id}
	}
	if _, err := c.ExecContext(ctx, "DELETE FROM demands WHERE customer_id = ?", id); err != nil {
		return wrapIO(err)
	}
	if _, err := c.ExecContext(ctx, "DELETE FROM transactions WHERE customer_id = ?", id); err != nil {
		return wrapIO(err)
	}
	return nil
}

// =============================================================================
// INVENTORY
// =============================================================================

func getInventoryItem(ctx context.Context, c conn, id int64) (*ledger.InventoryItem, error) {
	var it ledger.InventoryItem
	var price string
	err := c.QueryRowContext(ctx,
		"SELECT id, item_name, price, stock_quantity, category, image_url FROM inventory WHERE id = ?", id,
	).Scan(&it.ID, &it.ItemName, &price, &it.StockQuantity, &it.Category, &it.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "inventory item", ID: id}
	}
	if err != nil {
		return nil, wrapIO(err)
	}
	it.Price = mustDecimal(price)
	return &it, nil
}

func listInventory(ctx context.Context, c conn) ([]ledger.InventoryItem, error) {
	rows, err := c.QueryContext(ctx,
		"SELECT id, item_name, price, stock_quantity, category, image_url FROM inventory ORDER BY item_name")
	if err != nil {
		return nil, wrapIO(err)
	}
	defer rows.Close()

	var items []ledger.InventoryItem
	for rows.Next() {
		var it ledger.InventoryItem
		var price string
		if err := rows.Scan(&it.ID, &it.ItemName, &price, &it.StockQuantity, &it.Category, &it.ImageURL); err != nil {
			return nil, err
		}
		it.Price = mustDecimal(price)
		items = append(items, it)
	}
	return items, rows.Err()
}

func saveInventoryItem(ctx context.Context, c conn, item *ledger.InventoryItem) error {
	if item.ID == 0 {
		res, err := c.ExecContext(ctx,
			"INSERT INTO inventory (item_name, price, stock_quantity, category, image_url) VALUES (?, ?, ?, ?, ?)",
			item.ItemName, item.Price.String(), item.StockQuantity, item.Category, item.ImageURL)
		if err != nil {
			return wrapIO(err)
		}
		item.ID, _ = res.LastInsertId()
		return nil
	}

	res, err := c.ExecContext(ctx,
		"UPDATE inventory SET item_name = ?, price = ?, stock_quantity = ?, category = ?, image_url = ? WHERE id = ?",
		item.ItemName, item.Price.String(), item.StockQuantity, item.Category, item.ImageURL, item.ID)
	if err != nil {
		return wrapIO(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "inventory item", ID: item.ID}
	}
	return nil
}

func deleteInventoryItem(ctx context.Context, c conn, id int64) error {
	res, err := c.ExecContext(ctx, "DELETE FROM inventory WHERE id = ?", id)
	if err != nil {
		return wrapIO(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "inventory item", ID: id}
	}
	return nil
}

func adjustStock(ctx context.Context, c conn, id int64, delta int) error {
	// Floor at zero: stock is a best-effort counter, never negative.
	res, err := c.ExecContext(ctx,
		"UPDATE inventory SET stock_quantity = MAX(0, stock_quantity + ?) WHERE id = ?", delta, id)
	if err != nil {
		return wrapIO(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "inventory item", ID: id}
	}
	return nil
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func appendTransaction(ctx context.Context, c conn, t *ledger.Transaction) error {
	if t.CustomerID != nil {
		if _, err := getCustomer(ctx, c, *t.CustomerID); err != nil {
			return err
		}
	}

	itemsJSON, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("failed to encode line items: %w", err)
	}
	t.CreatedAt = time.Now().UTC()

	res, err := c.ExecContext(ctx, `
		INSERT INTO transactions (customer_id, items_json, total_amount, payment_type, tx_type, note, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(t.CustomerID),
		string(itemsJSON),
		t.TotalAmount.String(),
		string(t.PaymentType),
		string(t.Type),
		t.Note,
		t.Timestamp.UTC().Format(time.RFC3339),
		t.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return wrapIO(err)
	}
	t.ID, _ = res.LastInsertId()

	if t.CustomerID != nil {
		if _, err := recomputeBalance(ctx, c, *t.CustomerID); err != nil {
			return err
		}
	}
	return nil
}

func listTransactions(ctx context.Context, c conn, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	query := `
		SELECT id, customer_id, items_json, total_amount, payment_type, tx_type, note, timestamp, created_at
		FROM transactions`
	var where []string
	var args []any
	if f.CustomerID != nil {
		where = append(where, "customer_id = ?")
		args = append(args, *f.CustomerID)
	}
	if f.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapIO(err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		var customerID sql.NullInt64
		var itemsJSON, totalAmount, timestamp, createdAt string
		if err := rows.Scan(&t.ID, &customerID, &itemsJSON, &totalAmount,
			&t.PaymentType, &t.Type, &t.Note, &timestamp, &createdAt); err != nil {
			return nil, err
		}
		if customerID.Valid {
			id := customerID.Int64
			t.CustomerID = &id
		}
		if err := json.Unmarshal([]byte(itemsJSON), &t.Items); err != nil {
			return nil, fmt.Errorf("failed to decode line items for transaction %d: %w", t.ID, err)
		}
		t.TotalAmount = mustDecimal(totalAmount)
		t.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func recomputeBalance(ctx context.Context, c conn, customerID int64) (decimal.Decimal, error) {
	txs, err := listTransactions(ctx, c, ledger.TransactionFilter{CustomerID: &customerID})
	if err != nil {
		return decimal.Zero, err
	}
	balance := ledger.BalanceFromLog(txs)
	if _, err := c.ExecContext(ctx,
		"UPDATE customers SET total_baki = ? WHERE id = ?", balance.String(), customerID); err != nil {
		return decimal.Zero, wrapIO(err)
	}
	return balance, nil
}

// =============================================================================
// DEMANDS
// =============================================================================

func appendDemand(ctx context.Context, c conn, d *ledger.Demand) error {
	if _, err := getCustomer(ctx, c, d.CustomerID); err != nil {
		return err
	}
	res, err := c.ExecContext(ctx, `
		INSERT INTO demands (customer_id, customer_name, item_id, item_name, status, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.CustomerID, d.CustomerName, d.ItemID, d.ItemName, string(d.Status),
		d.Timestamp.UTC().Format(time.RFC3339))
	if err != nil {
		return wrapIO(err)
	}
	d.ID, _ = res.LastInsertId()
	return nil
}

func getDemand(ctx context.Context, c conn, id int64) (*ledger.Demand, error) {
	var d ledger.Demand
	var timestamp string
	err := c.QueryRowContext(ctx,
		"SELECT id, customer_id, customer_name, item_id, item_name, status, timestamp FROM demands WHERE id = ?", id,
	).Scan(&d.ID, &d.CustomerID, &d.CustomerName, &d.ItemID, &d.ItemName, &d.Status, &timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "demand", ID: id}
	}
	if err != nil {
		return nil, wrapIO(err)
	}
	d.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
	return &d, nil
}

func listDemands(ctx context.Context, c conn, f ledger.DemandFilter) ([]ledger.Demand, error) {
	query := "SELECT id, customer_id, customer_name, item_id, item_name, status, timestamp FROM demands"
	var where []string
	var args []any
	if f.CustomerID != nil {
		where = append(where, "customer_id = ?")
		args = append(args, *f.CustomerID)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"

	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapIO(err)
	}
	defer rows.Close()

	var demands []ledger.Demand
	for rows.Next() {
		var d ledger.Demand
		var timestamp string
		if err := rows.Scan(&d.ID, &d.CustomerID, &d.CustomerName, &d.ItemID, &d.ItemName, &d.Status, &timestamp); err != nil {
			return nil, err
		}
		d.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
		demands = append(demands, d)
	}
	return demands, rows.Err()
}

// updateDemandStatus is a compare-and-set: the row only moves if its
// stored status still matches from.
func updateDemandStatus(ctx context.Context, c conn, id int64, from, to ledger.DemandStatus) error {
	res, err := c.ExecContext(ctx,
		"UPDATE demands SET status = ? WHERE id = ? AND status = ?",
		string(to), id, string(from))
	if err != nil {
		return wrapIO(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// Distinguish a missing row from a lost race.
	d, err := getDemand(ctx, c, id)
	if err != nil {
		return err
	}
	return &ledger.ConflictError{Reason: "demand is " + string(d.Status) + ", expected " + string(from)}
}

// =============================================================================
// SETTINGS & DAILY MENU
// =============================================================================

func readSetting(ctx context.Context, c conn, key string) (string, error) {
	var value string
	err := c.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &ledger.NotFoundError{Kind: "setting", ID: key}
	}
	if err != nil {
		return "", wrapIO(err)
	}
	return value, nil
}

func upsertSetting(ctx context.Context, c conn, key, value string) error {
	_, err := c.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return wrapIO(err)
	}
	return nil
}

func getDailyMenu(ctx context.Context, c conn, date time.Time) (*ledger.DailyMenu, error) {
	day := date.Format("2006-01-02")
	var itemIDsJSON string
	err := c.QueryRowContext(ctx,
		"SELECT item_ids_json FROM daily_menus WHERE effective_date = ?", day).Scan(&itemIDsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Kind: "daily menu", ID: day}
	}
	if err != nil {
		return nil, wrapIO(err)
	}

	menu := &ledger.DailyMenu{EffectiveDate: midnight(date)}
	if err := json.Unmarshal([]byte(itemIDsJSON), &menu.ItemIDs); err != nil {
		return nil, fmt.Errorf("failed to decode daily menu %s: %w", day, err)
	}
	return menu, nil
}

func saveDailyMenu(ctx context.Context, c conn, menu ledger.DailyMenu) error {
	itemIDsJSON, err := json.Marshal(menu.ItemIDs)
	if err != nil {
		return fmt.Errorf("failed to encode daily menu: %w", err)
	}
	_, err = c.ExecContext(ctx, `
		INSERT INTO daily_menus (effective_date, item_ids_json) VALUES (?, ?)
		ON CONFLICT(effective_date) DO UPDATE SET item_ids_json = excluded.item_ids_json`,
		menu.EffectiveDate.Format("2006-01-02"), string(itemIDsJSON))
	if err != nil {
		return wrapIO(err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func wrapIO(err error) error {
	return fmt.Errorf("%w: %v", ledger.ErrTransientIO, err)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
