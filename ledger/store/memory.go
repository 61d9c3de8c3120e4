// Package store provides an in-memory ledger.Store for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/messbook/canteen-engine/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements ledger.TxStore with plain maps. Atomicity for WithTx
// is simulated with a snapshot + rollback on error.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

type state struct {
	customers    map[int64]ledger.Customer
	customerUIDs map[string]int64
	inventory    map[int64]ledger.InventoryItem
	transactions []ledger.Transaction
	demands      map[int64]ledger.Demand
	settings     map[string]string
	menus        map[string]ledger.DailyMenu // keyed by YYYY-MM-DD

	nextCustomerID int64
	nextItemID     int64
	nextTxID       int64
	nextDemandID   int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{s: newState()}
}

func newState() *state {
	return &state{
		customers:    make(map[int64]ledger.Customer),
		customerUIDs: make(map[string]int64),
		inventory:    make(map[int64]ledger.InventoryItem),
		demands:      make(map[int64]ledger.Demand),
		settings:     make(map[string]string),
		menus:        make(map[string]ledger.DailyMenu),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.customerUIDs {
		c.customerUIDs[k] = v
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	for k, v := range s.demands {
		c.demands[k] = v
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	for k, v := range s.menus {
		c.menus[k] = v
	}
	c.transactions = append([]ledger.Transaction(nil), s.transactions...)
	c.nextCustomerID = s.nextCustomerID
	c.nextItemID = s.nextItemID
	c.nextTxID = s.nextTxID
	c.nextDemandID = s.nextDemandID
	return c
}

// WithTx executes fn against a view sharing this store's data. On error
// the pre-call snapshot is restored.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	view := &Memory{s: m.s}
	if err := fn(view); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (m *Memory) GetCustomer(_ context.Context, id int64) (*ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.s.customers[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "customer", ID: id}
	}
	return &c, nil
}

func (m *Memory) GetCustomerByUID(_ context.Context, uid string) (*ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.s.customerUIDs[uid]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "customer", ID: uid}
	}
	c := m.s.customers[id]
	return &c, nil
}

func (m *Memory) ListCustomers(_ context.Context) ([]ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.Customer, 0, len(m.s.customers))
	for _, c := range m.s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SaveCustomer(_ context.Context, c *ledger.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == 0 {
		if _, taken := m.s.customerUIDs[c.UID]; taken {
			return &ledger.ConflictError{Reason: "uid already registered: " + c.UID}
		}
		m.s.nextCustomerID++
		c.ID = m.s.nextCustomerID
		c.CreatedAt = time.Now()
	} else {
		existing, ok := m.s.customers[c.ID]
		if !ok {
			return &ledger.NotFoundError{Kind: "customer", ID: c.ID}
		}
		if other, taken := m.s.customerUIDs[c.UID]; taken && other != c.ID {
			return &ledger.ConflictError{Reason: "uid already registered: " + c.UID}
		}
		delete(m.s.customerUIDs, existing.UID)
		// The log owns the balance.
		c.TotalBaki = existing.TotalBaki
		c.CreatedAt = existing.CreatedAt
	}
	m.s.customers[c.ID] = *c
	m.s.customerUIDs[c.UID] = c.ID
	return nil
}

func (m *Memory) UpsertCustomerByUID(ctx context.Context, c *ledger.Customer) error {
	m.mu.RLock()
	id, exists := m.s.customerUIDs[c.UID]
	m.mu.RUnlock()

	if exists {
		c.ID = id
	} else {
		c.ID = 0
	}
	return m.SaveCustomer(ctx, c)
}

func (m *Memory) PurgeCustomer(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.s.customers[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "customer", ID: id}
	}
	delete(m.s.customers, id)
	delete(m.s.customerUIDs, c.UID)
	for did, d := range m.s.demands {
		if d.CustomerID == id {
			delete(m.s.demands, did)
		}
	}
	kept := m.s.transactions[:0]
	for _, t := range m.s.transactions {
		if t.CustomerID == nil || *t.CustomerID != id {
			kept = append(kept, t)
		}
	}
	m.s.transactions = kept
	return nil
}

// =============================================================================
// INVENTORY
// =============================================================================

func (m *Memory) GetInventoryItem(_ context.Context, id int64) (*ledger.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.s.inventory[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "inventory item", ID: id}
	}
	return &it, nil
}

func (m *Memory) ListInventory(_ context.Context) ([]ledger.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.InventoryItem, 0, len(m.s.inventory))
	for _, it := range m.s.inventory {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemName < out[j].ItemName })
	return out, nil
}

func (m *Memory) SaveInventoryItem(_ context.Context, item *ledger.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == 0 {
		m.s.nextItemID++
		item.ID = m.s.nextItemID
	} else if _, ok := m.s.inventory[item.ID]; !ok {
		return &ledger.NotFoundError{Kind: "inventory item", ID: item.ID}
	}
	m.s.inventory[item.ID] = *item
	return nil
}

func (m *Memory) DeleteInventoryItem(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.s.inventory[id]; !ok {
		return &ledger.NotFoundError{Kind: "inventory item", ID: id}
	}
	delete(m.s.inventory, id)
	return nil
}

func (m *Memory) AdjustStock(_ context.Context, id int64, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.s.inventory[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "inventory item", ID: id}
	}
	it.StockQuantity += delta
	if it.StockQuantity < 0 {
		it.StockQuantity = 0
	}
	m.s.inventory[id] = it
	return nil
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func (m *Memory) AppendTransaction(_ context.Context, t *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.CustomerID != nil {
		if _, ok := m.s.customers[*t.CustomerID]; !ok {
			return &ledger.NotFoundError{Kind: "customer", ID: *t.CustomerID}
		}
	}
	m.s.nextTxID++
	t.ID = m.s.nextTxID
	t.CreatedAt = time.Now()
	m.s.transactions = append(m.s.transactions, *t)

	if t.CustomerID != nil {
		m.recomputeLocked(*t.CustomerID)
	}
	return nil
}

func (m *Memory) ListTransactions(_ context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Transaction
	for _, t := range m.s.transactions {
		if f.CustomerID != nil && (t.CustomerID == nil || *t.CustomerID != *f.CustomerID) {
			continue
		}
		if f.From != nil && t.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && t.Timestamp.After(*f.To) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) RecomputeBalance(_ context.Context, customerID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.s.customers[customerID]; !ok {
		return decimal.Zero, &ledger.NotFoundError{Kind: "customer", ID: customerID}
	}
	return m.recomputeLocked(customerID), nil
}

func (m *Memory) recomputeLocked(customerID int64) decimal.Decimal {
	var txs []ledger.Transaction
	for _, t := range m.s.transactions {
		if t.CustomerID != nil && *t.CustomerID == customerID {
			txs = append(txs, t)
		}
	}
	balance := ledger.BalanceFromLog(txs)
	c := m.s.customers[customerID]
	c.TotalBaki = balance
	m.s.customers[customerID] = c
	return balance
}

// =============================================================================
// DEMANDS
// =============================================================================

func (m *Memory) AppendDemand(_ context.Context, d *ledger.Demand) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.s.customers[d.CustomerID]; !ok {
		return &ledger.NotFoundError{Kind: "customer", ID: d.CustomerID}
	}
	m.s.nextDemandID++
	d.ID = m.s.nextDemandID
	m.s.demands[d.ID] = *d
	return nil
}

func (m *Memory) GetDemand(_ context.Context, id int64) (*ledger.Demand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.s.demands[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "demand", ID: id}
	}
	return &d, nil
}

func (m *Memory) ListDemands(_ context.Context, f ledger.DemandFilter) ([]ledger.Demand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Demand
	for _, d := range m.s.demands {
		if f.CustomerID != nil && d.CustomerID != *f.CustomerID {
			continue
		}
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) UpdateDemandStatus(_ context.Context, id int64, from, to ledger.DemandStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.s.demands[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "demand", ID: id}
	}
	if d.Status != from {
		return &ledger.ConflictError{Reason: "demand is " + string(d.Status) + ", expected " + string(from)}
	}
	d.Status = to
	m.s.demands[id] = d
	return nil
}

// =============================================================================
// SETTINGS & DAILY MENU
// =============================================================================

func (m *Memory) ReadSetting(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.s.settings[key]
	if !ok {
		return "", &ledger.NotFoundError{Kind: "setting", ID: key}
	}
	return v, nil
}

func (m *Memory) UpsertSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.settings[key] = value
	return nil
}

func (m *Memory) GetDailyMenu(_ context.Context, date time.Time) (*ledger.DailyMenu, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	menu, ok := m.s.menus[date.Format("2006-01-02")]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "daily menu", ID: date.Format("2006-01-02")}
	}
	return &menu, nil
}

func (m *Memory) SaveDailyMenu(_ context.Context, menu ledger.DailyMenu) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.menus[menu.EffectiveDate.Format("2006-01-02")] = menu
	return nil
}
