/*
handlers.go - HTTP API handlers for the canteen ledger

PURPOSE:
  Exposes the ledger engine, statement aggregators and demand lifecycle
  via REST. Handles HTTP request/response, JSON serialization, and
  delegates every decision to the domain packages.

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input shape (decimal strings, ids)
  3. Call domain logic (engine, demand service, aggregators)
  4. Serialize response
  5. Map domain errors onto HTTP status

ERROR HANDLING:
  Domain errors map by category:
  - validation -> 400
  - not found  -> 404
  - conflict   -> 409
  - transient  -> 503
  - other      -> 500

SECURITY NOTE:
  No authentication or authorization; the service fronts a single
  trusted counter terminal.

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/messbook/canteen-engine/demand"
	"github.com/messbook/canteen-engine/ledger"
	"github.com/messbook/canteen-engine/statement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   ledger.TxStore
	Engine  *ledger.Engine
	Demands *demand.Service
	Logger  zerolog.Logger

	// Now is the clock used for statement/report boundaries.
	Now func() time.Time
}

// NewHandler wires a handler over the given store.
func NewHandler(store ledger.TxStore, demands *demand.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:   store,
		Engine:  ledger.NewEngine(store),
		Demands: demands,
		Logger:  logger,
		Now:     time.Now,
	}
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// ListCustomers returns all members ordered by name.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Store.ListCustomers(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCustomer registers a member.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "uid and name are required", nil)
		return
	}

	c := &ledger.Customer{UID: req.UID, Name: req.Name, Phone: req.Phone, Email: req.Email}
	if err := h.Store.SaveCustomer(r.Context(), c); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(*c))
}

// UpdateCustomer edits a member's registry fields. The balance is owned
// by the transaction log and cannot be set here.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "uid and name are required", nil)
		return
	}

	c := &ledger.Customer{ID: id, UID: req.UID, Name: req.Name, Phone: req.Phone, Email: req.Email}
	if err := h.Store.SaveCustomer(r.Context(), c); err != nil {
		h.writeDomainError(w, err)
		return
	}
	updated, err := h.Store.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*updated))
}

// DeleteCustomer purges a member together with their demands and
// transactions.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.PurgeCustomer(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.Logger.Info().Int64("customer_id", id).Msg("customer purged")
	w.WriteHeader(http.StatusNoContent)
}

// ImportCustomers bulk-upserts members keyed on UID.
func (h *Handler) ImportCustomers(w http.ResponseWriter, r *http.Request) {
	var req ImportCustomersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	imported := 0
	for _, row := range req.Customers {
		if row.UID == "" || row.Name == "" {
			continue
		}
		c := &ledger.Customer{UID: row.UID, Name: row.Name, Phone: row.Phone, Email: row.Email}
		if err := h.Store.UpsertCustomerByUID(r.Context(), c); err != nil {
			h.writeDomainError(w, err)
			return
		}
		imported++
	}
	h.Logger.Info().Int("imported", imported).Msg("customers imported")
	writeJSON(w, http.StatusOK, ImportCustomersResponse{Imported: imported})
}

// GetCustomerTransactions returns the member's full ledger history.
func (h *Handler) GetCustomerTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.Store.GetCustomer(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	txs, err := h.Store.ListTransactions(r.Context(), ledger.TransactionFilter{CustomerID: &id})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// STATEMENT HANDLER
// =============================================================================

// GetStatement derives the member's bill for the current month. Viewing
// a statement also applies demand auto-expiry, so the pending list the
// member sees afterwards is post-expiry state.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	customer, err := h.Store.GetCustomer(ctx, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if _, err := h.Demands.ExpireStale(ctx, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	txs, err := h.Store.ListTransactions(ctx, ledger.TransactionFilter{CustomerID: &id})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	inventory, err := h.Store.ListInventory(ctx)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	s := statement.Compute(customer, txs, inventory, h.Now())
	writeJSON(w, http.StatusOK, toStatementDTO(s))
}

// =============================================================================
// PAYMENT & BALANCE HANDLERS
// =============================================================================

// RecordPayment records a Cash/UCB payment against the member's balance.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	amount, valid := parseDecimal(req.Amount)
	if !valid {
		writeError(w, http.StatusBadRequest, "amount must be a decimal string", nil)
		return
	}

	t, err := h.Engine.RecordPayment(r.Context(), id, amount, ledger.PaymentType(req.PaymentType), req.Note)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.Logger.Info().
		Int64("customer_id", id).
		Str("amount", amount.String()).
		Msg("payment recorded")
	writeJSON(w, http.StatusCreated, toTransactionDTO(*t))
}

// RecomputeBalance runs the reconciliation pass for a member.
func (h *Handler) RecomputeBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	balance, err := h.Engine.Reconcile(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{CustomerID: id, TotalBaki: balance.String()})
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ListInventory returns all items ordered by name.
func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListInventory(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]InventoryItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toInventoryItemDTO(it)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInventoryItem adds a sellable item.
func (h *Handler) CreateInventoryItem(w http.ResponseWriter, r *http.Request) {
	item, ok := h.decodeInventoryItem(w, r, 0)
	if !ok {
		return
	}
	if err := h.Store.SaveInventoryItem(r.Context(), item); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInventoryItemDTO(*item))
}

// UpdateInventoryItem edits an item. Past transactions keep their frozen
// rates; statements re-price at the new one.
func (h *Handler) UpdateInventoryItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, ok := h.decodeInventoryItem(w, r, id)
	if !ok {
		return
	}
	if err := h.Store.SaveInventoryItem(r.Context(), item); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryItemDTO(*item))
}

func (h *Handler) decodeInventoryItem(w http.ResponseWriter, r *http.Request, id int64) (*ledger.InventoryItem, bool) {
	var req InventoryItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return nil, false
	}
	if req.ItemName == "" {
		writeError(w, http.StatusBadRequest, "item_name is required", nil)
		return nil, false
	}
	price, valid := parseDecimal(req.Price)
	if !valid || price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price must be a non-negative decimal string", nil)
		return nil, false
	}
	if req.StockQuantity < 0 {
		writeError(w, http.StatusBadRequest, "stock_quantity must not be negative", nil)
		return nil, false
	}
	return &ledger.InventoryItem{
		ID:            id,
		ItemName:      req.ItemName,
		Price:         price,
		StockQuantity: req.StockQuantity,
		Category:      req.Category,
		ImageURL:      req.ImageURL,
	}, true
}

// DeleteInventoryItem removes an item. Historical line items keep their
// frozen rates.
func (h *Handler) DeleteInventoryItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteInventoryItem(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SALE HANDLER
// =============================================================================

// RecordSale records a sale. Inventory-backed lines resolve name and
// current price server-side and decrement stock; free-form lines (fund
// charges at custom amounts) pass name and price explicitly.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	ctx := r.Context()

	items := make([]ledger.TransactionItem, 0, len(req.Items))
	for _, line := range req.Items {
		switch {
		case line.ItemID != nil:
			inv, err := h.Store.GetInventoryItem(ctx, *line.ItemID)
			if err != nil {
				h.writeDomainError(w, err)
				return
			}
			price := inv.Price
			if line.Price != nil {
				override, valid := parseDecimal(*line.Price)
				if !valid {
					writeError(w, http.StatusBadRequest, "price must be a decimal string", nil)
					return
				}
				price = override
			}
			items = append(items, ledger.TransactionItem{
				ItemID:   inv.ID,
				ItemName: inv.ItemName,
				Price:    price,
				Quantity: line.Quantity,
			})
		case line.ItemName != "" && line.Price != nil:
			price, valid := parseDecimal(*line.Price)
			if !valid {
				writeError(w, http.StatusBadRequest, "price must be a decimal string", nil)
				return
			}
			items = append(items, ledger.TransactionItem{
				ItemName: line.ItemName,
				Price:    price,
				Quantity: line.Quantity,
			})
		default:
			writeError(w, http.StatusBadRequest, "each line needs item_id, or item_name with price", nil)
			return
		}
	}

	t, err := h.Engine.RecordSale(ctx, req.CustomerID, items, ledger.PaymentType(req.PaymentType), req.Note)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	// Best-effort stock decrement for inventory-backed lines. The sale
	// stands even when a count was already off.
	for _, it := range t.Items {
		if it.ItemID != 0 {
			if err := h.Store.AdjustStock(ctx, it.ItemID, -it.Quantity); err != nil && !ledger.IsNotFound(err) {
				h.writeDomainError(w, err)
				return
			}
		}
	}

	h.Logger.Info().
		Int64("transaction_id", t.ID).
		Str("total", t.TotalAmount.String()).
		Str("payment_type", string(t.PaymentType)).
		Msg("sale recorded")
	writeJSON(w, http.StatusCreated, toTransactionDTO(*t))
}

// =============================================================================
// DEMAND HANDLERS
// =============================================================================

// ListDemands returns demands, optionally filtered by customer_id and
// status. A customer-scoped list applies auto-expiry first.
func (h *Handler) ListDemands(w http.ResponseWriter, r *http.Request) {
	var (
		demands []ledger.Demand
		err     error
	)
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		customerID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "customer_id must be an integer", perr)
			return
		}
		demands, err = h.Demands.ListForCustomer(r.Context(), customerID)
	} else {
		var filter ledger.DemandFilter
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := ledger.DemandStatus(raw)
			filter.Status = &status
		}
		demands, err = h.Store.ListDemands(r.Context(), filter)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]DemandDTO, len(demands))
	for i, d := range demands {
		dtos[i] = toDemandDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PlaceDemand submits a pre-order, gated by the ordering window.
func (h *Handler) PlaceDemand(w http.ResponseWriter, r *http.Request) {
	var req PlaceDemandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	d, err := h.Demands.Place(r.Context(), req.CustomerID, req.ItemID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDemandDTO(*d))
}

// ApproveDemand fulfils a pending demand and returns the resulting sale.
func (h *Handler) ApproveDemand(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.Demands.Approve(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*t))
}

// CancelDemand rejects or self-revokes a pending demand.
func (h *Handler) CancelDemand(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Demands.Cancel(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	d, err := h.Store.GetDemand(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDemandDTO(*d))
}

// =============================================================================
// MASTER REPORT HANDLER
// =============================================================================

// GetMasterReport builds the fleet-wide sheet for ?month=&year=, with
// optional ?unit_fund=&car_wash= global surcharges.
func (h *Handler) GetMasterReport(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	month := int(now.Month())
	year := now.Year()
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 1 || m > 12 {
			writeError(w, http.StatusBadRequest, "month must be 1-12", err)
			return
		}
		month = m
	}
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer", err)
			return
		}
		year = y
	}

	var funds statement.GlobalFunds
	if raw := r.URL.Query().Get("unit_fund"); raw != "" {
		d, valid := parseDecimal(raw)
		if !valid {
			writeError(w, http.StatusBadRequest, "unit_fund must be a decimal string", nil)
			return
		}
		funds.UnitFund = d
	}
	if raw := r.URL.Query().Get("car_wash"); raw != "" {
		d, valid := parseDecimal(raw)
		if !valid {
			writeError(w, http.StatusBadRequest, "car_wash must be a decimal string", nil)
			return
		}
		funds.CarWash = d
	}

	ctx := r.Context()
	customers, err := h.Store.ListCustomers(ctx)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	loc := now.Location()
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)
	txs, err := h.Store.ListTransactions(ctx, ledger.TransactionFilter{From: &from, To: &to})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	inventory, err := h.Store.ListInventory(ctx)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	report := statement.ComputeMaster(customers, txs, inventory, time.Month(month), year, loc, funds)
	writeJSON(w, http.StatusOK, toMasterReportDTO(report))
}

// =============================================================================
// SETTINGS & MENU HANDLERS
// =============================================================================

// GetSettings returns the canteen config record.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Store.ReadSetting(r.Context(), ledger.ConfigKey)
	if err != nil {
		if ledger.IsNotFound(err) {
			writeJSON(w, http.StatusOK, ConfigDTO{})
			return
		}
		h.writeDomainError(w, err)
		return
	}
	var cfg ledger.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "stored config is corrupt", err)
		return
	}
	writeJSON(w, http.StatusOK, ConfigDTO(cfg))
}

// PutSettings upserts the canteen config record.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req ConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	raw, err := json.Marshal(ledger.Config(req))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode config", err)
		return
	}
	if err := h.Store.UpsertSetting(r.Context(), ledger.ConfigKey, string(raw)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetMenu returns today's daily menu resolved against inventory. A day
// without a saved menu is an empty menu, not an error.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := h.Now()

	menu, err := h.Store.GetDailyMenu(ctx, today)
	if err != nil {
		if ledger.IsNotFound(err) {
			writeJSON(w, http.StatusOK, MenuDTO{Date: today.Format("2006-01-02"), Items: []InventoryItemDTO{}})
			return
		}
		h.writeDomainError(w, err)
		return
	}
	inventory, err := h.Store.ListInventory(ctx)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resolved := menu.Resolve(inventory)
	dtos := make([]InventoryItemDTO, len(resolved))
	for i, it := range resolved {
		dtos[i] = toInventoryItemDTO(it)
	}
	writeJSON(w, http.StatusOK, MenuDTO{Date: today.Format("2006-01-02"), Items: dtos})
}

// PutMenu sets the orderable items for a date (today when omitted).
func (h *Handler) PutMenu(w http.ResponseWriter, r *http.Request) {
	var req MenuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	date := h.Now()
	if req.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.Date, date.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
			return
		}
		date = parsed
	}
	for _, id := range req.ItemIDs {
		if _, err := h.Store.GetInventoryItem(r.Context(), id); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}

	menu := ledger.DailyMenu{EffectiveDate: date, ItemIDs: req.ItemIDs}
	if err := h.Store.SaveDailyMenu(r.Context(), menu); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MenuRequest{Date: date.Format("2006-01-02"), ItemIDs: req.ItemIDs})
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer", err)
		return 0, false
	}
	return id, true
}

// writeDomainError maps error categories onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation failed", err)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, ledger.ErrTransientIO):
		h.Logger.Error().Err(err).Msg("store unavailable")
		writeError(w, http.StatusServiceUnavailable, "store unavailable, retry", err)
	default:
		h.Logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
