/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

CONVENTIONS:
  - Money travels as decimal strings ("42.50"), never JSON numbers.
  - Transaction timestamps travel as epoch milliseconds in "timestamp",
    matching what the clients already store.
  - *DTO: response types. *Request: request bodies.

SEE ALSO:
  - handlers.go: uses these types
  - ledger: the domain model these map onto
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/messbook/canteen-engine/ledger"
	"github.com/messbook/canteen-engine/statement"
)

// =============================================================================
// CUSTOMERS
// =============================================================================

// CustomerDTO represents a member in API responses.
type CustomerDTO struct {
	ID        int64  `json:"id"`
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	TotalBaki string `json:"total_baki"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CustomerRequest creates or updates a member.
type CustomerRequest struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// ImportCustomersRequest bulk-upserts members keyed on UID. Rows arrive
// already parsed; spreadsheet handling is the caller's problem.
type ImportCustomersRequest struct {
	Customers []CustomerRequest `json:"customers"`
}

// ImportCustomersResponse reports how many rows were applied.
type ImportCustomersResponse struct {
	Imported int `json:"imported"`
}

// =============================================================================
// INVENTORY
// =============================================================================

// InventoryItemDTO represents a sellable item.
type InventoryItemDTO struct {
	ID            int64  `json:"id"`
	ItemName      string `json:"item_name"`
	Price         string `json:"price"`
	StockQuantity int    `json:"stock_quantity"`
	Category      string `json:"category,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
}

// InventoryItemRequest creates or updates an item.
type InventoryItemRequest struct {
	ItemName      string `json:"item_name"`
	Price         string `json:"price"`
	StockQuantity int    `json:"stock_quantity"`
	Category      string `json:"category"`
	ImageURL      string `json:"image_url"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionItemDTO is one line inside a sale.
type TransactionItemDTO struct {
	ItemID   int64  `json:"item_id,omitempty"`
	ItemName string `json:"item_name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
	Kind     string `json:"kind,omitempty"`
}

// TransactionDTO represents a ledger entry.
type TransactionDTO struct {
	ID          int64                `json:"id"`
	CustomerID  *int64               `json:"customer_id,omitempty"`
	Items       []TransactionItemDTO `json:"items"`
	TotalAmount string               `json:"total_amount"`
	PaymentType string               `json:"payment_type"`
	Type        string               `json:"type"`
	Note        string               `json:"note,omitempty"`
	Timestamp   int64                `json:"timestamp"` // epoch millis
	CreatedAt   string               `json:"created_at,omitempty"`
}

// SaleItemRequest is one cart line. Either item_id references inventory
// (name and current price resolved server-side), or item_name + price
// describe a free-form line such as a fund charge at a custom amount.
type SaleItemRequest struct {
	ItemID   *int64  `json:"item_id,omitempty"`
	ItemName string  `json:"item_name,omitempty"`
	Price    *string `json:"price,omitempty"`
	Quantity int     `json:"quantity"`
}

// SaleRequest records a sale. CustomerID is nil for walk-in sales.
type SaleRequest struct {
	CustomerID  *int64            `json:"customer_id,omitempty"`
	Items       []SaleItemRequest `json:"items"`
	PaymentType string            `json:"payment_type"`
	Note        string            `json:"note,omitempty"`
}

// PaymentRequest records a payment against a member's balance.
type PaymentRequest struct {
	Amount      string `json:"amount"`
	PaymentType string `json:"payment_type"`
	Note        string `json:"note,omitempty"`
}

// BalanceDTO is the result of a balance read or recomputation.
type BalanceDTO struct {
	CustomerID int64  `json:"customer_id"`
	TotalBaki  string `json:"total_baki"`
}

// =============================================================================
// DEMANDS
// =============================================================================

// DemandDTO represents a pre-order request.
type DemandDTO struct {
	ID           int64  `json:"id"`
	CustomerID   int64  `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	ItemID       int64  `json:"item_id"`
	ItemName     string `json:"item_name"`
	Status       string `json:"status"`
	Timestamp    int64  `json:"timestamp"` // epoch millis
}

// PlaceDemandRequest submits a pre-order.
type PlaceDemandRequest struct {
	CustomerID int64 `json:"customer_id"`
	ItemID     int64 `json:"item_id"`
}

// =============================================================================
// STATEMENT & MASTER REPORT
// =============================================================================

// StatementLineDTO is one itemized row on a monthly statement.
type StatementLineDTO struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Rate     string `json:"rate"`
	Total    string `json:"total"`
}

// StatementDTO is a member's derived monthly bill.
type StatementDTO struct {
	CustomerID       int64              `json:"customer_id"`
	CustomerName     string             `json:"customer_name"`
	Month            int                `json:"month"`
	Year             int                `json:"year"`
	MonthLabel       string             `json:"month_label"`
	Items            []StatementLineDTO `json:"items"`
	CanteenFoodTotal string             `json:"canteen_food_total"`
	UnitFund         string             `json:"unit_fund"`
	CarWash          string             `json:"car_wash"`
	Others           string             `json:"others"`
	MonthlyPayments  string             `json:"monthly_payments"`
	TotalThisMonth   string             `json:"total_this_month"`
	PreviousArrears  string             `json:"previous_arrears"`
	GrandTotal       string             `json:"grand_total"`
}

// MasterRowDTO is one member's line on the fleet report.
type MasterRowDTO struct {
	CustomerID     int64          `json:"customer_id"`
	UID            string         `json:"uid"`
	CustomerName   string         `json:"customer_name"`
	Consumption    map[string]int `json:"consumption"`
	CanteenBill    string         `json:"canteen_bill"`
	Paid           string         `json:"paid"`
	OpeningArrears string         `json:"opening_arrears"`
	Total          string         `json:"total"`
}

// MasterReportDTO is the full fleet sheet for one month.
type MasterReportDTO struct {
	Month      int            `json:"month"`
	Year       int            `json:"year"`
	MonthLabel string         `json:"month_label"`
	ItemNames  []string       `json:"item_names"`
	Rows       []MasterRowDTO `json:"rows"`
	Totals     struct {
		CanteenBill string `json:"canteen_bill"`
		Paid        string `json:"paid"`
		Arrears     string `json:"arrears"`
		Grand       string `json:"grand"`
	} `json:"totals"`
}

// =============================================================================
// SETTINGS & MENU
// =============================================================================

// ConfigDTO is the canteen's branding/contact record.
type ConfigDTO struct {
	CanteenName  string `json:"canteen_name"`
	ManagerName  string `json:"manager_name"`
	ManagerPhone string `json:"manager_phone"`
	LogoURL      string `json:"logo_url,omitempty"`
}

// MenuRequest sets the orderable items for a date (today when empty).
type MenuRequest struct {
	Date    string  `json:"date,omitempty"` // YYYY-MM-DD
	ItemIDs []int64 `json:"item_ids"`
}

// MenuDTO is the resolved daily menu.
type MenuDTO struct {
	Date  string             `json:"date"`
	Items []InventoryItemDTO `json:"items"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCustomerDTO(c ledger.Customer) CustomerDTO {
	return CustomerDTO{
		ID:        c.ID,
		UID:       c.UID,
		Name:      c.Name,
		Phone:     c.Phone,
		Email:     c.Email,
		TotalBaki: c.TotalBaki.String(),
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toInventoryItemDTO(it ledger.InventoryItem) InventoryItemDTO {
	return InventoryItemDTO{
		ID:            it.ID,
		ItemName:      it.ItemName,
		Price:         it.Price.String(),
		StockQuantity: it.StockQuantity,
		Category:      it.Category,
		ImageURL:      it.ImageURL,
	}
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	items := make([]TransactionItemDTO, len(t.Items))
	for i, it := range t.Items {
		items[i] = TransactionItemDTO{
			ItemID:   it.ItemID,
			ItemName: it.ItemName,
			Price:    it.Price.String(),
			Quantity: it.Quantity,
			Kind:     string(it.Kind),
		}
	}
	return TransactionDTO{
		ID:          t.ID,
		CustomerID:  t.CustomerID,
		Items:       items,
		TotalAmount: t.TotalAmount.String(),
		PaymentType: string(t.PaymentType),
		Type:        string(t.Type),
		Note:        t.Note,
		Timestamp:   t.Timestamp.UnixMilli(),
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	return dtos
}

func toDemandDTO(d ledger.Demand) DemandDTO {
	return DemandDTO{
		ID:           d.ID,
		CustomerID:   d.CustomerID,
		CustomerName: d.CustomerName,
		ItemID:       d.ItemID,
		ItemName:     d.ItemName,
		Status:       string(d.Status),
		Timestamp:    d.Timestamp.UnixMilli(),
	}
}

func toStatementDTO(s statement.Statement) StatementDTO {
	lines := make([]StatementLineDTO, len(s.Items))
	for i, l := range s.Items {
		lines[i] = StatementLineDTO{
			ItemName: l.ItemName,
			Quantity: l.Quantity,
			Rate:     l.Rate.String(),
			Total:    l.Total.String(),
		}
	}
	return StatementDTO{
		CustomerID:       s.CustomerID,
		CustomerName:     s.CustomerName,
		Month:            int(s.Month),
		Year:             s.Year,
		MonthLabel:       s.MonthLabel,
		Items:            lines,
		CanteenFoodTotal: s.CanteenFoodTotal.String(),
		UnitFund:         s.Funds.UnitFund.String(),
		CarWash:          s.Funds.CarWash.String(),
		Others:           s.Funds.Others.String(),
		MonthlyPayments:  s.MonthlyPayments.String(),
		TotalThisMonth:   s.TotalThisMonth.String(),
		PreviousArrears:  s.PreviousArrears.String(),
		GrandTotal:       s.GrandTotal.String(),
	}
}

func toMasterReportDTO(r statement.MasterReport) MasterReportDTO {
	dto := MasterReportDTO{
		Month:      int(r.Month),
		Year:       r.Year,
		MonthLabel: r.MonthLabel,
		ItemNames:  r.ItemNames,
		Rows:       make([]MasterRowDTO, len(r.Rows)),
	}
	for i, row := range r.Rows {
		dto.Rows[i] = MasterRowDTO{
			CustomerID:     row.CustomerID,
			UID:            row.UID,
			CustomerName:   row.CustomerName,
			Consumption:    row.Consumption,
			CanteenBill:    row.CanteenBill.String(),
			Paid:           row.Paid.String(),
			OpeningArrears: row.OpeningArrears.String(),
			Total:          row.Total.String(),
		}
	}
	dto.Totals.CanteenBill = r.Totals.CanteenBill.String()
	dto.Totals.Paid = r.Totals.Paid.String()
	dto.Totals.Arrears = r.Totals.Arrears.String()
	dto.Totals.Grand = r.Totals.Grand.String()
	return dto
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
