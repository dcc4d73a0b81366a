package models

import "time"

// PendingSale is a point-of-sale transaction captured locally. LocalID is the
// client-generated identity until the central API assigns a real sale ID.
type PendingSale struct {
	LocalID        string         `db:"local_id" json:"local_id"`
	BranchID       string         `db:"branch_id" json:"branch_id"`
	CustomerID     *string        `db:"customer_id" json:"customer_id,omitempty"`
	Items          []SaleItem     `db:"-" json:"items"`
	PaymentMethod  string         `db:"payment_method" json:"payment_method"`
	Currency       string         `db:"currency" json:"currency"`
	ExchangeRate   *float64       `db:"exchange_rate" json:"exchange_rate,omitempty"`
	PaymentSplits  []PaymentSplit `db:"-" json:"payment_splits,omitempty"`
	AmountPaid     float64        `db:"amount_paid" json:"amount_paid"`
	DiscountAmount float64        `db:"discount_amount" json:"discount_amount"`
	Subtotal       float64        `db:"subtotal" json:"subtotal"`
	TaxAmount      float64        `db:"tax_amount" json:"tax_amount"`
	TotalAmount    float64        `db:"total_amount" json:"total_amount"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	Synced         bool           `db:"synced" json:"synced"`
	SyncError      *string        `db:"sync_error" json:"sync_error,omitempty"`
}

// SaleItem is a line item within a pending sale.
type SaleItem struct {
	ID             int64   `db:"id" json:"-"`
	SaleLocalID    string  `db:"sale_local_id" json:"-"`
	ProductID      string  `db:"product_id" json:"product_id"`
	Quantity       float64 `db:"quantity" json:"quantity"`
	UnitPrice      float64 `db:"unit_price" json:"unit_price"`
	DiscountAmount float64 `db:"discount_amount" json:"discount_amount"`
}

// PaymentSplit divides the amount paid across payment methods.
type PaymentSplit struct {
	ID          int64   `db:"id" json:"-"`
	SaleLocalID string  `db:"sale_local_id" json:"-"`
	Method      string  `db:"method" json:"method"`
	Amount      float64 `db:"amount" json:"amount"`
}

// CachedProduct is a best-effort local snapshot of product identity and
// pricing, used to ring up sales while the live catalog is unreachable.
// Entries are never expired; staleness is accepted for availability.
type CachedProduct struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	SKU          string    `db:"sku" json:"sku"`
	Barcode      string    `db:"barcode" json:"barcode"`
	RFIDTag      *string   `db:"rfid_tag" json:"rfid_tag,omitempty"`
	SellingPrice float64   `db:"selling_price" json:"selling_price"`
	CurrentPrice float64   `db:"current_price" json:"current_price"`
	CachedAt     time.Time `db:"cached_at" json:"cached_at"`
}

// SyncTask mirrors an unsynced sale in the work queue. The backlog scan is
// driven off synced=false on the sales set; tasks are an acceleration index,
// removed together with marking the sale synced.
type SyncTask struct {
	ID        string    `db:"id" json:"id"`
	Type      string    `db:"type" json:"type"`
	Payload   []byte    `db:"payload" json:"payload"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Sync task types
const (
	TaskTypeSale = "sale"
)

// MoneyTolerance is the rounding tolerance for monetary invariants.
const MoneyTolerance = 0.01
