package models

import "time"

// Event types
const (
	EventTypeSaleCaptured   = "SALE_CAPTURED"
	EventTypeSaleSynced     = "SALE_SYNCED"
	EventTypeSaleSyncFailed = "SALE_SYNC_FAILED"
	EventTypeProductUpdated = "PRODUCT_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCapturedEvent published when a sale is captured into local storage
type SaleCapturedEvent struct {
	BaseEvent
	LocalID     string  `json:"local_id"`
	BranchID    string  `json:"branch_id"`
	TotalAmount float64 `json:"total_amount"`
	ItemCount   int     `json:"item_count"`
}

// SaleSyncedEvent published when the central API acknowledges a sale
type SaleSyncedEvent struct {
	BaseEvent
	LocalID      string `json:"local_id"`
	BranchID     string `json:"branch_id"`
	ServerSaleID string `json:"server_sale_id,omitempty"`
}

// SaleSyncFailedEvent published when a sync attempt for a sale fails
type SaleSyncFailedEvent struct {
	BaseEvent
	LocalID  string `json:"local_id"`
	BranchID string `json:"branch_id"`
	Reason   string `json:"reason"`
}

// ProductUpdateEvent is consumed from the central catalog stream to keep the
// local product cache warm.
type ProductUpdateEvent struct {
	BaseEvent
	Product CachedProduct `json:"product"`
}
