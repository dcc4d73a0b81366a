package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"pos-edge-agent/internal/models"
	"pos-edge-agent/internal/store"
	"pos-edge-agent/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidSale indicates the sale input failed validation.
var ErrInvalidSale = errors.New("invalid sale")

// EventPublisher publishes sale lifecycle events. Implementations are
// best-effort; failures are logged and never affect capture or sync.
type EventPublisher interface {
	PublishSaleCaptured(ctx context.Context, event *models.SaleCapturedEvent) error
	PublishSaleSynced(ctx context.Context, event *models.SaleSyncedEvent) error
	PublishSaleSyncFailed(ctx context.Context, event *models.SaleSyncFailedEvent) error
}

// SaleRecorder durably captures completed point-of-sale transactions without
// touching the network.
type SaleRecorder struct {
	storage       store.Storage
	publisher     EventPublisher
	defaultBranch string
	logger        *zap.Logger
}

// NewSaleRecorder creates a new sale recorder
func NewSaleRecorder(storage store.Storage, publisher EventPublisher, defaultBranch string) *SaleRecorder {
	return &SaleRecorder{
		storage:       storage,
		publisher:     publisher,
		defaultBranch: defaultBranch,
		logger:        util.GetLogger(),
	}
}

// RecordSaleRequest is a completed in-app sale without an identifier.
type RecordSaleRequest struct {
	BranchID       string               `json:"branch_id"`
	CustomerID     *string              `json:"customer_id,omitempty"`
	Items          []SaleItemRequest    `json:"items" binding:"required,min=1"`
	PaymentMethod  string               `json:"payment_method" binding:"required"`
	Currency       string               `json:"currency" binding:"required"`
	ExchangeRate   *float64             `json:"exchange_rate,omitempty"`
	PaymentSplits  []PaymentSplitInput  `json:"payment_splits,omitempty"`
	AmountPaid     float64              `json:"amount_paid"`
	DiscountAmount float64              `json:"discount_amount"`
	Subtotal       float64              `json:"subtotal"`
	TaxAmount      float64              `json:"tax_amount"`
	TotalAmount    float64              `json:"total_amount"`
}

// SaleItemRequest represents a line item in a sale
type SaleItemRequest struct {
	ProductID      string  `json:"product_id" binding:"required"`
	Quantity       float64 `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	DiscountAmount float64 `json:"discount_amount"`
}

// PaymentSplitInput represents one slice of a split payment
type PaymentSplitInput struct {
	Method string  `json:"method" binding:"required"`
	Amount float64 `json:"amount"`
}

// RecordSale assigns a local identifier, persists the sale with its sync
// task, and returns the local ID. After it returns the sale survives a
// process restart and will be retried by the synchronizer.
func (r *SaleRecorder) RecordSale(ctx context.Context, req *RecordSaleRequest) (string, error) {
	ctx, span := util.StartSpan(ctx, "SaleRecorder.RecordSale")
	defer span.End()

	if err := validateSale(req); err != nil {
		util.SalesCaptureFailedTotal.WithLabelValues("validation").Inc()
		return "", err
	}

	branchID := req.BranchID
	if branchID == "" {
		branchID = r.defaultBranch
	}

	localID := GenerateLocalID()
	now := time.Now().UTC()

	sale := &models.PendingSale{
		LocalID:        localID,
		BranchID:       branchID,
		CustomerID:     req.CustomerID,
		PaymentMethod:  req.PaymentMethod,
		Currency:       req.Currency,
		ExchangeRate:   req.ExchangeRate,
		AmountPaid:     req.AmountPaid,
		DiscountAmount: req.DiscountAmount,
		Subtotal:       req.Subtotal,
		TaxAmount:      req.TaxAmount,
		TotalAmount:    req.TotalAmount,
		CreatedAt:      now,
		Synced:         false,
	}
	for _, item := range req.Items {
		sale.Items = append(sale.Items, models.SaleItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
		})
	}
	for _, split := range req.PaymentSplits {
		sale.PaymentSplits = append(sale.PaymentSplits, models.PaymentSplit{
			Method: split.Method,
			Amount: split.Amount,
		})
	}

	if err := r.storage.CreateSale(ctx, sale); err != nil {
		util.SalesCaptureFailedTotal.WithLabelValues("storage").Inc()
		return "", fmt.Errorf("failed to persist sale: %w", err)
	}

	// The task is an acceleration index over the sales set. A missed task
	// write leaves the sale unsynced and still picked up by the backlog
	// scan, so it is not fatal.
	payload, _ := json.Marshal(sale)
	task := &models.SyncTask{
		ID:        localID,
		Type:      models.TaskTypeSale,
		Payload:   payload,
		CreatedAt: now,
	}
	if err := r.storage.CreateSyncTask(ctx, task); err != nil {
		r.logger.Warn("Failed to enqueue sync task",
			zap.String("local_id", localID),
			zap.Error(err))
	}

	util.SalesCapturedTotal.Inc()
	if count, err := r.storage.CountUnsyncedSales(ctx); err == nil {
		util.UnsyncedSales.Set(float64(count))
	}

	r.logger.Info("Sale captured",
		zap.String("local_id", localID),
		zap.String("branch_id", branchID),
		zap.Float64("total", sale.TotalAmount))

	event := &models.SaleCapturedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCaptured,
			Timestamp: now,
		},
		LocalID:     localID,
		BranchID:    branchID,
		TotalAmount: sale.TotalAmount,
		ItemCount:   len(sale.Items),
	}
	if err := r.publisher.PublishSaleCaptured(ctx, event); err != nil {
		r.logger.Warn("Failed to publish SaleCaptured event", zap.Error(err))
	}

	return localID, nil
}

// GetOfflineSales returns all locally captured sales.
func (r *SaleRecorder) GetOfflineSales(ctx context.Context) ([]models.PendingSale, error) {
	return r.storage.GetSales(ctx)
}

// GetUnsyncedSales returns the current sync backlog.
func (r *SaleRecorder) GetUnsyncedSales(ctx context.Context) ([]models.PendingSale, error) {
	return r.storage.GetUnsyncedSales(ctx)
}

// CountUnsyncedSales returns the size of the sync backlog.
func (r *SaleRecorder) CountUnsyncedSales(ctx context.Context) (int, error) {
	return r.storage.CountUnsyncedSales(ctx)
}

// GenerateLocalID builds a locally-unique sale identifier: a millisecond
// timestamp prefix for rough ordering plus a random suffix to avoid
// collisions across concurrent terminals.
func GenerateLocalID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

func validateSale(req *RecordSaleRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: sale has no items", ErrInvalidSale)
	}
	for i, item := range req.Items {
		if item.Quantity < 0 {
			return fmt.Errorf("%w: item %d has negative quantity", ErrInvalidSale, i)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d has negative unit price", ErrInvalidSale, i)
		}
		if item.DiscountAmount < 0 {
			return fmt.Errorf("%w: item %d has negative discount", ErrInvalidSale, i)
		}
	}

	if diff := req.Subtotal - req.DiscountAmount + req.TaxAmount - req.TotalAmount; math.Abs(diff) > models.MoneyTolerance {
		return fmt.Errorf("%w: totals do not add up (off by %.4f)", ErrInvalidSale, diff)
	}

	if len(req.PaymentSplits) > 0 {
		var sum float64
		for _, split := range req.PaymentSplits {
			if split.Amount < 0 {
				return fmt.Errorf("%w: negative payment split", ErrInvalidSale)
			}
			sum += split.Amount
		}
		if math.Abs(sum-req.AmountPaid) > models.MoneyTolerance {
			return fmt.Errorf("%w: payment splits sum %.2f != amount paid %.2f", ErrInvalidSale, sum, req.AmountPaid)
		}
	}

	return nil
}
