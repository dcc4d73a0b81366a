package service

import (
	"context"
	"sync"
	"time"

	"pos-edge-agent/internal/models"
)

// noopPublisher drops events; capture and sync must not depend on the stream.
type noopPublisher struct{}

func (noopPublisher) PublishSaleCaptured(context.Context, *models.SaleCapturedEvent) error {
	return nil
}

func (noopPublisher) PublishSaleSynced(context.Context, *models.SaleSyncedEvent) error {
	return nil
}

func (noopPublisher) PublishSaleSyncFailed(context.Context, *models.SaleSyncFailedEvent) error {
	return nil
}

// fakeLocker simulates the cross-instance advisory lock.
type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	failWith error
	acquired int
	released int
}

func (l *fakeLocker) AcquireLock(_ context.Context, _, _ string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return false, l.failWith
	}
	if l.held {
		return false, nil
	}
	l.held = true
	l.acquired++
	return true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, _, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.released++
	return nil
}

func validSaleRequest() *RecordSaleRequest {
	customer := "cust-42"
	return &RecordSaleRequest{
		BranchID:   "branch-7",
		CustomerID: &customer,
		Items: []SaleItemRequest{
			{ProductID: "prod-1", Quantity: 2, UnitPrice: 10.00, DiscountAmount: 0},
			{ProductID: "prod-2", Quantity: 1, UnitPrice: 5.50, DiscountAmount: 0.50},
		},
		PaymentMethod:  "cash",
		Currency:       "USD",
		AmountPaid:     26.73,
		DiscountAmount: 1.00,
		Subtotal:       25.50,
		TaxAmount:      2.23,
		TotalAmount:    26.73,
	}
}
