package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pos-edge-agent/internal/connectivity"
	"pos-edge-agent/internal/models"
	"pos-edge-agent/internal/service"
	"pos-edge-agent/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type silentPublisher struct{}

func (silentPublisher) PublishSaleCaptured(context.Context, *models.SaleCapturedEvent) error {
	return nil
}
func (silentPublisher) PublishSaleSynced(context.Context, *models.SaleSyncedEvent) error { return nil }
func (silentPublisher) PublishSaleSyncFailed(context.Context, *models.SaleSyncFailedEvent) error {
	return nil
}

func captureSale(t *testing.T, storage *store.MemoryStore) {
	t.Helper()
	recorder := service.NewSaleRecorder(storage, silentPublisher{}, "branch-7")
	_, err := recorder.RecordSale(context.Background(), &service.RecordSaleRequest{
		Items:         []service.SaleItemRequest{{ProductID: "prod-1", Quantity: 1, UnitPrice: 10.00}},
		PaymentMethod: "cash",
		Currency:      "USD",
		AmountPaid:    10.00,
		Subtotal:      10.00,
		TotalAmount:   10.00,
	})
	require.NoError(t, err)
}

func TestSyncWorkerTriggersOnReconnect(t *testing.T) {
	var submissions int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&submissions, 1)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("srv-%d", atomic.LoadInt64(&submissions))})
	}))
	defer server.Close()

	storage := store.NewMemoryStore()
	captureSale(t, storage)

	monitor := connectivity.NewMonitor(zap.NewNop())
	client := service.NewCommerceClient(server.URL, "", time.Second, monitor)
	synchronizer := service.NewSynchronizer(storage, client, silentPublisher{}, nil, 30*time.Second)

	w := NewSyncWorker(monitor, synchronizer)
	w.Start(context.Background(), false)
	defer w.Stop()

	// Going offline triggers nothing.
	monitor.SetOnline(false)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&submissions))

	// Coming back online drains the backlog.
	monitor.SetOnline(true)
	require.Eventually(t, func() bool {
		count, err := storage.CountUnsyncedSales(context.Background())
		return err == nil && count == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&submissions))
}

func TestSyncWorkerStartupPass(t *testing.T) {
	var submissions int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&submissions, 1)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"srv-1"}`))
	}))
	defer server.Close()

	storage := store.NewMemoryStore()
	captureSale(t, storage)

	monitor := connectivity.NewMonitor(zap.NewNop())
	client := service.NewCommerceClient(server.URL, "", time.Second, monitor)
	synchronizer := service.NewSynchronizer(storage, client, silentPublisher{}, nil, 30*time.Second)

	w := NewSyncWorker(monitor, synchronizer)
	w.Start(context.Background(), true)
	defer w.Stop()

	require.Eventually(t, func() bool {
		count, err := storage.CountUnsyncedSales(context.Background())
		return err == nil && count == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncWorkerStopUnsubscribes(t *testing.T) {
	storage := store.NewMemoryStore()
	monitor := connectivity.NewMonitor(zap.NewNop())
	client := service.NewCommerceClient("http://127.0.0.1:0", "", time.Second, monitor)
	synchronizer := service.NewSynchronizer(storage, client, silentPublisher{}, nil, 30*time.Second)

	w := NewSyncWorker(monitor, synchronizer)
	w.Start(context.Background(), false)
	w.Stop()

	captureSale(t, storage)
	monitor.SetOnline(false)
	monitor.SetOnline(true)
	time.Sleep(20 * time.Millisecond)

	count, err := storage.CountUnsyncedSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
