package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pos-edge-agent/internal/connectivity"
	"pos-edge-agent/internal/models"
	"pos-edge-agent/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCommerceAPI is an httptest-backed stand-in for the central sales
// endpoint. rejectKeys lists idempotency keys to refuse with a 422.
type fakeCommerceAPI struct {
	mu         sync.Mutex
	server     *httptest.Server
	received   []salePayload
	keys       []string
	rejectKeys map[string]bool
}

func newFakeCommerceAPI(t *testing.T) *fakeCommerceAPI {
	t.Helper()
	f := &fakeCommerceAPI{rejectKeys: make(map[string]bool)}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sales" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var payload salePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		key := r.Header.Get("Idempotency-Key")

		f.mu.Lock()
		f.received = append(f.received, payload)
		f.keys = append(f.keys, key)
		rejected := f.rejectKeys[key]
		n := len(f.received)
		f.mu.Unlock()

		if rejected {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"error":"validation failed"}`)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":"srv-%d"}`, n)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCommerceAPI) requests() []salePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]salePayload(nil), f.received...)
}

func (f *fakeCommerceAPI) idempotencyKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func newTestSynchronizer(t *testing.T, storage store.Storage, baseURL string, locker Locker) (*Synchronizer, *connectivity.Monitor) {
	t.Helper()
	monitor := connectivity.NewMonitor(zap.NewNop())
	client := NewCommerceClient(baseURL, "", 5*time.Second, monitor)
	return NewSynchronizer(storage, client, noopPublisher{}, locker, time.Minute), monitor
}

func captureSales(t *testing.T, storage store.Storage, n int) []string {
	t.Helper()
	recorder := NewSaleRecorder(storage, noopPublisher{}, "branch-default")
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := recorder.RecordSale(context.Background(), validSaleRequest())
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(time.Millisecond) // keep created_at strictly ordered
	}
	return ids
}

func TestSyncAllSucceed(t *testing.T) {
	api := newFakeCommerceAPI(t)
	storage := store.NewMemoryStore()
	ids := captureSales(t, storage, 3)

	syncer, _ := newTestSynchronizer(t, storage, api.server.URL, nil)

	result, err := syncer.SyncOfflineSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Success: 3, Failed: 0}, result)

	for _, id := range ids {
		sale, err := storage.GetSale(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, sale.Synced)
		assert.Nil(t, sale.SyncError)
	}

	tasks, err := storage.GetSyncTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// FIFO by capture time, and the local id rides as the idempotency key.
	assert.Equal(t, ids, api.idempotencyKeys())
}

func TestSyncFailureIsolation(t *testing.T) {
	api := newFakeCommerceAPI(t)
	storage := store.NewMemoryStore()
	ids := captureSales(t, storage, 3)
	api.rejectKeys[ids[1]] = true

	syncer, _ := newTestSynchronizer(t, storage, api.server.URL, nil)

	result, err := syncer.SyncOfflineSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Success: 2, Failed: 1}, result)

	for i, id := range ids {
		sale, err := storage.GetSale(context.Background(), id)
		require.NoError(t, err)
		if i == 1 {
			assert.False(t, sale.Synced)
			require.NotNil(t, sale.SyncError)
			assert.NotEmpty(t, *sale.SyncError)
			assert.Contains(t, *sale.SyncError, "422")
		} else {
			assert.True(t, sale.Synced)
			assert.Nil(t, sale.SyncError)
		}
	}
}

func TestSyncIdempotentRerun(t *testing.T) {
	api := newFakeCommerceAPI(t)
	storage := store.NewMemoryStore()
	captureSales(t, storage, 2)

	syncer, _ := newTestSynchronizer(t, storage, api.server.URL, nil)

	first, err := syncer.SyncOfflineSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Success: 2, Failed: 0}, first)

	second, err := syncer.SyncOfflineSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Success: 0, Failed: 0}, second)

	// Already-synced sales are never resubmitted.
	assert.Len(t, api.requests(), 2)
}

func TestSyncPreservesTotals(t *testing.T) {
	api := newFakeCommerceAPI(t)
	storage := store.NewMemoryStore()
	ids := captureSales(t, storage, 1)

	before, err := storage.GetSale(context.Background(), ids[0])
	require.NoError(t, err)

	syncer, _ := newTestSynchronizer(t, storage, api.server.URL, nil)
	_, err = syncer.SyncOfflineSales(context.Background())
	require.NoError(t, err)

	reqs := api.requests()
	require.Len(t, reqs, 1)
	payload := reqs[0]

	// The synchronizer must submit the captured figures verbatim.
	assert.Equal(t, before.Subtotal, payload.Subtotal)
	assert.Equal(t, before.DiscountAmount, payload.DiscountAmount)
	assert.Equal(t, before.TaxAmount, payload.TaxAmount)
	assert.Equal(t, before.TotalAmount, payload.TotalAmount)
	assert.True(t, payload.IsOffline)
	assert.InDelta(t, payload.TotalAmount, payload.Subtotal-payload.DiscountAmount+payload.TaxAmount, 0.01)

	after, err := storage.GetSale(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, before.TotalAmount, after.TotalAmount)
	assert.Equal(t, before.Subtotal, after.Subtotal)
}

func TestSyncOfflineThenRecover(t *testing.T) {
	storage := store.NewMemoryStore()
	captureSales(t, storage, 3)

	recorder := NewSaleRecorder(storage, noopPublisher{}, "branch-default")
	unsynced, err := recorder.GetUnsyncedSales(context.Background())
	require.NoError(t, err)
	require.Len(t, unsynced, 3)

	// No server behind this port: every submission fails with a network
	// error and the backlog stays intact.
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	syncer, monitor := newTestSynchronizer(t, storage, dead.URL, nil)

	result, err := syncer.SyncOfflineSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Success: 0, Failed: 3}, result)
	assert.False(t, monitor.IsOnline())

	unsynced, err = recorder.GetUnsyncedSales(context.Background())
	require.NoError(t, err)
	require.Len(t, unsynced, 3)
	for _, sale := range unsynced {
		require.NotNil(t, sale.SyncError)
	}

	// Connectivity returns.
	api := newFakeCommerceAPI(t)
	sync2, monitor2 := newTestSynchronizer(t, storage, api.server.URL, nil)

	result, err = sync2.SyncOfflineSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Success: 3, Failed: 0}, result)
	assert.True(t, monitor2.IsOnline())

	unsynced, err = recorder.GetUnsyncedSales(context.Background())
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestSyncSkipsWhenLockHeld(t *testing.T) {
	api := newFakeCommerceAPI(t)
	storage := store.NewMemoryStore()
	captureSales(t, storage, 1)

	locker := &fakeLocker{held: true}
	syncer, _ := newTestSynchronizer(t, storage, api.server.URL, locker)

	result, err := syncer.SyncOfflineSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, result)
	assert.Empty(t, api.requests())
}

func TestSyncProceedsWhenLockerDown(t *testing.T) {
	api := newFakeCommerceAPI(t)
	storage := store.NewMemoryStore()
	captureSales(t, storage, 1)

	locker := &fakeLocker{failWith: fmt.Errorf("redis down")}
	syncer, _ := newTestSynchronizer(t, storage, api.server.URL, locker)

	result, err := syncer.SyncOfflineSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Success: 1, Failed: 0}, result)
}

func TestSyncReleasesLock(t *testing.T) {
	api := newFakeCommerceAPI(t)
	storage := store.NewMemoryStore()
	captureSales(t, storage, 1)

	locker := &fakeLocker{}
	syncer, _ := newTestSynchronizer(t, storage, api.server.URL, locker)

	_, err := syncer.SyncOfflineSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestSyncPrunesOrphanTasks(t *testing.T) {
	api := newFakeCommerceAPI(t)
	storage := store.NewMemoryStore()
	ids := captureSales(t, storage, 2)

	// Simulate a crash that left a synced sale with its task still queued.
	require.NoError(t, storage.MarkSaleSynced(context.Background(), ids[0]))
	sale, err := storage.GetSale(context.Background(), ids[0])
	require.NoError(t, err)
	payload, _ := json.Marshal(sale)
	require.NoError(t, storage.CreateSyncTask(context.Background(), &models.SyncTask{
		ID:        ids[0],
		Type:      models.TaskTypeSale,
		Payload:   payload,
		CreatedAt: time.Now(),
	}))

	syncer, _ := newTestSynchronizer(t, storage, api.server.URL, nil)
	result, err := syncer.SyncOfflineSales(context.Background())
	require.NoError(t, err)

	// The synced sale is not resubmitted; only the remaining one is.
	assert.Equal(t, SyncResult{Success: 1, Failed: 0}, result)
	assert.Equal(t, []string{ids[1]}, api.idempotencyKeys())

	tasks, err := storage.GetSyncTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
