package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pos-edge-agent/internal/models"
)

// MemoryStore is an in-memory Storage implementation. It backs the agent when
// STORAGE_DRIVER=memory and is the storage used by unit tests. All methods
// are goroutine-safe; each call is atomic under a single mutex hold.
type MemoryStore struct {
	mu          sync.RWMutex
	sales       map[string]*models.PendingSale
	products    map[string]*models.CachedProduct
	tasks       map[string]*models.SyncTask
	unavailable bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sales:    make(map[string]*models.PendingSale),
		products: make(map[string]*models.CachedProduct),
		tasks:    make(map[string]*models.SyncTask),
	}
}

// SetUnavailable toggles simulated storage failure. Every subsequent call
// fails with ErrStorageUnavailable until reset.
func (m *MemoryStore) SetUnavailable(unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = unavailable
}

func (m *MemoryStore) check() error {
	if m.unavailable {
		return ErrStorageUnavailable
	}
	return nil
}

func copySale(sale *models.PendingSale) *models.PendingSale {
	out := *sale
	out.Items = append([]models.SaleItem(nil), sale.Items...)
	out.PaymentSplits = append([]models.PaymentSplit(nil), sale.PaymentSplits...)
	return &out
}

// CreateSale persists a pending sale.
func (m *MemoryStore) CreateSale(ctx context.Context, sale *models.PendingSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	if _, exists := m.sales[sale.LocalID]; exists {
		return fmt.Errorf("sale %s already exists", sale.LocalID)
	}
	m.sales[sale.LocalID] = copySale(sale)
	return nil
}

// GetSale retrieves a pending sale by local ID.
func (m *MemoryStore) GetSale(ctx context.Context, localID string) (*models.PendingSale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	sale, ok := m.sales[localID]
	if !ok {
		return nil, fmt.Errorf("sale %s: %w", localID, ErrNotFound)
	}
	return copySale(sale), nil
}

func (m *MemoryStore) listSales(filterUnsynced bool) []models.PendingSale {
	out := make([]models.PendingSale, 0, len(m.sales))
	for _, sale := range m.sales {
		if filterUnsynced && sale.Synced {
			continue
		}
		out = append(out, *copySale(sale))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetSales retrieves all locally captured sales, oldest first.
func (m *MemoryStore) GetSales(ctx context.Context) ([]models.PendingSale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.listSales(false), nil
}

// GetUnsyncedSales retrieves sales awaiting submission, oldest first.
func (m *MemoryStore) GetUnsyncedSales(ctx context.Context) ([]models.PendingSale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.listSales(true), nil
}

// CountUnsyncedSales returns the size of the sync backlog.
func (m *MemoryStore) CountUnsyncedSales(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	count := 0
	for _, sale := range m.sales {
		if !sale.Synced {
			count++
		}
	}
	return count, nil
}

// MarkSaleSynced marks a sale synced and removes its task atomically.
func (m *MemoryStore) MarkSaleSynced(ctx context.Context, localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	sale, ok := m.sales[localID]
	if !ok {
		return fmt.Errorf("sale %s: %w", localID, ErrNotFound)
	}
	sale.Synced = true
	sale.SyncError = nil
	delete(m.tasks, localID)
	return nil
}

// SetSaleSyncError records the last failure message on an unsynced sale.
func (m *MemoryStore) SetSaleSyncError(ctx context.Context, localID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	sale, ok := m.sales[localID]
	if !ok {
		return fmt.Errorf("sale %s: %w", localID, ErrNotFound)
	}
	msg := message
	sale.SyncError = &msg
	return nil
}

// PurgeSyncedSales deletes synced sales captured before the given time.
func (m *MemoryStore) PurgeSyncedSales(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	var purged int64
	for id, sale := range m.sales {
		if sale.Synced && sale.CreatedAt.Before(before) {
			delete(m.sales, id)
			purged++
		}
	}
	return purged, nil
}

// CreateSyncTask enqueues a sync task for an unsynced sale.
func (m *MemoryStore) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	if _, exists := m.tasks[task.ID]; exists {
		return nil
	}
	t := *task
	t.Payload = append([]byte(nil), task.Payload...)
	m.tasks[task.ID] = &t
	return nil
}

// GetSyncTasks retrieves the work queue, oldest first.
func (m *MemoryStore) GetSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	out := make([]models.SyncTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		t := *task
		t.Payload = append([]byte(nil), task.Payload...)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PruneSyncTasks removes tasks whose sale is already synced or gone.
func (m *MemoryStore) PruneSyncTasks(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	var pruned int64
	for id := range m.tasks {
		sale, ok := m.sales[id]
		if !ok || sale.Synced {
			delete(m.tasks, id)
			pruned++
		}
	}
	return pruned, nil
}

// UpsertProduct writes a product snapshot. Last write wins per product id.
func (m *MemoryStore) UpsertProduct(ctx context.Context, product *models.CachedProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	p := *product
	m.products[product.ID] = &p
	return nil
}

// GetProduct retrieves a cached product by ID.
func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*models.CachedProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	product, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	p := *product
	return &p, nil
}

// SearchProducts performs a case-insensitive substring match across name,
// SKU, barcode and RFID tag.
func (m *MemoryStore) SearchProducts(ctx context.Context, query string) ([]models.CachedProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []models.CachedProduct
	for _, product := range m.products {
		rfid := ""
		if product.RFIDTag != nil {
			rfid = *product.RFIDTag
		}
		if strings.Contains(strings.ToLower(product.Name), q) ||
			strings.Contains(strings.ToLower(product.SKU), q) ||
			strings.Contains(strings.ToLower(product.Barcode), q) ||
			strings.Contains(strings.ToLower(rfid), q) {
			out = append(out, *product)
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
