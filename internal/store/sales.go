package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pos-edge-agent/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateSale persists a pending sale with its items and payment splits in a
// single transaction.
func (s *Store) CreateSale(ctx context.Context, sale *models.PendingSale) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pending_sales (
			local_id, branch_id, customer_id, payment_method, currency,
			exchange_rate, amount_paid, discount_amount, subtotal,
			tax_amount, total_amount, created_at, synced, sync_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sale.LocalID, sale.BranchID, sale.CustomerID, sale.PaymentMethod,
		sale.Currency, sale.ExchangeRate, sale.AmountPaid, sale.DiscountAmount,
		sale.Subtotal, sale.TaxAmount, sale.TotalAmount, sale.CreatedAt,
		sale.Synced, sale.SyncError)
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		item.SaleLocalID = sale.LocalID
		err := tx.GetContext(ctx, &item.ID, `
			INSERT INTO sale_items (sale_local_id, product_id, quantity, unit_price, discount_amount)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			item.SaleLocalID, item.ProductID, item.Quantity, item.UnitPrice, item.DiscountAmount)
		if err != nil {
			return fmt.Errorf("failed to insert sale item: %w", err)
		}
	}

	for i := range sale.PaymentSplits {
		split := &sale.PaymentSplits[i]
		split.SaleLocalID = sale.LocalID
		err := tx.GetContext(ctx, &split.ID, `
			INSERT INTO payment_splits (sale_local_id, method, amount)
			VALUES ($1, $2, $3)
			RETURNING id`,
			split.SaleLocalID, split.Method, split.Amount)
		if err != nil {
			return fmt.Errorf("failed to insert payment split: %w", err)
		}
	}

	return tx.Commit()
}

// GetSale retrieves a pending sale by local ID, including items and splits.
func (s *Store) GetSale(ctx context.Context, localID string) (*models.PendingSale, error) {
	var sale models.PendingSale
	err := s.db.GetContext(ctx, &sale,
		"SELECT * FROM pending_sales WHERE local_id = $1", localID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sale %s: %w", localID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	sales := []models.PendingSale{sale}
	if err := s.attachLines(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

// GetSales retrieves all locally captured sales, oldest first.
func (s *Store) GetSales(ctx context.Context) ([]models.PendingSale, error) {
	var sales []models.PendingSale
	err := s.db.SelectContext(ctx, &sales,
		"SELECT * FROM pending_sales ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// GetUnsyncedSales retrieves sales awaiting submission, oldest first so the
// backlog drains FIFO.
func (s *Store) GetUnsyncedSales(ctx context.Context) ([]models.PendingSale, error) {
	var sales []models.PendingSale
	err := s.db.SelectContext(ctx, &sales,
		"SELECT * FROM pending_sales WHERE synced = FALSE ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// CountUnsyncedSales returns the size of the sync backlog.
func (s *Store) CountUnsyncedSales(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM pending_sales WHERE synced = FALSE")
	return count, err
}

// MarkSaleSynced marks a sale as acknowledged by the central API and removes
// its sync task. Both happen in one transaction so a crash cannot leave a
// synced sale still queued for resubmission.
func (s *Store) MarkSaleSynced(ctx context.Context, localID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE pending_sales SET synced = TRUE, sync_error = NULL WHERE local_id = $1",
		localID)
	if err != nil {
		return fmt.Errorf("failed to mark sale synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sale %s: %w", localID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sync_tasks WHERE id = $1", localID); err != nil {
		return fmt.Errorf("failed to delete sync task: %w", err)
	}

	return tx.Commit()
}

// SetSaleSyncError records the last failure message on an unsynced sale.
func (s *Store) SetSaleSyncError(ctx context.Context, localID, message string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE pending_sales SET sync_error = $1 WHERE local_id = $2",
		message, localID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sale %s: %w", localID, ErrNotFound)
	}
	return nil
}

// PurgeSyncedSales deletes synced sales captured before the given time.
// Unsynced sales are never deleted.
func (s *Store) PurgeSyncedSales(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM pending_sales WHERE synced = TRUE AND created_at < $1", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// attachLines loads items and payment splits for the given sales.
func (s *Store) attachLines(ctx context.Context, sales []models.PendingSale) error {
	if len(sales) == 0 {
		return nil
	}

	ids := make([]string, len(sales))
	index := make(map[string]*models.PendingSale, len(sales))
	for i := range sales {
		ids[i] = sales[i].LocalID
		index[sales[i].LocalID] = &sales[i]
	}

	query, args, err := sqlx.In(
		"SELECT * FROM sale_items WHERE sale_local_id IN (?) ORDER BY id", ids)
	if err != nil {
		return err
	}
	var items []models.SaleItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, item := range items {
		sale := index[item.SaleLocalID]
		sale.Items = append(sale.Items, item)
	}

	query, args, err = sqlx.In(
		"SELECT * FROM payment_splits WHERE sale_local_id IN (?) ORDER BY id", ids)
	if err != nil {
		return err
	}
	var splits []models.PaymentSplit
	if err := s.db.SelectContext(ctx, &splits, s.db.Rebind(query), args...); err != nil {
		return err
	}
	for _, split := range splits {
		sale := index[split.SaleLocalID]
		sale.PaymentSplits = append(sale.PaymentSplits, split)
	}

	return nil
}

// CreateSyncTask enqueues a sync task for an unsynced sale.
func (s *Store) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_tasks (id, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		task.ID, task.Type, task.Payload, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}
	return nil
}

// GetSyncTasks retrieves the work queue, oldest first.
func (s *Store) GetSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	var tasks []models.SyncTask
	err := s.db.SelectContext(ctx, &tasks,
		"SELECT * FROM sync_tasks ORDER BY created_at")
	return tasks, err
}

// PruneSyncTasks removes tasks whose sale is already synced or gone. Such
// orphans can appear after a crash; they are purged without resubmission.
func (s *Store) PruneSyncTasks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_tasks t
		WHERE NOT EXISTS (
			SELECT 1 FROM pending_sales p
			WHERE p.local_id = t.id AND p.synced = FALSE
		)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
