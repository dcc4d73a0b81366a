package service

import (
	"context"
	"sync"
	"time"

	"pos-edge-agent/internal/models"
	"pos-edge-agent/internal/store"
	"pos-edge-agent/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker is an advisory lock shared across agent instances, used to keep two
// instances from syncing the same backlog concurrently.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

const syncLockKey = "sale-sync"

// SyncResult is the aggregate outcome of one sync pass.
type SyncResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Synchronizer reconciles unsynced local sales with the central commerce API:
// at-least-once delivery, per-sale failure isolation, idempotent client-side
// bookkeeping. Server-side dedupe rides on the idempotency key the submitter
// sends with each sale.
type Synchronizer struct {
	storage   store.Storage
	submitter SaleSubmitter
	publisher EventPublisher
	locker    Locker // may be nil
	lockTTL   time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	syncing bool
}

// NewSynchronizer creates a new synchronizer
func NewSynchronizer(storage store.Storage, submitter SaleSubmitter, publisher EventPublisher, locker Locker, lockTTL time.Duration) *Synchronizer {
	return &Synchronizer{
		storage:   storage,
		submitter: submitter,
		publisher: publisher,
		locker:    locker,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
	}
}

// SyncOfflineSales runs one full best-effort pass over the current backlog,
// oldest sale first. Only one pass runs at a time per process; a trigger
// arriving mid-pass is ignored and returns a zero result. One sale's failure
// never blocks the rest of the pass.
func (s *Synchronizer) SyncOfflineSales(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		util.SyncPassesSkippedTotal.WithLabelValues("in_flight").Inc()
		s.logger.Debug("Sync pass already in flight, ignoring trigger")
		return SyncResult{}, nil
	}
	s.syncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	ctx, span := util.StartSpan(ctx, "Synchronizer.SyncOfflineSales")
	defer span.End()

	if s.locker != nil {
		token := uuid.New().String()
		acquired, err := s.locker.AcquireLock(ctx, syncLockKey, token, s.lockTTL)
		if err != nil {
			// The lock is advisory; syncing without it beats not
			// syncing at all.
			s.logger.Warn("Sync lock unavailable, proceeding without it", zap.Error(err))
		} else if !acquired {
			util.SyncPassesSkippedTotal.WithLabelValues("lock_held").Inc()
			s.logger.Info("Sync lock held by another instance, skipping pass")
			return SyncResult{}, nil
		} else {
			defer func() {
				if err := s.locker.ReleaseLock(context.Background(), syncLockKey, token); err != nil {
					s.logger.Warn("Failed to release sync lock", zap.Error(err))
				}
			}()
		}
	}

	util.SyncPassesTotal.Inc()
	start := time.Now()
	defer func() {
		util.SyncPassDuration.Observe(time.Since(start).Seconds())
	}()

	// Orphan tasks (sale synced or gone) can survive a crash; purge them
	// without resubmission before scanning.
	if pruned, err := s.storage.PruneSyncTasks(ctx); err != nil {
		s.logger.Warn("Failed to prune sync tasks", zap.Error(err))
	} else if pruned > 0 {
		s.logger.Info("Pruned orphan sync tasks", zap.Int64("count", pruned))
	}

	backlog, err := s.storage.GetUnsyncedSales(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	for i := range backlog {
		sale := &backlog[i]

		submit, err := s.submitter.SubmitSale(ctx, sale)
		if err != nil {
			result.Failed++
			util.SaleSyncFailuresTotal.WithLabelValues("submit").Inc()
			s.logger.Warn("Sale submission failed",
				zap.String("local_id", sale.LocalID),
				zap.Error(err))

			if serr := s.storage.SetSaleSyncError(ctx, sale.LocalID, err.Error()); serr != nil {
				s.logger.Error("Failed to record sync error",
					zap.String("local_id", sale.LocalID),
					zap.Error(serr))
			}
			s.publishSyncFailed(ctx, sale, err.Error())
			continue
		}

		if err := s.storage.MarkSaleSynced(ctx, sale.LocalID); err != nil {
			// The server accepted the sale; the next pass resubmits
			// and the idempotency key makes the replay harmless.
			result.Failed++
			util.SaleSyncFailuresTotal.WithLabelValues("bookkeeping").Inc()
			s.logger.Error("Failed to mark sale synced",
				zap.String("local_id", sale.LocalID),
				zap.Error(err))
			continue
		}

		result.Success++
		util.SalesSyncedTotal.Inc()
		s.logger.Info("Sale synced",
			zap.String("local_id", sale.LocalID),
			zap.String("server_sale_id", submit.ServerSaleID))

		event := &models.SaleSyncedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeSaleSynced,
				Timestamp: time.Now(),
			},
			LocalID:      sale.LocalID,
			BranchID:     sale.BranchID,
			ServerSaleID: submit.ServerSaleID,
		}
		if err := s.publisher.PublishSaleSynced(ctx, event); err != nil {
			s.logger.Warn("Failed to publish SaleSynced event", zap.Error(err))
		}
	}

	if count, err := s.storage.CountUnsyncedSales(ctx); err == nil {
		util.UnsyncedSales.Set(float64(count))
	}

	s.logger.Info("Sync pass complete",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed))

	return result, nil
}

func (s *Synchronizer) publishSyncFailed(ctx context.Context, sale *models.PendingSale, reason string) {
	event := &models.SaleSyncFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleSyncFailed,
			Timestamp: time.Now(),
		},
		LocalID:  sale.LocalID,
		BranchID: sale.BranchID,
		Reason:   reason,
	}
	if err := s.publisher.PublishSaleSyncFailed(ctx, event); err != nil {
		s.logger.Warn("Failed to publish SaleSyncFailed event", zap.Error(err))
	}
}
