package worker

import (
	"context"
	"log"

	"pos-edge-agent/internal/broker"
	"pos-edge-agent/internal/connectivity"
	"pos-edge-agent/internal/service"
	"pos-edge-agent/internal/util"

	"go.uber.org/zap"
)

// SyncWorker triggers sync passes when connectivity is regained. Sync is
// purely pull-triggered: a connectivity event, an explicit API call, or the
// startup pass. There is no retry timer or backoff schedule.
type SyncWorker struct {
	monitor      *connectivity.Monitor
	synchronizer *service.Synchronizer
	logger       *zap.Logger
	subID        int
	cancel       context.CancelFunc
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(monitor *connectivity.Monitor, synchronizer *service.Synchronizer) *SyncWorker {
	return &SyncWorker{
		monitor:      monitor,
		synchronizer: synchronizer,
		logger:       util.GetLogger(),
	}
}

// Start subscribes to connectivity transitions. When syncOnStart is set and
// the agent believes it is online, one pass runs immediately to drain any
// backlog left over from a previous run.
func (w *SyncWorker) Start(ctx context.Context, syncOnStart bool) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.subID = w.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		go w.runPass(ctx)
	})

	if syncOnStart && w.monitor.IsOnline() {
		go w.runPass(ctx)
	}

	w.logger.Info("Sync worker started")
}

// Stop unsubscribes from connectivity transitions.
func (w *SyncWorker) Stop() {
	w.monitor.Unsubscribe(w.subID)
	if w.cancel != nil {
		w.cancel()
	}
	w.logger.Info("Sync worker stopped")
}

func (w *SyncWorker) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := w.synchronizer.SyncOfflineSales(ctx)
	if err != nil {
		w.logger.Error("Sync pass failed", zap.Error(err))
		return
	}
	if result.Success > 0 || result.Failed > 0 {
		w.logger.Info("Connectivity-triggered sync pass finished",
			zap.Int("success", result.Success),
			zap.Int("failed", result.Failed))
	}
}

// ProductCacheWorker keeps the local product cache warm from the central
// catalog event stream.
type ProductCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewProductCacheWorker creates a new product cache worker
func NewProductCacheWorker(consumer *broker.Consumer, productCache *service.ProductCache) *ProductCacheWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnProductUpdated(productCache.HandleProductUpdate)

	return &ProductCacheWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *ProductCacheWorker) Start(ctx context.Context) error {
	log.Println("Starting product cache worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ProductCacheWorker) Stop() error {
	log.Println("Stopping product cache worker...")
	return w.consumer.Close()
}
