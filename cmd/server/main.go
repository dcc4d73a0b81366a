package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos-edge-agent/config"
	"pos-edge-agent/internal/api"
	"pos-edge-agent/internal/assets"
	"pos-edge-agent/internal/broker"
	"pos-edge-agent/internal/connectivity"
	"pos-edge-agent/internal/redisclient"
	"pos-edge-agent/internal/service"
	"pos-edge-agent/internal/store"
	"pos-edge-agent/internal/util"
	"pos-edge-agent/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting POS edge agent", zap.String("branch_id", cfg.Branch.ID))

	tp, err := util.InitTracer("pos-edge-agent", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	var storage store.Storage
	if cfg.Storage.Driver == "memory" {
		storage = store.NewMemoryStore()
		logger.Warn("Using in-memory storage; captured sales will not survive a restart")
	} else {
		dbStore, err := store.OpenShared(cfg.Storage.URL)
		if err != nil {
			// Degrade to volatile capture rather than refuse to start:
			// the terminal can still ring up sales, they just will not
			// survive a process restart.
			logger.Error("Durable storage unavailable, falling back to in-memory capture",
				zap.Error(err))
			storage = store.NewMemoryStore()
		} else {
			storage = dbStore
		}
	}
	defer storage.Close()

	var hotCache service.ProductHotCache
	var locker service.Locker
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable; hot cache and cross-instance sync lock disabled",
			zap.Error(err))
	} else {
		defer redisClient.Close()
		hotCache = redisClient
		locker = redisClient
		log.Println("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSales)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)
	log.Println("Kafka producer initialized")

	monitor := connectivity.NewMonitor(logger)

	commerceClient := service.NewCommerceClient(
		cfg.Commerce.BaseURL, cfg.Commerce.APIKey, cfg.Commerce.Timeout, monitor)

	recorder := service.NewSaleRecorder(storage, eventPublisher, cfg.Branch.ID)
	productCache := service.NewProductCache(storage, hotCache, cfg.Redis.ProductTTL)
	synchronizer := service.NewSynchronizer(
		storage, commerceClient, eventPublisher, locker, cfg.Commerce.SyncLockTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	syncWorker := worker.NewSyncWorker(monitor, synchronizer)
	syncWorker.Start(workerCtx, cfg.Commerce.SyncOnStart)

	productConsumer := broker.NewConsumer(
		cfg.Kafka.Brokers, cfg.Kafka.TopicProducts, cfg.Kafka.ConsumerGroup)
	productWorker := worker.NewProductCacheWorker(productConsumer, productCache)
	go func() {
		if err := productWorker.Start(workerCtx); err != nil {
			log.Printf("Product cache worker error: %v", err)
		}
	}()

	shellCache, err := assets.NewShellCache(cfg.Shell.UpstreamURL, nil)
	if err != nil {
		log.Fatalf("Invalid shell upstream URL: %v", err)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(recorder, productCache, synchronizer, commerceClient, monitor, shellCache)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	syncWorker.Stop()
	productWorker.Stop()

	log.Println("Server exited")
}
