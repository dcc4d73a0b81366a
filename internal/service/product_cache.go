package service

import (
	"context"
	"time"

	"pos-edge-agent/internal/models"
	"pos-edge-agent/internal/store"
	"pos-edge-agent/internal/util"

	"go.uber.org/zap"
)

// ProductHotCache is the optional Redis-backed fast path in front of the
// durable product cache.
type ProductHotCache interface {
	SetProduct(ctx context.Context, product *models.CachedProduct, ttl time.Duration) error
	GetProduct(ctx context.Context, id string) (*models.CachedProduct, error)
}

// ProductCache maintains a best-effort local mirror of product identity and
// pricing for offline lookups. The durable store is authoritative; the hot
// cache is a fast path that falls back to the store on any failure.
type ProductCache struct {
	storage store.Storage
	hot     ProductHotCache // may be nil
	hotTTL  time.Duration
	logger  *zap.Logger
}

// NewProductCache creates a new product cache manager
func NewProductCache(storage store.Storage, hot ProductHotCache, hotTTL time.Duration) *ProductCache {
	return &ProductCache{
		storage: storage,
		hot:     hot,
		hotTTL:  hotTTL,
		logger:  util.GetLogger(),
	}
}

// CacheProduct upserts a product snapshot with cachedAt set to now. Last
// write wins per product id.
func (pc *ProductCache) CacheProduct(ctx context.Context, product *models.CachedProduct) error {
	ctx, span := util.StartSpan(ctx, "ProductCache.CacheProduct")
	defer span.End()

	snapshot := *product
	snapshot.CachedAt = time.Now().UTC()

	if err := pc.storage.UpsertProduct(ctx, &snapshot); err != nil {
		return err
	}

	if pc.hot != nil {
		if err := pc.hot.SetProduct(ctx, &snapshot, pc.hotTTL); err != nil {
			pc.logger.Warn("Failed to write product to hot cache",
				zap.String("product_id", snapshot.ID),
				zap.Error(err))
		}
	}

	return nil
}

// GetCachedProduct retrieves a product by id, preferring the hot cache.
func (pc *ProductCache) GetCachedProduct(ctx context.Context, id string) (*models.CachedProduct, error) {
	ctx, span := util.StartSpan(ctx, "ProductCache.GetCachedProduct")
	defer span.End()

	if pc.hot != nil {
		product, err := pc.hot.GetProduct(ctx, id)
		if err != nil {
			pc.logger.Warn("Hot cache lookup failed, falling back to store",
				zap.String("product_id", id),
				zap.Error(err))
		} else if product != nil {
			util.ProductCacheHitsTotal.WithLabelValues("redis").Inc()
			return product, nil
		}
	}

	product, err := pc.storage.GetProduct(ctx, id)
	if err != nil {
		util.ProductCacheHitsTotal.WithLabelValues("miss").Inc()
		return nil, err
	}
	util.ProductCacheHitsTotal.WithLabelValues("store").Inc()

	if pc.hot != nil {
		if err := pc.hot.SetProduct(ctx, product, pc.hotTTL); err != nil {
			pc.logger.Warn("Failed to backfill hot cache",
				zap.String("product_id", id),
				zap.Error(err))
		}
	}

	return product, nil
}

// SearchCachedProducts performs a case-insensitive substring match across
// name, SKU, barcode and RFID tag. Used when the live product search is
// unreachable.
func (pc *ProductCache) SearchCachedProducts(ctx context.Context, query string) ([]models.CachedProduct, error) {
	ctx, span := util.StartSpan(ctx, "ProductCache.SearchCachedProducts")
	defer span.End()

	return pc.storage.SearchProducts(ctx, query)
}

// HandleProductUpdate applies a catalog update event to the cache.
func (pc *ProductCache) HandleProductUpdate(ctx context.Context, event *models.ProductUpdateEvent) error {
	return pc.CacheProduct(ctx, &event.Product)
}
