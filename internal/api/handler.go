package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pos-edge-agent/internal/assets"
	"pos-edge-agent/internal/connectivity"
	"pos-edge-agent/internal/models"
	"pos-edge-agent/internal/service"
	"pos-edge-agent/internal/store"
	"pos-edge-agent/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	recorder     *service.SaleRecorder
	productCache *service.ProductCache
	synchronizer *service.Synchronizer
	submitter    service.SaleSubmitter
	monitor      *connectivity.Monitor
	shellCache   *assets.ShellCache
}

// NewHandler creates a new HTTP handler
func NewHandler(
	recorder *service.SaleRecorder,
	productCache *service.ProductCache,
	synchronizer *service.Synchronizer,
	submitter service.SaleSubmitter,
	monitor *connectivity.Monitor,
	shellCache *assets.ShellCache,
) *Handler {
	return &Handler{
		recorder:     recorder,
		productCache: productCache,
		synchronizer: synchronizer,
		submitter:    submitter,
		monitor:      monitor,
		shellCache:   shellCache,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sales", h.recordSale)
		v1.GET("/sales", h.getOfflineSales)
		v1.GET("/sales/unsynced", h.getUnsyncedSales)
		v1.POST("/sync", h.syncOfflineSales)

		v1.POST("/products/cache", h.cacheProduct)
		v1.GET("/products/cache/:id", h.getCachedProduct)
		v1.GET("/products/search", h.searchCachedProducts)

		v1.POST("/connectivity", h.setConnectivity)
		v1.POST("/assets/invalidate", h.invalidateAssets)
	}

	if h.shellCache != nil {
		router.GET("/shell/*filepath", gin.WrapH(http.StripPrefix("/shell", h.shellCache)))
	}
}

// healthCheck reports agent health plus the offline-capture backlog
func (h *Handler) healthCheck(c *gin.Context) {
	unsynced, err := h.recorder.CountUnsyncedSales(c.Request.Context())
	if err != nil {
		unsynced = -1
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"online":   h.monitor.IsOnline(),
		"unsynced": unsynced,
		"time":     time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// recordSale captures a sale into local durable storage. If the store is
// unavailable and the central API is reachable, the sale degrades to a
// direct live submission; otherwise the failure is surfaced to the caller.
func (h *Handler) recordSale(c *gin.Context) {
	var req service.RecordSaleRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	localID, err := h.recorder.RecordSale(c.Request.Context(), &req)
	if err == nil {
		c.JSON(http.StatusCreated, gin.H{
			"local_id": localID,
			"status":   "captured",
		})
		return
	}

	if errors.Is(err, service.ErrInvalidSale) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid sale",
			"details": err.Error(),
		})
		return
	}

	if errors.Is(err, store.ErrStorageUnavailable) && h.monitor.IsOnline() {
		h.recordSaleLive(c, &req)
		return
	}

	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "Offline capture unavailable",
		"details": err.Error(),
	})
}

// recordSaleLive submits directly to the central API when local storage is
// down but connectivity exists.
func (h *Handler) recordSaleLive(c *gin.Context, req *service.RecordSaleRequest) {
	sale := &models.PendingSale{
		LocalID:        service.GenerateLocalID(),
		BranchID:       req.BranchID,
		CustomerID:     req.CustomerID,
		PaymentMethod:  req.PaymentMethod,
		Currency:       req.Currency,
		ExchangeRate:   req.ExchangeRate,
		AmountPaid:     req.AmountPaid,
		DiscountAmount: req.DiscountAmount,
		Subtotal:       req.Subtotal,
		TaxAmount:      req.TaxAmount,
		TotalAmount:    req.TotalAmount,
		CreatedAt:      time.Now().UTC(),
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

	result, err := h.submitter.SubmitSale(c.Request.Context(), sale)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Sale could not be captured or submitted",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"local_id": sale.LocalID,
		"sale_id":  result.ServerSaleID,
		"status":   "submitted_live",
	})
}

// getOfflineSales returns all locally captured sales
func (h *Handler) getOfflineSales(c *gin.Context) {
	sales, err := h.recorder.GetOfflineSales(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list sales",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales, "count": len(sales)})
}

// getUnsyncedSales returns the current sync backlog
func (h *Handler) getUnsyncedSales(c *gin.Context) {
	sales, err := h.recorder.GetUnsyncedSales(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list unsynced sales",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales, "count": len(sales)})
}

// syncOfflineSales triggers a manual sync pass
func (h *Handler) syncOfflineSales(c *gin.Context) {
	result, err := h.synchronizer.SyncOfflineSales(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Sync pass failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// cacheProduct upserts a product snapshot into the offline cache
func (h *Handler) cacheProduct(c *gin.Context) {
	var product models.CachedProduct
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if product.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Product id is required"})
		return
	}

	if err := h.productCache.CacheProduct(c.Request.Context(), &product); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to cache product",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cached", "id": product.ID})
}

// getCachedProduct looks up a product by id
func (h *Handler) getCachedProduct(c *gin.Context) {
	product, err := h.productCache.GetCachedProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not cached"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to look up product",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, product)
}

// searchCachedProducts matches products by name, SKU, barcode or RFID tag
func (h *Handler) searchCachedProducts(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter q is required"})
		return
	}

	products, err := h.productCache.SearchCachedProducts(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Search failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

// setConnectivity lets an operator force a connectivity transition
func (h *Handler) setConnectivity(c *gin.Context) {
	var req struct {
		Online *bool `json:"online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	h.monitor.SetOnline(*req.Online)
	c.JSON(http.StatusOK, gin.H{"online": h.monitor.IsOnline()})
}

// invalidateAssets drops the cached application shell
func (h *Handler) invalidateAssets(c *gin.Context) {
	if h.shellCache == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Shell cache not enabled"})
		return
	}
	dropped := h.shellCache.Invalidate()
	c.JSON(http.StatusOK, gin.H{"invalidated": dropped})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
