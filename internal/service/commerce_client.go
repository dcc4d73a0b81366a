package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pos-edge-agent/internal/connectivity"
	"pos-edge-agent/internal/models"
	"pos-edge-agent/internal/util"

	"go.uber.org/zap"
)

// SaleSubmitter submits a captured sale to the central commerce API.
type SaleSubmitter interface {
	SubmitSale(ctx context.Context, sale *models.PendingSale) (*SubmitResult, error)
}

// SubmitResult carries the server-assigned identity after a successful
// submission.
type SubmitResult struct {
	ServerSaleID string
}

// CommerceClient is the HTTP client for the central commerce API. Every
// request outcome is reported to the connectivity monitor: the monitor's
// signal is a heuristic, individual request failures are the ground truth.
type CommerceClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	monitor    *connectivity.Monitor
	logger     *zap.Logger
}

// NewCommerceClient creates a new commerce API client
func NewCommerceClient(baseURL, apiKey string, timeout time.Duration, monitor *connectivity.Monitor) *CommerceClient {
	return &CommerceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		monitor:    monitor,
		logger:     util.GetLogger(),
	}
}

// salePayload is the wire format of POST /sales. Fields mirror the stored
// sale verbatim; totals are never recomputed on the way out.
type salePayload struct {
	LocalID        string         `json:"localId"`
	BranchID       string         `json:"branchId"`
	CustomerID     *string        `json:"customerId,omitempty"`
	Items          []itemPayload  `json:"items"`
	PaymentMethod  string         `json:"paymentMethod"`
	Currency       string         `json:"currency"`
	ExchangeRate   *float64       `json:"exchangeRate,omitempty"`
	PaymentSplits  []splitPayload `json:"paymentSplits,omitempty"`
	AmountPaid     float64        `json:"amountPaid"`
	DiscountAmount float64        `json:"discountAmount"`
	Subtotal       float64        `json:"subtotal"`
	TaxAmount      float64        `json:"taxAmount"`
	TotalAmount    float64        `json:"totalAmount"`
	CreatedAt      time.Time      `json:"createdAt"`
	IsOffline      bool           `json:"isOffline"`
}

type itemPayload struct {
	ProductID      string  `json:"productId"`
	Quantity       float64 `json:"quantity"`
	UnitPrice      float64 `json:"unitPrice"`
	DiscountAmount float64 `json:"discountAmount"`
}

type splitPayload struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
}

type saleResponse struct {
	ID     string `json:"id"`
	SaleID string `json:"sale_id"`
}

// SubmitSale posts a sale tagged as offline-originated. The local ID rides
// along as an idempotency key so the server can dedupe replays. Any non-2xx
// response is a failure; the local record stays untouched for retry.
func (c *CommerceClient) SubmitSale(ctx context.Context, sale *models.PendingSale) (*SubmitResult, error) {
	ctx, span := util.StartSpan(ctx, "CommerceClient.SubmitSale")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SaleSubmissionLatency.Observe(time.Since(start).Seconds())
	}()

	payload := buildSalePayload(sale)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sale payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sales", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", sale.LocalID)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.monitor.SetOnline(false)
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	c.monitor.SetOnline(true)

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("commerce api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed saleResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.logger.Warn("Unparseable sale response body",
			zap.String("local_id", sale.LocalID),
			zap.Error(err))
	}

	serverID := parsed.ID
	if serverID == "" {
		serverID = parsed.SaleID
	}

	return &SubmitResult{ServerSaleID: serverID}, nil
}

func buildSalePayload(sale *models.PendingSale) salePayload {
	items := make([]itemPayload, len(sale.Items))
	for i, item := range sale.Items {
		items[i] = itemPayload{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: item.DiscountAmount,
		}
	}

	var splits []splitPayload
	for _, split := range sale.PaymentSplits {
		splits = append(splits, splitPayload{Method: split.Method, Amount: split.Amount})
	}

	return salePayload{
		LocalID:        sale.LocalID,
		BranchID:       sale.BranchID,
		CustomerID:     sale.CustomerID,
		Items:          items,
		PaymentMethod:  sale.PaymentMethod,
		Currency:       sale.Currency,
		ExchangeRate:   sale.ExchangeRate,
		PaymentSplits:  splits,
		AmountPaid:     sale.AmountPaid,
		DiscountAmount: sale.DiscountAmount,
		Subtotal:       sale.Subtotal,
		TaxAmount:      sale.TaxAmount,
		TotalAmount:    sale.TotalAmount,
		CreatedAt:      sale.CreatedAt,
		IsOffline:      true,
	}
}
