package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/learnsphere/tutorpay/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrGatewayUnavailable covers transport failures and gateway-side 5xx
	// during order creation. The caller's pending intent is left orphaned and
	// simply expires.
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrInvalidOrderParams = errors.New("gateway_invalid_order_params")
)

// Client talks to the payment gateway's REST API. It is built once at process
// start and handed to components via DI; there is no package-level singleton.
type Client struct {
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	httpClient    *http.Client
	log           *zap.Logger
}

func NewClient(cfg config.GatewayConfig, log *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
		log:           log.Named("gateway.client"),
	}
}

// PublicKey returns the key id handed to checkout clients.
func (c *Client) PublicKey() string { return c.keyID }

// OrderRequest asks the gateway to open an order for a checkout attempt.
// Amount is in minor currency units. Notes travel back on webhook events and
// carry the intent id as correlation metadata.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is the gateway's view of an opened order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreateOrder opens a gateway order. Any transport or gateway-side failure
// maps to ErrGatewayUnavailable so callers can surface a retryable 5xx.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.Amount <= 0 || strings.TrimSpace(req.Currency) == "" {
		return nil, ErrInvalidOrderParams
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Warn("gateway order creation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("gateway rejected order creation",
			zap.Int("status", resp.StatusCode),
			zap.String("receipt", req.Receipt),
		)
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var order Order
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	if strings.TrimSpace(order.ID) == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrGatewayUnavailable)
	}

	return &order, nil
}
