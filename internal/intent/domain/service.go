package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
)

type CreateOrderRequest struct {
	StudentID   snowflake.ID
	ProductType string
	ProductID   snowflake.ID
}

type CreateOrderResponse struct {
	IntentID       snowflake.ID `json:"intent_id"`
	GatewayOrderID string       `json:"order_id"`
	Amount         int64        `json:"amount"`
	Currency       string       `json:"currency"`
	GatewayKey     string       `json:"gateway_key"`
	Product        ProductBrief `json:"product"`
}

type ProductBrief struct {
	Title string                    `json:"title"`
	Type  catalogdomain.ProductType `json:"type"`
}

// Service initiates checkout attempts and reads intent state.
type Service interface {
	// CreateOrder validates eligibility, prices the product from the catalog,
	// snapshots the priced terms, persists a pending intent and opens a
	// gateway order. A gateway failure leaves the pending intent orphaned; it
	// expires on its own and a retry creates a fresh order.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error)

	GetIntent(ctx context.Context, id snowflake.ID) (*PaymentIntent, error)
}
