package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists payment intents. Success settlement is an atomic
// conditional update: the status check, expiry check and write happen in one
// storage operation so two racing confirmation paths cannot both win.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, intent *PaymentIntent) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentIntent, error)
	FindByGatewayOrderID(ctx context.Context, db *gorm.DB, gatewayOrderID string) (*PaymentIntent, error)

	// AttachGatewayOrder records the gateway order id returned after the
	// order-creation call that follows the insert.
	AttachGatewayOrder(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayOrderID string) error

	// MarkAuthorized moves pending → authorized. Applied only when the intent
	// is still pending; reports whether the row changed.
	MarkAuthorized(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayPaymentID, eventName string) (bool, error)

	// SettleSucceeded is the compare-and-swap: transition to succeeded only if
	// the current status is still settleable and the intent has not expired as
	// of now. Reports whether this caller won the transition.
	SettleSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayPaymentID, gatewaySignature, eventName string, now time.Time) (bool, error)

	// MarkFailed moves a settleable intent to failed with the gateway-supplied
	// reason.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason, eventName string) (bool, error)

	// RecordEvent stores the last seen event name without touching status.
	// Used for unrecognized gateway event types.
	RecordEvent(ctx context.Context, db *gorm.DB, id snowflake.ID, eventName string) error
}
