package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
	"gorm.io/datatypes"
)

// Status is the PaymentIntent state machine:
//
//	created → pending → authorized → {succeeded | failed}
//
// refunded and cancelled are terminal states reachable only through admin
// actions outside this service. Status never regresses.
type Status string

const (
	StatusCreated    Status = "created"
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrIntentNotFound = errors.New("intent_not_found")
	ErrIntentExpired  = errors.New("intent_expired")

	// ErrOrderMismatch means the supplied gateway order id conflicts with the
	// one stored on the resolved intent.
	ErrOrderMismatch = errors.New("order_mismatch")

	// ErrTransitionConflict means a conditional status update lost to a
	// terminal state other than succeeded.
	ErrTransitionConflict = errors.New("transition_conflict")

	ErrInvalidProductType = errors.New("invalid_product_type")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrMissingFields      = errors.New("missing_fields")
)

// PaymentIntent is the authoritative record of one checkout attempt, from
// creation to terminal settlement. Amount and ProductSnapshot are write-once
// at creation; only the settlement engine mutates the record afterwards, and
// rows are never deleted.
type PaymentIntent struct {
	ID               snowflake.ID              `json:"id" gorm:"primaryKey"`
	StudentID        snowflake.ID              `json:"student_id" gorm:"not null;index"`
	ProductID        snowflake.ID              `json:"product_id" gorm:"not null;index"`
	ProductType      catalogdomain.ProductType `json:"product_type" gorm:"type:text;not null"`
	Amount           int64                     `json:"amount" gorm:"not null"`
	Currency         string                    `json:"currency" gorm:"type:text;not null"`
	Status           Status                    `json:"status" gorm:"type:text;not null;index"`
	GatewayOrderID   string                    `json:"gateway_order_id" gorm:"type:text;index"`
	GatewayPaymentID string                    `json:"gateway_payment_id" gorm:"type:text"`
	GatewaySignature string                    `json:"gateway_signature" gorm:"type:text"`
	Receipt          string                    `json:"receipt" gorm:"type:text"`
	ProductSnapshot  datatypes.JSON            `json:"product_snapshot" gorm:"type:jsonb"`
	Metadata         datatypes.JSONMap         `json:"metadata" gorm:"type:jsonb"`
	ExpiresAt        time.Time                 `json:"expires_at" gorm:"not null"`
	ErrorReason      string                    `json:"error_reason" gorm:"type:text"`
	LastEvent        string                    `json:"last_event" gorm:"type:text"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

// Settleable reports whether the intent can still move to a terminal state.
func (i *PaymentIntent) Settleable() bool {
	switch i.Status {
	case StatusCreated, StatusPending, StatusAuthorized:
		return true
	default:
		return false
	}
}

// Expired reports whether the settlement window has closed.
func (i *PaymentIntent) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}
