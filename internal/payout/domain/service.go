package domain

import (
	"context"

	"gorm.io/gorm"
)

// Event is one gateway payout notification. ReferenceID is matched against
// PayoutCheckID.
type Event struct {
	Name            string
	ReferenceID     string
	GatewayPayoutID string
	FailureReason   string
}

// Service reconciles gateway payout events into the ledger. All methods are
// safe under at-least-once delivery: the paid transition is conditional so the
// invoice side effect fires at most once per payout.
type Service interface {
	// HandleProcessed moves the payout to paid and, best effort, generates
	// and emails the educator's invoice. Invoice failures are logged only;
	// the transfer itself is already irreversible.
	HandleProcessed(ctx context.Context, ev Event) error

	HandleFailed(ctx context.Context, ev Event) error
	HandleReversed(ctx context.Context, ev Event) error

	GetByCheckID(ctx context.Context, checkID string) (*Payout, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByCheckID(ctx context.Context, db *gorm.DB, checkID string) (*Payout, error)

	// MarkPaid applies only while the payout is pending or processing;
	// reports whether this caller performed the transition.
	MarkPaid(ctx context.Context, db *gorm.DB, checkID, gatewayPayoutID, eventName string) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, checkID, reason, eventName string) (bool, error)
	MarkReversed(ctx context.Context, db *gorm.DB, checkID, eventName string) (bool, error)
	RecordEvent(ctx context.Context, db *gorm.DB, checkID, eventName string) error
}
