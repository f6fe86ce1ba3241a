package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the payout ledger state machine:
//
//	pending → processing → {paid | failed | reversed}
//
// The gateway reports transitions by reference id; the reference must equal
// the record's PayoutCheckID chosen at scheduling time.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusReversed   Status = "reversed"
)

var ErrPayoutNotFound = errors.New("payout_not_found")

// Payout is one scheduled transfer of settled revenue to an educator,
// created by the monthly calculation job for a (month, year) period.
// PayoutCheckID is the idempotency key for this ledger; the gateway echoes it
// back as the reference id on every payout event. Amount is the net amount
// transferred: GrossAmount minus CommissionAmount.
type Payout struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	EducatorID       snowflake.ID   `json:"educator_id" gorm:"not null;index"`
	PayoutCheckID    string         `json:"payout_check_id" gorm:"type:text;not null;uniqueIndex"`
	GrossAmount      int64          `json:"gross_amount" gorm:"not null"`
	CommissionAmount int64          `json:"commission_amount" gorm:"not null"`
	Amount           int64          `json:"amount" gorm:"not null"`
	Currency         string         `json:"currency" gorm:"type:text;not null"`
	Status           Status         `json:"status" gorm:"type:text;not null;index"`
	GatewayPayoutID  string         `json:"gateway_payout_id" gorm:"type:text"`
	FailureReason    string         `json:"failure_reason" gorm:"type:text"`
	Snapshot         datatypes.JSON `json:"snapshot" gorm:"type:jsonb"`
	ScheduledDate    time.Time      `json:"scheduled_date"`
	Month            int            `json:"month" gorm:"not null"`
	Year             int            `json:"year" gorm:"not null"`
	Narration        string         `json:"narration" gorm:"type:text"`
	LastEvent        string         `json:"last_event" gorm:"type:text"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (Payout) TableName() string { return "payouts" }

// SnapshotItem is one line of the payout snapshot captured at scheduling
// time; the invoice renders these, never recomputed revenue.
type SnapshotItem struct {
	Description string `json:"description"`
	Qty         int    `json:"qty"`
	AmountMinor int64  `json:"amount_minor"`
}
