package repository

import (
	"context"
	"time"

	"github.com/learnsphere/tutorpay/internal/payout/domain"
	pkgdb "github.com/learnsphere/tutorpay/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert schedules one payout. payout_check_id carries a unique index, so a
// retried scheduling run lands on the existing row and is treated as applied.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO payouts (
			id, educator_id, payout_check_id, gross_amount, commission_amount,
			amount, currency, status, gateway_payout_id, failure_reason,
			snapshot, scheduled_date, month, year, narration, last_event,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.EducatorID,
		payout.PayoutCheckID,
		payout.GrossAmount,
		payout.CommissionAmount,
		payout.Amount,
		payout.Currency,
		payout.Status,
		payout.GatewayPayoutID,
		payout.FailureReason,
		payout.Snapshot,
		payout.ScheduledDate,
		payout.Month,
		payout.Year,
		payout.Narration,
		payout.LastEvent,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
	if pkgdb.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *repo) FindByCheckID(ctx context.Context, db *gorm.DB, checkID string) (*domain.Payout, error) {
	var payout domain.Payout
	res := db.WithContext(ctx).
		Raw(`SELECT * FROM payouts WHERE payout_check_id = ?`, checkID).
		Scan(&payout)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &payout, nil
}

// MarkPaid is conditional on the payout still being in flight, so a
// redelivered processed event cannot re-trigger the invoice side effect.
func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, checkID, gatewayPayoutID, eventName string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, gateway_payout_id = ?, last_event = ?, updated_at = ?
		 WHERE payout_check_id = ? AND status IN (?, ?)`,
		domain.StatusPaid,
		gatewayPayoutID,
		eventName,
		time.Now().UTC(),
		checkID,
		domain.StatusPending,
		domain.StatusProcessing,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, checkID, reason, eventName string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, failure_reason = ?, last_event = ?, updated_at = ?
		 WHERE payout_check_id = ? AND status IN (?, ?)`,
		domain.StatusFailed,
		reason,
		eventName,
		time.Now().UTC(),
		checkID,
		domain.StatusPending,
		domain.StatusProcessing,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkReversed(ctx context.Context, db *gorm.DB, checkID, eventName string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, last_event = ?, updated_at = ?
		 WHERE payout_check_id = ? AND status NOT IN (?)`,
		domain.StatusReversed,
		eventName,
		time.Now().UTC(),
		checkID,
		domain.StatusReversed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RecordEvent(ctx context.Context, db *gorm.DB, checkID, eventName string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET last_event = ?, updated_at = ?
		 WHERE payout_check_id = ?`,
		eventName,
		time.Now().UTC(),
		checkID,
	).Error
}
