package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/learnsphere/tutorpay/internal/intent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, intent *domain.PaymentIntent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_intents (
			id, student_id, product_id, product_type, amount, currency, status,
			gateway_order_id, gateway_payment_id, gateway_signature, receipt,
			product_snapshot, metadata, expires_at, error_reason, last_event,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID,
		intent.StudentID,
		intent.ProductID,
		intent.ProductType,
		intent.Amount,
		intent.Currency,
		intent.Status,
		intent.GatewayOrderID,
		intent.GatewayPaymentID,
		intent.GatewaySignature,
		intent.Receipt,
		intent.ProductSnapshot,
		intent.Metadata,
		intent.ExpiresAt,
		intent.ErrorReason,
		intent.LastEvent,
		intent.CreatedAt,
		intent.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentIntent, error) {
	var item domain.PaymentIntent
	err := db.WithContext(ctx).Raw(
		`SELECT id, student_id, product_id, product_type, amount, currency, status,
			gateway_order_id, gateway_payment_id, gateway_signature, receipt,
			product_snapshot, metadata, expires_at, error_reason, last_event,
			created_at, updated_at
		 FROM payment_intents
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByGatewayOrderID(ctx context.Context, db *gorm.DB, gatewayOrderID string) (*domain.PaymentIntent, error) {
	var item domain.PaymentIntent
	err := db.WithContext(ctx).Raw(
		`SELECT id, student_id, product_id, product_type, amount, currency, status,
			gateway_order_id, gateway_payment_id, gateway_signature, receipt,
			product_snapshot, metadata, expires_at, error_reason, last_event,
			created_at, updated_at
		 FROM payment_intents
		 WHERE gateway_order_id = ?
		 LIMIT 1`,
		gatewayOrderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) AttachGatewayOrder(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayOrderID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET gateway_order_id = ?, updated_at = ?
		 WHERE id = ?`,
		gatewayOrderID,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) MarkAuthorized(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayPaymentID, eventName string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, gateway_payment_id = ?, last_event = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusAuthorized,
		gatewayPaymentID,
		eventName,
		time.Now().UTC(),
		id,
		domain.StatusCreated,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SettleSucceeded applies the status check, the expiry check and the write in
// a single statement. A separate read-then-write would reopen the
// time-of-check/time-of-use race between the two confirmation paths.
func (r *repo) SettleSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayPaymentID, gatewaySignature, eventName string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, gateway_payment_id = ?, gateway_signature = ?,
			last_event = ?, updated_at = ?
		 WHERE id = ?
		   AND status IN (?, ?, ?)
		   AND expires_at > ?`,
		domain.StatusSucceeded,
		gatewayPaymentID,
		gatewaySignature,
		eventName,
		now,
		id,
		domain.StatusCreated,
		domain.StatusPending,
		domain.StatusAuthorized,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason, eventName string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, error_reason = ?, last_event = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?, ?)`,
		domain.StatusFailed,
		reason,
		eventName,
		time.Now().UTC(),
		id,
		domain.StatusCreated,
		domain.StatusPending,
		domain.StatusAuthorized,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RecordEvent(ctx context.Context, db *gorm.DB, id snowflake.ID, eventName string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET last_event = ?, updated_at = ?
		 WHERE id = ?`,
		eventName,
		time.Now().UTC(),
		id,
	).Error
}
