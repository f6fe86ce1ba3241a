package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/learnsphere/tutorpay/internal/config"
)

const (
	keyOrderStudent = "order:student:%s:%s"
	keyWebhook      = "webhook:%s"
	keySettleLock   = "settle:%s"

	settleLockTTL = 15 * time.Second
)

// PaymentLimiter bounds order creation per student+IP and webhook ingestion
// per source. When redis is not configured the limiter is disabled and every
// call passes; the settle lock likewise degrades to a no-op since the storage
// CAS alone is sufficient for correctness.
type PaymentLimiter struct {
	enabled bool

	bucket   *TokenBucket
	locker   *Locker
	payments *config.PaymentsConfigHolder
}

func NewPaymentLimiter(client *redis.Client, payments *config.PaymentsConfigHolder) *PaymentLimiter {
	if client == nil {
		return &PaymentLimiter{enabled: false}
	}
	return &PaymentLimiter{
		enabled:  true,
		bucket:   NewTokenBucket(client),
		locker:   NewLocker(client),
		payments: payments,
	}
}

func (l *PaymentLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *PaymentLimiter) AllowOrder(ctx context.Context, studentID, ip string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	cfg := l.payments.Get()
	key := fmt.Sprintf(keyOrderStudent, strings.TrimSpace(studentID), strings.TrimSpace(ip))
	return l.bucket.Allow(ctx, key, cfg.OrderRatePerMinute/60, cfg.OrderBurst)
}

func (l *PaymentLimiter) AllowWebhook(ctx context.Context, source string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	cfg := l.payments.Get()
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhook, strings.TrimSpace(source)), cfg.WebhookRatePerMinute/60, cfg.WebhookBurst)
}

// TryLockSettle serializes the settle path per intent. Returns ok=true with
// an empty token when the limiter is disabled.
func (l *PaymentLimiter) TryLockSettle(ctx context.Context, intentID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keySettleLock, intentID), settleLockTTL)
}

func (l *PaymentLimiter) ReleaseSettle(ctx context.Context, intentID, token string) error {
	if !l.Enabled() || token == "" {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keySettleLock, intentID), token)
}
