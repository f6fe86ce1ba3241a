package reporting

import (
	"context"
	"time"

	"github.com/learnsphere/tutorpay/internal/clock"
	intentdomain "github.com/learnsphere/tutorpay/internal/intent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Summary aggregates intent history for operators. All figures are read
// straight from the intent table; this package never mutates anything.
type Summary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	TotalIntents  int64         `json:"total_intents"`
	SettledAmount int64         `json:"settled_amount"`
	ByStatus      []StatusLine  `json:"by_status"`
	ByProductType []ProductLine `json:"by_product_type"`
}

type StatusLine struct {
	Status intentdomain.Status `json:"status" gorm:"column:status"`
	Count  int64               `json:"count" gorm:"column:count"`
	Amount int64               `json:"amount" gorm:"column:amount"`
}

type ProductLine struct {
	ProductType string `json:"product_type" gorm:"column:product_type"`
	Count       int64  `json:"count" gorm:"column:count"`
	Amount      int64  `json:"amount" gorm:"column:amount"`
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("reporting.service"),
		clock: p.Clock,
	}
}

// GetSummary reports per-status totals over the window plus settled revenue
// by product type. A zero window defaults to the trailing 30 days.
func (s *Service) GetSummary(ctx context.Context, from, to time.Time) (*Summary, error) {
	now := s.clock.Now()
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}

	summary := &Summary{From: from, To: to}

	if err := s.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
		 FROM payment_intents
		 WHERE created_at >= ? AND created_at < ?
		 GROUP BY status
		 ORDER BY status`,
		from, to,
	).Scan(&summary.ByStatus).Error; err != nil {
		return nil, err
	}
	for _, line := range summary.ByStatus {
		summary.TotalIntents += line.Count
		if line.Status == intentdomain.StatusSucceeded {
			summary.SettledAmount += line.Amount
		}
	}

	if err := s.db.WithContext(ctx).Raw(
		`SELECT product_type, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
		 FROM payment_intents
		 WHERE status = ? AND created_at >= ? AND created_at < ?
		 GROUP BY product_type
		 ORDER BY product_type`,
		intentdomain.StatusSucceeded, from, to,
	).Scan(&summary.ByProductType).Error; err != nil {
		return nil, err
	}

	return summary, nil
}
