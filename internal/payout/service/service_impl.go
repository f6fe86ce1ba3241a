package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
	"github.com/learnsphere/tutorpay/internal/config"
	obsmetrics "github.com/learnsphere/tutorpay/internal/observability/metrics"
	"github.com/learnsphere/tutorpay/internal/payout/domain"
	"github.com/learnsphere/tutorpay/internal/providers/email"
	"github.com/learnsphere/tutorpay/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Catalog  catalogdomain.Service
	PDF      pdf.Provider
	Email    email.Provider
	Payments *config.PaymentsConfigHolder
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg      config.Config
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	catalog  catalogdomain.Service
	pdf      pdf.Provider
	email    email.Provider
	payments *config.PaymentsConfigHolder
	metrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		cfg:      p.Cfg,
		db:       p.DB,
		log:      p.Log.Named("payout.service"),
		repo:     p.Repo,
		catalog:  p.Catalog,
		pdf:      p.PDF,
		email:    p.Email,
		payments: p.Payments,
		metrics:  p.Metrics,
	}
}

func (s *Service) HandleProcessed(ctx context.Context, ev domain.Event) error {
	payout, err := s.repo.FindByCheckID(ctx, s.db, ev.ReferenceID)
	if err != nil {
		return err
	}
	if payout == nil {
		// Possibly another environment's payout; acknowledge so the gateway
		// stops retrying.
		s.log.Warn("payout event for unknown reference, ignoring",
			zap.String("reference_id", ev.ReferenceID),
			zap.String("event", ev.Name),
		)
		s.metrics.RecordPayoutEvent(ctx, "unknown_reference")
		return nil
	}

	applied, err := s.repo.MarkPaid(ctx, s.db, ev.ReferenceID, ev.GatewayPayoutID, ev.Name)
	if err != nil {
		return err
	}
	if !applied {
		if err := s.repo.RecordEvent(ctx, s.db, ev.ReferenceID, ev.Name); err != nil {
			return err
		}
		s.log.Info("processed event redelivered for settled payout",
			zap.String("payout_check_id", ev.ReferenceID),
			zap.String("status", string(payout.Status)),
		)
		s.metrics.RecordPayoutEvent(ctx, "processed_duplicate")
		return nil
	}

	s.metrics.RecordPayoutEvent(ctx, "processed")
	s.log.Info("payout paid",
		zap.String("payout_check_id", payout.PayoutCheckID),
		zap.String("gateway_payout_id", ev.GatewayPayoutID),
		zap.Int64("amount", payout.Amount),
	)

	// The transfer already happened; invoice generation and delivery never
	// roll it back.
	s.deliverInvoice(ctx, payout)
	return nil
}

func (s *Service) HandleFailed(ctx context.Context, ev domain.Event) error {
	payout, err := s.repo.FindByCheckID(ctx, s.db, ev.ReferenceID)
	if err != nil {
		return err
	}
	if payout == nil {
		s.log.Warn("payout event for unknown reference, ignoring",
			zap.String("reference_id", ev.ReferenceID),
			zap.String("event", ev.Name),
		)
		s.metrics.RecordPayoutEvent(ctx, "unknown_reference")
		return nil
	}

	applied, err := s.repo.MarkFailed(ctx, s.db, ev.ReferenceID, ev.FailureReason, ev.Name)
	if err != nil {
		return err
	}
	if !applied {
		return s.repo.RecordEvent(ctx, s.db, ev.ReferenceID, ev.Name)
	}

	s.metrics.RecordPayoutEvent(ctx, "failed")
	s.log.Warn("payout failed",
		zap.String("payout_check_id", ev.ReferenceID),
		zap.String("reason", ev.FailureReason),
	)
	return nil
}

func (s *Service) HandleReversed(ctx context.Context, ev domain.Event) error {
	payout, err := s.repo.FindByCheckID(ctx, s.db, ev.ReferenceID)
	if err != nil {
		return err
	}
	if payout == nil {
		s.log.Warn("payout event for unknown reference, ignoring",
			zap.String("reference_id", ev.ReferenceID),
			zap.String("event", ev.Name),
		)
		s.metrics.RecordPayoutEvent(ctx, "unknown_reference")
		return nil
	}

	applied, err := s.repo.MarkReversed(ctx, s.db, ev.ReferenceID, ev.Name)
	if err != nil {
		return err
	}
	if !applied {
		return s.repo.RecordEvent(ctx, s.db, ev.ReferenceID, ev.Name)
	}

	s.metrics.RecordPayoutEvent(ctx, "reversed")
	s.log.Warn("payout reversed", zap.String("payout_check_id", ev.ReferenceID))
	return nil
}

func (s *Service) GetByCheckID(ctx context.Context, checkID string) (*domain.Payout, error) {
	payout, err := s.repo.FindByCheckID(ctx, s.db, checkID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, domain.ErrPayoutNotFound
	}
	return payout, nil
}

func (s *Service) deliverInvoice(ctx context.Context, payout *domain.Payout) {
	educator, err := s.catalog.GetEducatorByID(ctx, payout.EducatorID)
	if err != nil {
		s.log.Error("invoice skipped, educator lookup failed",
			zap.String("payout_check_id", payout.PayoutCheckID),
			zap.Error(err),
		)
		s.metrics.RecordInvoiceDelivery(ctx, "failed")
		return
	}

	var items []domain.SnapshotItem
	if len(payout.Snapshot) > 0 {
		if err := json.Unmarshal(payout.Snapshot, &items); err != nil {
			s.log.Error("invoice snapshot unreadable",
				zap.String("payout_check_id", payout.PayoutCheckID),
				zap.Error(err),
			)
		}
	}
	if len(items) == 0 {
		items = []domain.SnapshotItem{{
			Description: "Educator payout " + payout.PayoutCheckID,
			Qty:         1,
			AmountMinor: payout.Amount,
		}}
	}

	now := time.Now().UTC()
	data := pdf.InvoiceData{
		PlatformName:  s.cfg.AppName,
		PlatformEmail: s.cfg.Email.SMTPFrom,
		InvoiceNumber: invoiceNumber(payout, now),
		IssueDate:     now.Format("2006-01-02"),
		PayoutRef:     payout.PayoutCheckID,
		ServicePeriod: payoutPeriod(payout),
		Narration:     payout.Narration,
		EducatorName:  educator.Name,
		EducatorEmail: educator.Email,
		Total:         formatAmount(payout.Amount, payout.Currency),
		Footer:        s.payments.Get().InvoiceFooter,
	}
	if payout.GrossAmount > 0 {
		data.Gross = formatAmount(payout.GrossAmount, payout.Currency)
		data.Commission = formatAmount(payout.CommissionAmount, payout.Currency)
	}
	for _, item := range items {
		data.Items = append(data.Items, pdf.InvoiceItem{
			Description: item.Description,
			Qty:         item.Qty,
			Amount:      formatAmount(item.AmountMinor, payout.Currency),
		})
	}

	doc, err := s.pdf.GenerateInvoice(ctx, data)
	if err != nil {
		s.log.Error("invoice generation failed",
			zap.String("payout_check_id", payout.PayoutCheckID),
			zap.Error(err),
		)
		s.metrics.RecordInvoiceDelivery(ctx, "failed")
		return
	}

	subject := fmt.Sprintf("Payout invoice %s", data.InvoiceNumber)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your payout %s of %s has been processed. The invoice is attached.</p>",
		educator.Name, payout.PayoutCheckID, data.Total,
	)
	if err := s.email.SendWithAttachment(ctx, []string{educator.Email}, subject, body, email.Attachment{
		Filename:    data.InvoiceNumber + ".pdf",
		ContentType: "application/pdf",
		Data:        doc,
	}); err != nil {
		s.log.Error("invoice delivery failed",
			zap.String("payout_check_id", payout.PayoutCheckID),
			zap.String("to", educator.Email),
			zap.Error(err),
		)
		s.metrics.RecordInvoiceDelivery(ctx, "failed")
		return
	}

	s.metrics.RecordInvoiceDelivery(ctx, "delivered")
	s.log.Info("payout invoice delivered",
		zap.String("payout_check_id", payout.PayoutCheckID),
		zap.String("invoice_number", data.InvoiceNumber),
	)
}

// invoiceNumber stamps the payout period, not the processing time; a payout
// for August settled in September is still INV-<year>-08-<check id>.
func invoiceNumber(payout *domain.Payout, now time.Time) string {
	year, month := payout.Year, payout.Month
	if year == 0 || month == 0 {
		year, month = now.Year(), int(now.Month())
	}
	return fmt.Sprintf("INV-%d-%02d-%s", year, month, payout.PayoutCheckID)
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, minor/100, minor%100)
}

func payoutPeriod(payout *domain.Payout) string {
	if payout.Year == 0 || payout.Month < 1 || payout.Month > 12 {
		return ""
	}
	return fmt.Sprintf("%s %d", time.Month(payout.Month), payout.Year)
}
