package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
	"github.com/learnsphere/tutorpay/internal/gateway"
	intentdomain "github.com/learnsphere/tutorpay/internal/intent/domain"
	obsmetrics "github.com/learnsphere/tutorpay/internal/observability/metrics"
	"github.com/learnsphere/tutorpay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventDirectVerify names the synchronous confirmation path in the intent's
// event audit trail; all other event names come from the gateway verbatim.
const EventDirectVerify = "direct.verify"

// Event is one confirmation signal, from either delivery channel.
type Event struct {
	Name             string
	GatewayPaymentID string
	GatewaySignature string
	ErrorReason      string
}

// VerifyRequest carries the client-supplied identifiers of the synchronous
// confirmation path. IntentID is optional; resolution falls back to OrderID.
type VerifyRequest struct {
	IntentID  snowflake.ID
	OrderID   string
	PaymentID string
	Signature string
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    intentdomain.Repository
	Catalog catalogdomain.Service
	Gateway *gateway.Client
	Limiter *ratelimit.PaymentLimiter `optional:"true"`
	Metrics *obsmetrics.Metrics       `optional:"true"`
}

// Service reconciles confirmation events into terminal intent states. Both
// delivery channels (direct verification and webhooks) funnel into Settle,
// whose storage-level conditional update is the only success transition in
// the system.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    intentdomain.Repository
	catalog catalogdomain.Service
	gateway *gateway.Client
	limiter *ratelimit.PaymentLimiter
	metrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("settlement.service"),
		repo:    p.Repo,
		catalog: p.Catalog,
		gateway: p.Gateway,
		limiter: p.Limiter,
		metrics: p.Metrics,
	}
}

// Resolve finds the targeted intent by id when given, else by gateway order
// id. Unresolved intents are ErrIntentNotFound; callers map that to a 404
// because the record may belong to another environment.
func (s *Service) Resolve(ctx context.Context, intentID snowflake.ID, orderID string) (*intentdomain.PaymentIntent, error) {
	if intentID != 0 {
		intent, err := s.repo.FindByID(ctx, s.db, intentID)
		if err != nil {
			return nil, err
		}
		if intent != nil {
			return intent, nil
		}
	}
	if orderID != "" {
		intent, err := s.repo.FindByGatewayOrderID(ctx, s.db, orderID)
		if err != nil {
			return nil, err
		}
		if intent != nil {
			return intent, nil
		}
	}
	return nil, intentdomain.ErrIntentNotFound
}

// Settle drives the intent to succeeded and enrolls the student exactly once.
// The transition is a single conditional update; when this caller loses the
// race to another already-succeeded settlement the call degrades to an
// idempotent no-op that still reasserts enrollment, so a crash between the
// earlier status write and its enrollment is healed on redelivery.
func (s *Service) Settle(ctx context.Context, intent *intentdomain.PaymentIntent, ev Event) (*intentdomain.PaymentIntent, error) {
	if intent.Status == intentdomain.StatusSucceeded {
		if err := s.enroll(ctx, intent); err != nil {
			return nil, err
		}
		s.metrics.RecordSettlement(ctx, "duplicate")
		return intent, nil
	}

	// Advisory per-intent lease. The conditional update below is what makes
	// settlement safe; losing the lease only means both callers hit it.
	if token, ok, err := s.limiter.TryLockSettle(ctx, intent.ID.String()); err == nil && ok {
		defer func() { _ = s.limiter.ReleaseSettle(ctx, intent.ID.String(), token) }()
	}

	now := time.Now().UTC()
	applied, err := s.repo.SettleSucceeded(ctx, s.db, intent.ID, ev.GatewayPaymentID, ev.GatewaySignature, ev.Name, now)
	if err != nil {
		return nil, err
	}

	fresh, err := s.repo.FindByID(ctx, s.db, intent.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, intentdomain.ErrIntentNotFound
	}

	if !applied {
		switch {
		case fresh.Status == intentdomain.StatusSucceeded:
			// Another caller won; enrollment is idempotent, reassert it.
			if err := s.enroll(ctx, fresh); err != nil {
				return nil, err
			}
			s.metrics.RecordSettlement(ctx, "duplicate")
			return fresh, nil
		case fresh.Settleable() && fresh.Expired(now):
			s.metrics.RecordSettlement(ctx, "expired")
			s.log.Warn("late confirmation for expired intent",
				zap.String("intent_id", fresh.ID.String()),
				zap.String("event", ev.Name),
			)
			return nil, intentdomain.ErrIntentExpired
		default:
			s.metrics.RecordSettlement(ctx, "conflict")
			return nil, intentdomain.ErrTransitionConflict
		}
	}

	if err := s.enroll(ctx, fresh); err != nil {
		// Status is already succeeded; redelivery of any confirmation event
		// retries this idempotent enrollment.
		s.log.Error("enrollment failed after settlement, awaiting redelivery",
			zap.String("intent_id", fresh.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordSettlement(ctx, "succeeded")
	s.log.Info("intent settled",
		zap.String("intent_id", fresh.ID.String()),
		zap.String("event", ev.Name),
		zap.String("gateway_payment_id", ev.GatewayPaymentID),
		zap.Int64("amount", fresh.Amount),
	)
	return fresh, nil
}

// VerifyPayment is the synchronous confirmation path. The client forwards the
// gateway-issued order id, payment id and signature right after checkout.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyRequest) (*intentdomain.PaymentIntent, error) {
	if strings.TrimSpace(req.OrderID) == "" ||
		strings.TrimSpace(req.PaymentID) == "" ||
		strings.TrimSpace(req.Signature) == "" {
		return nil, intentdomain.ErrMissingFields
	}

	intent, err := s.Resolve(ctx, req.IntentID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if intent.GatewayOrderID != "" && intent.GatewayOrderID != req.OrderID {
		return nil, intentdomain.ErrOrderMismatch
	}

	if err := s.gateway.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature); err != nil {
		s.log.Warn("direct verification rejected",
			zap.String("intent_id", intent.ID.String()),
			zap.String("gateway_order_id", req.OrderID),
		)
		return nil, err
	}

	return s.Settle(ctx, intent, Event{
		Name:             EventDirectVerify,
		GatewayPaymentID: req.PaymentID,
		GatewaySignature: req.Signature,
	})
}

// ApplyAuthorized records the gateway payment id on a pending intent. The
// transition has no side effect; a duplicate or out-of-order authorized event
// only refreshes the audit trail.
func (s *Service) ApplyAuthorized(ctx context.Context, intent *intentdomain.PaymentIntent, ev Event) error {
	applied, err := s.repo.MarkAuthorized(ctx, s.db, intent.ID, ev.GatewayPaymentID, ev.Name)
	if err != nil {
		return err
	}
	if !applied {
		return s.repo.RecordEvent(ctx, s.db, intent.ID, ev.Name)
	}
	s.metrics.RecordSettlement(ctx, "authorized")
	s.log.Info("intent authorized",
		zap.String("intent_id", intent.ID.String()),
		zap.String("gateway_payment_id", ev.GatewayPaymentID),
	)
	return nil
}

// ApplyFailed records a gateway-reported failure with its reason. Intents
// that already reached a terminal state keep it; only the event is noted.
func (s *Service) ApplyFailed(ctx context.Context, intent *intentdomain.PaymentIntent, ev Event) error {
	applied, err := s.repo.MarkFailed(ctx, s.db, intent.ID, ev.ErrorReason, ev.Name)
	if err != nil {
		return err
	}
	if !applied {
		return s.repo.RecordEvent(ctx, s.db, intent.ID, ev.Name)
	}
	s.metrics.RecordSettlement(ctx, "failed")
	s.log.Info("intent failed",
		zap.String("intent_id", intent.ID.String()),
		zap.String("event", ev.Name),
		zap.String("reason", ev.ErrorReason),
	)
	return nil
}

// RecordUnknown keeps the audit trail current for gateway event types this
// service does not act on.
func (s *Service) RecordUnknown(ctx context.Context, intent *intentdomain.PaymentIntent, eventName string) error {
	return s.repo.RecordEvent(ctx, s.db, intent.ID, eventName)
}

// enroll grants access using the purchase-time snapshot, never the current
// catalog row. Idempotent per (product type, product, student).
func (s *Service) enroll(ctx context.Context, intent *intentdomain.PaymentIntent) error {
	return s.catalog.EnrollStudent(ctx, intent.ProductType, intent.ProductID, intent.StudentID, intent.ProductSnapshot)
}
