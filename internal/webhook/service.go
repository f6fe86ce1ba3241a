package webhook

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/learnsphere/tutorpay/internal/gateway"
	intentdomain "github.com/learnsphere/tutorpay/internal/intent/domain"
	obsmetrics "github.com/learnsphere/tutorpay/internal/observability/metrics"
	payoutdomain "github.com/learnsphere/tutorpay/internal/payout/domain"
	"github.com/learnsphere/tutorpay/internal/settlement"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Result is what the HTTP layer acknowledges to the gateway.
type Result struct {
	Outcome string `json:"outcome"` // processed | ignored
	Event   string `json:"event"`
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Gateway    *gateway.Client
	Settlement *settlement.Service
	Payouts    payoutdomain.Service
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// Service is the asynchronous confirmation channel. Verification always runs
// over the exact raw bytes received; decoding happens strictly afterwards on
// those same bytes.
type Service struct {
	log        *zap.Logger
	gateway    *gateway.Client
	settlement *settlement.Service
	payouts    payoutdomain.Service
	metrics    *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("webhook.service"),
		gateway:    p.Gateway,
		settlement: p.Settlement,
		payouts:    p.Payouts,
		metrics:    p.Metrics,
	}
}

// Ingest verifies, decodes and dispatches one webhook delivery. Deliveries
// are at-least-once and unordered; every dispatch path tolerates duplicates.
func (s *Service) Ingest(ctx context.Context, body []byte, signature string) (*Result, error) {
	if err := s.gateway.VerifyWebhookSignature(body, signature); err != nil {
		s.log.Warn("webhook rejected", zap.Error(err))
		return nil, err
	}

	env, err := DecodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWebhookEvent(ctx, env.RawEvent)

	if env.IsPayout() {
		return s.ingestPayout(ctx, env)
	}
	return s.ingestPayment(ctx, env)
}

func (s *Service) ingestPayout(ctx context.Context, env *Envelope) (*Result, error) {
	if env.Kind == KindUnknown {
		s.log.Info("unrecognized payout event ignored", zap.String("event", env.RawEvent))
		return &Result{Outcome: "ignored", Event: env.RawEvent}, nil
	}
	if env.Payout == nil || env.Payout.ReferenceID == "" {
		return nil, ErrMissingReferenceID
	}

	ev := payoutdomain.Event{
		Name:            env.RawEvent,
		ReferenceID:     env.Payout.ReferenceID,
		GatewayPayoutID: env.Payout.ID,
		FailureReason:   env.Payout.FailureReason,
	}

	var err error
	switch env.Kind {
	case KindPayoutProcessed:
		err = s.payouts.HandleProcessed(ctx, ev)
	case KindPayoutFailed:
		err = s.payouts.HandleFailed(ctx, ev)
	case KindPayoutReversed:
		err = s.payouts.HandleReversed(ctx, ev)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: "processed", Event: env.RawEvent}, nil
}

func (s *Service) ingestPayment(ctx context.Context, env *Envelope) (*Result, error) {
	var intentID snowflake.ID
	if note := env.IntentIDNote(); note != "" {
		if parsed, err := snowflake.ParseString(note); err == nil {
			intentID = parsed
		}
	}
	orderID := env.OrderID()
	if intentID == 0 && orderID == "" {
		return nil, ErrMissingOrderID
	}

	intent, err := s.settlement.Resolve(ctx, intentID, orderID)
	if err != nil {
		return nil, err
	}

	ev := settlement.Event{Name: env.RawEvent}
	if env.Payment != nil {
		ev.GatewayPaymentID = env.Payment.ID
		ev.ErrorReason = env.Payment.ErrorDescription
	}

	switch env.Kind {
	case KindPaymentAuthorized:
		if err := s.settlement.ApplyAuthorized(ctx, intent, ev); err != nil {
			return nil, err
		}
		return &Result{Outcome: "processed", Event: env.RawEvent}, nil

	case KindPaymentCaptured, KindOrderPaid:
		_, err := s.settlement.Settle(ctx, intent, ev)
		switch {
		case err == nil:
			return &Result{Outcome: "processed", Event: env.RawEvent}, nil
		case errors.Is(err, intentdomain.ErrIntentExpired),
			errors.Is(err, intentdomain.ErrTransitionConflict):
			// Late or already-terminal. Acknowledge; the gateway must stop
			// retrying a delivery this service will never apply.
			return &Result{Outcome: "ignored", Event: env.RawEvent}, nil
		default:
			return nil, err
		}

	case KindPaymentFailed:
		if err := s.settlement.ApplyFailed(ctx, intent, ev); err != nil {
			return nil, err
		}
		return &Result{Outcome: "processed", Event: env.RawEvent}, nil

	default:
		if err := s.settlement.RecordUnknown(ctx, intent, env.RawEvent); err != nil {
			return nil, err
		}
		s.log.Info("unrecognized event recorded",
			zap.String("event", env.RawEvent),
			zap.String("intent_id", intent.ID.String()),
		)
		return &Result{Outcome: "ignored", Event: env.RawEvent}, nil
	}
}
