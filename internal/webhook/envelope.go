package webhook

import (
	"encoding/json"
	"errors"
)

var (
	ErrMalformedEnvelope = errors.New("malformed_envelope")

	// ErrMissingOrderID means a payment event arrived without any way to
	// resolve its intent.
	ErrMissingOrderID = errors.New("missing_order_id")

	// ErrMissingReferenceID means a payout event arrived without the
	// reference id that keys the payout ledger.
	ErrMissingReferenceID = errors.New("missing_reference_id")
)

// EventKind classifies the gateway event names this service acts on.
// Anything else decodes as KindUnknown and is recorded, never rejected, so
// new gateway event types stay forward-compatible.
type EventKind string

const (
	KindPaymentAuthorized EventKind = "payment.authorized"
	KindPaymentCaptured   EventKind = "payment.captured"
	KindPaymentFailed     EventKind = "payment.failed"
	KindOrderPaid         EventKind = "order.paid"
	KindPayoutProcessed   EventKind = "payout.processed"
	KindPayoutFailed      EventKind = "payout.failed"
	KindPayoutReversed    EventKind = "payout.reversed"
	KindUnknown           EventKind = "unknown"
)

type PaymentEntity struct {
	ID               string            `json:"id"`
	OrderID          string            `json:"order_id"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	ErrorDescription string            `json:"error_description"`
	Notes            map[string]string `json:"notes"`
}

type OrderEntity struct {
	ID     string            `json:"id"`
	Status string            `json:"status"`
	Notes  map[string]string `json:"notes"`
}

type PayoutEntity struct {
	ID            string `json:"id"`
	ReferenceID   string `json:"reference_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

type envelopeWire struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity OrderEntity `json:"entity"`
		} `json:"order"`
		Payout *struct {
			Entity PayoutEntity `json:"entity"`
		} `json:"payout"`
	} `json:"payload"`
}

// Envelope is the decoded gateway event: a kind tag plus whichever entities
// the payload carried. RawEvent keeps the gateway's original event name for
// the audit trail, including names that decode as KindUnknown.
type Envelope struct {
	Kind     EventKind
	RawEvent string

	Payment *PaymentEntity
	Order   *OrderEntity
	Payout  *PayoutEntity
}

// DecodeEnvelope interprets the exact bytes the signature was verified over.
// Callers must never hand it a re-serialized body.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var wire envelopeWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, ErrMalformedEnvelope
	}
	if wire.Event == "" {
		return nil, ErrMalformedEnvelope
	}

	env := &Envelope{RawEvent: wire.Event, Kind: KindUnknown}
	switch EventKind(wire.Event) {
	case KindPaymentAuthorized, KindPaymentCaptured, KindPaymentFailed,
		KindOrderPaid, KindPayoutProcessed, KindPayoutFailed, KindPayoutReversed:
		env.Kind = EventKind(wire.Event)
	}

	if wire.Payload.Payment != nil {
		entity := wire.Payload.Payment.Entity
		env.Payment = &entity
	}
	if wire.Payload.Order != nil {
		entity := wire.Payload.Order.Entity
		env.Order = &entity
	}
	if wire.Payload.Payout != nil {
		entity := wire.Payload.Payout.Entity
		env.Payout = &entity
	}

	// A captured payment whose entity carries a failed sub-status is a
	// failure notification in success clothing.
	if env.Kind == KindPaymentCaptured && env.Payment != nil && env.Payment.Status == "failed" {
		env.Kind = KindPaymentFailed
	}

	return env, nil
}

// OrderID returns the gateway order id from whichever entity carries it.
func (e *Envelope) OrderID() string {
	if e.Payment != nil && e.Payment.OrderID != "" {
		return e.Payment.OrderID
	}
	if e.Order != nil {
		return e.Order.ID
	}
	return ""
}

// IntentIDNote returns the intent id correlation note set at order creation.
func (e *Envelope) IntentIDNote() string {
	if e.Payment != nil {
		if id, ok := e.Payment.Notes["intent_id"]; ok {
			return id
		}
	}
	if e.Order != nil {
		if id, ok := e.Order.Notes["intent_id"]; ok {
			return id
		}
	}
	return ""
}

// IsPayout reports whether the event belongs to the payout ledger.
func (e *Envelope) IsPayout() bool {
	switch e.Kind {
	case KindPayoutProcessed, KindPayoutFailed, KindPayoutReversed:
		return true
	}
	return e.Kind == KindUnknown && e.Payout != nil && e.Payment == nil && e.Order == nil
}
