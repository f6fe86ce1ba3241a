package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
	catalogrepo "github.com/learnsphere/tutorpay/internal/catalog/repository"
	catalogservice "github.com/learnsphere/tutorpay/internal/catalog/service"
	"github.com/learnsphere/tutorpay/internal/config"
	"github.com/learnsphere/tutorpay/internal/gateway"
	intentdomain "github.com/learnsphere/tutorpay/internal/intent/domain"
	intentrepo "github.com/learnsphere/tutorpay/internal/intent/repository"
	payoutdomain "github.com/learnsphere/tutorpay/internal/payout/domain"
	payoutrepo "github.com/learnsphere/tutorpay/internal/payout/repository"
	payoutservice "github.com/learnsphere/tutorpay/internal/payout/service"
	"github.com/learnsphere/tutorpay/internal/providers/email"
	"github.com/learnsphere/tutorpay/internal/providers/pdf"
	"github.com/learnsphere/tutorpay/internal/settlement"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

type testEnv struct {
	db         *gorm.DB
	node       *snowflake.Node
	svc        *Service
	intentRepo intentdomain.Repository
	payoutRepo payoutdomain.Repository
	student    catalogdomain.Student
	educator   catalogdomain.Educator
	product    catalogdomain.Product
}

func newTestEnv(t *testing.T, webhookSecret string) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&catalogdomain.Student{},
		&catalogdomain.Educator{},
		&catalogdomain.Product{},
		&catalogdomain.Enrollment{},
		&intentdomain.PaymentIntent{},
		&payoutdomain.Payout{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	student := catalogdomain.Student{ID: node.Generate(), Name: "Asha", Email: "asha@example.test", Active: true}
	educator := catalogdomain.Educator{ID: node.Generate(), Name: "Ravi", Email: "ravi@example.test", Active: true}
	product := catalogdomain.Product{
		ID:       node.Generate(),
		Type:     catalogdomain.ProductTypeCourse,
		Title:    "Algebra Foundations",
		Slug:     "algebra-foundations",
		Price:    15000,
		Currency: "INR",
		Active:   true,
	}
	for _, row := range []any{&student, &educator, &product} {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	log := zap.NewNop()
	catalog := catalogservice.NewService(catalogservice.Params{
		DB: db, Log: log, GenID: node, Repo: catalogrepo.Provide(),
	})
	gwClient := gateway.NewClient(config.GatewayConfig{
		BaseURL:       "http://gateway.invalid",
		KeyID:         "key_test",
		KeySecret:     "secret_test",
		WebhookSecret: webhookSecret,
	}, log)

	intentRepo := intentrepo.Provide()
	settleSvc := settlement.NewService(settlement.Params{
		DB: db, Log: log, Repo: intentRepo, Catalog: catalog, Gateway: gwClient,
	})

	payoutRepo := payoutrepo.Provide()
	payoutSvc := payoutservice.NewService(payoutservice.Params{
		Cfg:      config.Config{AppName: "tutorpay"},
		DB:       db,
		Log:      log,
		Repo:     payoutRepo,
		Catalog:  catalog,
		PDF:      &pdf.NoOpProvider{},
		Email:    &email.NoOpProvider{},
		Payments: config.NewStaticPaymentsConfigHolder(config.DefaultPaymentsConfig()),
	})

	svc := NewService(Params{
		Log:        log,
		Gateway:    gwClient,
		Settlement: settleSvc,
		Payouts:    payoutSvc,
	})

	return &testEnv{
		db:         db,
		node:       node,
		svc:        svc,
		intentRepo: intentRepo,
		payoutRepo: payoutRepo,
		student:    student,
		educator:   educator,
		product:    product,
	}
}

func (e *testEnv) newIntent(t *testing.T, orderID string) *intentdomain.PaymentIntent {
	t.Helper()

	snap, _ := json.Marshal(catalogdomain.Snapshot{
		ProductID:   e.product.ID,
		ProductType: e.product.Type,
		Title:       e.product.Title,
		AmountMinor: 15000,
		Currency:    "INR",
	})
	now := time.Now().UTC()
	intent := &intentdomain.PaymentIntent{
		ID:              e.node.Generate(),
		StudentID:       e.student.ID,
		ProductID:       e.product.ID,
		ProductType:     e.product.Type,
		Amount:          15000,
		Currency:        "INR",
		Status:          intentdomain.StatusPending,
		GatewayOrderID:  orderID,
		Receipt:         "rcpt_test",
		ProductSnapshot: datatypes.JSON(snap),
		ExpiresAt:       now.Add(20 * time.Minute),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.intentRepo.Insert(context.Background(), e.db, intent); err != nil {
		t.Fatalf("insert intent: %v", err)
	}
	return intent
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func capturedBody(orderID, paymentID, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"status":%q,"amount":15000,"currency":"INR"}}}}`,
		paymentID, orderID, status,
	))
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("captured", func(t *testing.T) {
		env, err := DecodeEnvelope(capturedBody("order_1", "pay_1", "captured"))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Kind != KindPaymentCaptured {
			t.Fatalf("kind = %s", env.Kind)
		}
		if env.OrderID() != "order_1" {
			t.Fatalf("order id = %q", env.OrderID())
		}
	})

	t.Run("captured with failed sub-status", func(t *testing.T) {
		env, err := DecodeEnvelope(capturedBody("order_1", "pay_1", "failed"))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Kind != KindPaymentFailed {
			t.Fatalf("kind = %s, a failed entity must downgrade the event", env.Kind)
		}
	})

	t.Run("unknown event keeps raw name", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"event":"payment.disputed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1"}}}}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Kind != KindUnknown || env.RawEvent != "payment.disputed" {
			t.Fatalf("kind = %s raw = %q", env.Kind, env.RawEvent)
		}
	})

	t.Run("intent id note", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","notes":{"intent_id":"42"}}}}}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.IntentIDNote() != "42" {
			t.Fatalf("intent note = %q", env.IntentIDNote())
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, body := range []string{`{`, `{}`, `[]`, ``} {
			if _, err := DecodeEnvelope([]byte(body)); !errors.Is(err, ErrMalformedEnvelope) {
				t.Fatalf("body %q: err = %v, want ErrMalformedEnvelope", body, err)
			}
		}
	})
}

func TestIngestRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t, testWebhookSecret)
	intent := env.newIntent(t, "order_sig")
	body := capturedBody("order_sig", "pay_1", "captured")

	_, err := env.svc.Ingest(context.Background(), body, "deadbeef")
	if !errors.Is(err, gateway.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}

	stored, _ := env.intentRepo.FindByID(context.Background(), env.db, intent.ID)
	if stored.Status != intentdomain.StatusPending {
		t.Fatalf("rejected webhook mutated status to %s", stored.Status)
	}
}

func TestIngestFailsClosedWithoutSecret(t *testing.T) {
	env := newTestEnv(t, "")
	body := capturedBody("order_x", "pay_1", "captured")

	_, err := env.svc.Ingest(context.Background(), body, sign(body))
	if !errors.Is(err, gateway.ErrWebhookSecretMissing) {
		t.Fatalf("err = %v, want ErrWebhookSecretMissing", err)
	}
}

func TestIngestCapturedSettlesAndToleratesRedelivery(t *testing.T) {
	env := newTestEnv(t, testWebhookSecret)
	intent := env.newIntent(t, "order_cap")
	body := capturedBody("order_cap", "pay_cap", "captured")
	ctx := context.Background()

	res, err := env.svc.Ingest(ctx, body, sign(body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome != "processed" {
		t.Fatalf("outcome = %q", res.Outcome)
	}

	stored, _ := env.intentRepo.FindByID(ctx, env.db, intent.ID)
	if stored.Status != intentdomain.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", stored.Status)
	}
	if stored.GatewayPaymentID != "pay_cap" {
		t.Fatalf("gateway payment id = %q", stored.GatewayPaymentID)
	}

	// At-least-once delivery: the same body lands twice more.
	for i := 0; i < 2; i++ {
		if _, err := env.svc.Ingest(ctx, body, sign(body)); err != nil {
			t.Fatalf("redelivery %d: %v", i, err)
		}
	}

	var enrollments int64
	if err := env.db.Model(&catalogdomain.Enrollment{}).Count(&enrollments).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if enrollments != 1 {
		t.Fatalf("enrollments = %d, want exactly 1", enrollments)
	}
}

func TestIngestAuthorizedHasNoSideEffect(t *testing.T) {
	env := newTestEnv(t, testWebhookSecret)
	intent := env.newIntent(t, "order_auth")
	body := []byte(`{"event":"payment.authorized","payload":{"payment":{"entity":{"id":"pay_auth","order_id":"order_auth","status":"authorized"}}}}`)
	ctx := context.Background()

	if _, err := env.svc.Ingest(ctx, body, sign(body)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	stored, _ := env.intentRepo.FindByID(ctx, env.db, intent.ID)
	if stored.Status != intentdomain.StatusAuthorized {
		t.Fatalf("status = %s, want authorized", stored.Status)
	}

	var enrollments int64
	_ = env.db.Model(&catalogdomain.Enrollment{}).Count(&enrollments).Error
	if enrollments != 0 {
		t.Fatalf("authorized must not enroll, got %d", enrollments)
	}
}

func TestIngestFailedRecordsReason(t *testing.T) {
	env := newTestEnv(t, testWebhookSecret)
	intent := env.newIntent(t, "order_fail")
	body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_f","order_id":"order_fail","status":"failed","error_description":"card_declined"}}}}`)
	ctx := context.Background()

	if _, err := env.svc.Ingest(ctx, body, sign(body)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	stored, _ := env.intentRepo.FindByID(ctx, env.db, intent.ID)
	if stored.Status != intentdomain.StatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if stored.ErrorReason != "card_declined" {
		t.Fatalf("error reason = %q", stored.ErrorReason)
	}
}

func TestIngestResolutionErrors(t *testing.T) {
	env := newTestEnv(t, testWebhookSecret)
	ctx := context.Background()

	t.Run("missing order id", func(t *testing.T) {
		body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","status":"captured"}}}}`)
		_, err := env.svc.Ingest(ctx, body, sign(body))
		if !errors.Is(err, ErrMissingOrderID) {
			t.Fatalf("err = %v, want ErrMissingOrderID", err)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		body := capturedBody("order_elsewhere", "pay_1", "captured")
		_, err := env.svc.Ingest(ctx, body, sign(body))
		if !errors.Is(err, intentdomain.ErrIntentNotFound) {
			t.Fatalf("err = %v, want ErrIntentNotFound", err)
		}
	})
}

func TestIngestUnknownEventOnKnownIntent(t *testing.T) {
	env := newTestEnv(t, testWebhookSecret)
	intent := env.newIntent(t, "order_unk")
	body := []byte(`{"event":"payment.disputed","payload":{"payment":{"entity":{"id":"pay_d","order_id":"order_unk"}}}}`)
	ctx := context.Background()

	res, err := env.svc.Ingest(ctx, body, sign(body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome != "ignored" {
		t.Fatalf("outcome = %q, want ignored", res.Outcome)
	}

	stored, _ := env.intentRepo.FindByID(ctx, env.db, intent.ID)
	if stored.Status != intentdomain.StatusPending {
		t.Fatalf("status = %s, unknown events must not transition", stored.Status)
	}
	if stored.LastEvent != "payment.disputed" {
		t.Fatalf("last event = %q", stored.LastEvent)
	}
}

func TestIngestPayoutProcessed(t *testing.T) {
	env := newTestEnv(t, testWebhookSecret)
	ctx := context.Background()

	payout := &payoutdomain.Payout{
		ID:            env.node.Generate(),
		EducatorID:    env.educator.ID,
		PayoutCheckID: "chk_wh_1",
		Amount:        250000,
		Currency:      "INR",
		Status:        payoutdomain.StatusProcessing,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := env.payoutRepo.Insert(ctx, env.db, payout); err != nil {
		t.Fatalf("insert payout: %v", err)
	}

	body := []byte(`{"event":"payout.processed","payload":{"payout":{"entity":{"id":"pout_1","reference_id":"chk_wh_1","status":"processed"}}}}`)
	res, err := env.svc.Ingest(ctx, body, sign(body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome != "processed" {
		t.Fatalf("outcome = %q", res.Outcome)
	}

	stored, _ := env.payoutRepo.FindByCheckID(ctx, env.db, "chk_wh_1")
	if stored.Status != payoutdomain.StatusPaid {
		t.Fatalf("status = %s, want paid", stored.Status)
	}
	if stored.GatewayPayoutID != "pout_1" {
		t.Fatalf("gateway payout id = %q", stored.GatewayPayoutID)
	}
}

func TestIngestPayoutMissingReference(t *testing.T) {
	env := newTestEnv(t, testWebhookSecret)
	body := []byte(`{"event":"payout.processed","payload":{"payout":{"entity":{"id":"pout_1","status":"processed"}}}}`)

	_, err := env.svc.Ingest(context.Background(), body, sign(body))
	if !errors.Is(err, ErrMissingReferenceID) {
		t.Fatalf("err = %v, want ErrMissingReferenceID", err)
	}
}
