package service

import (
	"context"
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
	"github.com/learnsphere/tutorpay/internal/payout/domain"
	"github.com/learnsphere/tutorpay/internal/payout/repository"
	"github.com/learnsphere/tutorpay/internal/providers/email"
	"github.com/learnsphere/tutorpay/internal/providers/pdf"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type recordingPDF struct {
	generated []pdf.InvoiceData
	fail      bool
}

func (r *recordingPDF) GenerateInvoice(ctx context.Context, data pdf.InvoiceData) ([]byte, error) {
	if r.fail {
		return nil, errors.New("render broke")
	}
	r.generated = append(r.generated, data)
	return []byte("%PDF-1.4 stub"), nil
}

type recordingEmail struct {
	sent []email.Attachment
	to   []string
}

func (r *recordingEmail) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	return nil
}

func (r *recordingEmail) SendWithAttachment(ctx context.Context, to []string, subject, htmlBody string, att email.Attachment) error {
	r.sent = append(r.sent, att)
	r.to = append(r.to, to...)
	return nil
}

type testEnv struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      domain.Service
	repo     domain.Repository
	pdf      *recordingPDF
	email    *recordingEmail
	educator catalogdomain.Educator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&catalogdomain.Educator{},
		&domain.Payout{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	educator := catalogdomain.Educator{ID: node.Generate(), Name: "Ravi", Email: "ravi@example.test", Active: true}
	if err := db.Create(&educator).Error; err != nil {
		t.Fatalf("seed educator: %v", err)
	}

	log := zap.NewNop()
	catalog := catalogservice.NewService(catalogservice.Params{
		DB: db, Log: log, GenID: node, Repo: catalogrepo.Provide(),
	})

	pdfRec := &recordingPDF{}
	emailRec := &recordingEmail{}
	repo := repository.Provide()
	svc := NewService(Params{
		Cfg:      config.Config{AppName: "tutorpay", Email: config.EmailConfig{SMTPFrom: "billing@tutorpay.test"}},
		DB:       db,
		Log:      log,
		Repo:     repo,
		Catalog:  catalog,
		PDF:      pdfRec,
		Email:    emailRec,
		Payments: config.NewStaticPaymentsConfigHolder(config.DefaultPaymentsConfig()),
	})

	return &testEnv{db: db, node: node, svc: svc, repo: repo, pdf: pdfRec, email: emailRec, educator: educator}
}

func (e *testEnv) newPayout(t *testing.T, status domain.Status) *domain.Payout {
	t.Helper()

	snap, _ := json.Marshal([]domain.SnapshotItem{
		{Description: "Course revenue share, August", Qty: 1, AmountMinor: 250000},
	})
	now := time.Now().UTC()
	period := now.AddDate(0, -1, 0)
	payout := &domain.Payout{
		ID:               e.node.Generate(),
		EducatorID:       e.educator.ID,
		PayoutCheckID:    "chk_" + e.node.Generate().String(),
		GrossAmount:      300000,
		CommissionAmount: 50000,
		Amount:           250000,
		Currency:         "INR",
		Status:           status,
		Snapshot:         datatypes.JSON(snap),
		ScheduledDate:    now,
		Month:            int(period.Month()),
		Year:             period.Year(),
		Narration:        "Monthly educator payout",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.repo.Insert(context.Background(), e.db, payout); err != nil {
		t.Fatalf("insert payout: %v", err)
	}
	return payout
}

func TestHandleProcessedDeliversInvoiceOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payout := env.newPayout(t, domain.StatusProcessing)

	ev := domain.Event{
		Name:            "payout.processed",
		ReferenceID:     payout.PayoutCheckID,
		GatewayPayoutID: "pout_1",
	}
	if err := env.svc.HandleProcessed(ctx, ev); err != nil {
		t.Fatalf("handle processed: %v", err)
	}

	stored, err := env.svc.GetByCheckID(ctx, payout.PayoutCheckID)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	if stored.Status != domain.StatusPaid {
		t.Fatalf("status = %s, want paid", stored.Status)
	}
	if stored.GatewayPayoutID != "pout_1" {
		t.Fatalf("gateway payout id = %q", stored.GatewayPayoutID)
	}
	if len(env.email.sent) != 1 {
		t.Fatalf("invoices delivered = %d, want 1", len(env.email.sent))
	}
	if env.email.to[0] != env.educator.Email {
		t.Fatalf("invoice sent to %q", env.email.to[0])
	}

	// Gateway retries are acknowledged without a second invoice.
	for i := 0; i < 3; i++ {
		if err := env.svc.HandleProcessed(ctx, ev); err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
	}
	if len(env.email.sent) != 1 {
		t.Fatalf("invoices after retries = %d, want 1", len(env.email.sent))
	}

	// The invoice is stamped with the payout period, not the month the
	// processed event happened to arrive in.
	inv := env.pdf.generated[0]
	wantNumber := fmt.Sprintf("INV-%d-%02d-%s", payout.Year, payout.Month, payout.PayoutCheckID)
	if inv.InvoiceNumber != wantNumber {
		t.Fatalf("invoice number = %q, want %q", inv.InvoiceNumber, wantNumber)
	}
	wantPeriod := fmt.Sprintf("%s %d", time.Month(payout.Month), payout.Year)
	if inv.ServicePeriod != wantPeriod {
		t.Fatalf("service period = %q, want %q", inv.ServicePeriod, wantPeriod)
	}
	if inv.Gross != "INR 3000.00" || inv.Commission != "INR 500.00" {
		t.Fatalf("gross/commission = %q/%q", inv.Gross, inv.Commission)
	}
	if inv.Total != "INR 2500.00" {
		t.Fatalf("invoice total = %q", inv.Total)
	}
	if inv.Narration != payout.Narration {
		t.Fatalf("narration = %q", inv.Narration)
	}
}

func TestHandleProcessedInvoiceFailureIsLoggedOnly(t *testing.T) {
	env := newTestEnv(t)
	env.pdf.fail = true
	ctx := context.Background()
	payout := env.newPayout(t, domain.StatusPending)

	err := env.svc.HandleProcessed(ctx, domain.Event{
		Name:            "payout.processed",
		ReferenceID:     payout.PayoutCheckID,
		GatewayPayoutID: "pout_2",
	})
	if err != nil {
		t.Fatalf("invoice failure must not fail the event: %v", err)
	}

	stored, _ := env.svc.GetByCheckID(ctx, payout.PayoutCheckID)
	if stored.Status != domain.StatusPaid {
		t.Fatalf("status = %s, the transfer is irreversible and must stay paid", stored.Status)
	}
	if len(env.email.sent) != 0 {
		t.Fatalf("no invoice should have been delivered")
	}
}

func TestHandleProcessedUnknownReferenceIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.HandleProcessed(context.Background(), domain.Event{
		Name:        "payout.processed",
		ReferenceID: "chk_from_other_env",
	})
	if err != nil {
		t.Fatalf("unknown reference must be acknowledged, got %v", err)
	}
	if len(env.email.sent) != 0 {
		t.Fatalf("no invoice expected")
	}
}

func TestHandleFailedRecordsReason(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payout := env.newPayout(t, domain.StatusProcessing)

	if err := env.svc.HandleFailed(ctx, domain.Event{
		Name:          "payout.failed",
		ReferenceID:   payout.PayoutCheckID,
		FailureReason: "beneficiary_account_closed",
	}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	stored, _ := env.svc.GetByCheckID(ctx, payout.PayoutCheckID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if stored.FailureReason != "beneficiary_account_closed" {
		t.Fatalf("failure reason = %q", stored.FailureReason)
	}

	// A late failed event cannot regress a paid payout.
	paid := env.newPayout(t, domain.StatusPaid)
	if err := env.svc.HandleFailed(ctx, domain.Event{
		Name: "payout.failed", ReferenceID: paid.PayoutCheckID, FailureReason: "late",
	}); err != nil {
		t.Fatalf("late failed event: %v", err)
	}
	stored, _ = env.svc.GetByCheckID(ctx, paid.PayoutCheckID)
	if stored.Status != domain.StatusPaid {
		t.Fatalf("status regressed to %s", stored.Status)
	}
	if stored.LastEvent != "payout.failed" {
		t.Fatalf("last event = %q, want audit trail updated", stored.LastEvent)
	}
}

func TestHandleReversed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payout := env.newPayout(t, domain.StatusPaid)

	if err := env.svc.HandleReversed(ctx, domain.Event{
		Name:        "payout.reversed",
		ReferenceID: payout.PayoutCheckID,
	}); err != nil {
		t.Fatalf("handle reversed: %v", err)
	}

	stored, _ := env.svc.GetByCheckID(ctx, payout.PayoutCheckID)
	if stored.Status != domain.StatusReversed {
		t.Fatalf("status = %s, want reversed", stored.Status)
	}
}

func TestInsertIsIdempotentOnCheckID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payout := env.newPayout(t, domain.StatusPending)

	// A retried scheduling run lands on the unique check id and is a no-op.
	dup := *payout
	dup.ID = env.node.Generate()
	if err := env.repo.Insert(ctx, env.db, &dup); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}

	var count int64
	if err := env.db.Raw(
		`SELECT COUNT(*) FROM payouts WHERE payout_check_id = ?`, payout.PayoutCheckID,
	).Scan(&count).Error; err != nil {
		t.Fatalf("count payouts: %v", err)
	}
	if count != 1 {
		t.Fatalf("payout rows = %d, want 1", count)
	}
}

func TestGetByCheckIDUnknown(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.GetByCheckID(context.Background(), "chk_missing")
	if !errors.Is(err, domain.ErrPayoutNotFound) {
		t.Fatalf("err = %v, want ErrPayoutNotFound", err)
	}
}
