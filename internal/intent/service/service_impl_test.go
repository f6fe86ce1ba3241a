package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
	catalogrepo "github.com/learnsphere/tutorpay/internal/catalog/repository"
	catalogservice "github.com/learnsphere/tutorpay/internal/catalog/service"
	"github.com/learnsphere/tutorpay/internal/config"
	"github.com/learnsphere/tutorpay/internal/gateway"
	"github.com/learnsphere/tutorpay/internal/intent/domain"
	"github.com/learnsphere/tutorpay/internal/intent/repository"
	"github.com/learnsphere/tutorpay/internal/settlement"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	svc     domain.Service
	repo    domain.Repository
	catalog catalogdomain.Service
	gw      *gateway.Client
	student catalogdomain.Student
	product catalogdomain.Product
}

func newTestEnv(t *testing.T, gatewayURL string) *testEnv {
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
		&domain.PaymentIntent{},
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
		ID:         node.Generate(),
		Type:       catalogdomain.ProductTypeCourse,
		EducatorID: educator.ID,
		Title:      "Algebra Foundations",
		Slug:       "algebra-foundations",
		Price:      15000,
		Currency:   "INR",
		Active:     true,
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

	repo := repository.Provide()
	gw := gateway.NewClient(config.GatewayConfig{
		BaseURL:   gatewayURL,
		KeyID:     "key_test",
		KeySecret: "secret_test",
	}, log)
	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     repo,
		Catalog:  catalog,
		Gateway:  gw,
		Payments: config.NewStaticPaymentsConfigHolder(config.DefaultPaymentsConfig()),
	})

	return &testEnv{db: db, svc: svc, repo: repo, catalog: catalog, gw: gw, student: student, product: product}
}

func newFakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gateway.OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode order request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(gateway.Order{
			ID:       "order_test_1",
			Amount:   req.Amount,
			Currency: req.Currency,
			Receipt:  req.Receipt,
			Status:   "created",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateOrderPricesFromCatalog(t *testing.T) {
	srv := newFakeGateway(t)
	env := newTestEnv(t, srv.URL)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, domain.CreateOrderRequest{
		StudentID:   env.student.ID,
		ProductType: "course",
		ProductID:   env.product.ID,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if resp.Amount != 15000 {
		t.Fatalf("amount = %d, want the catalog price 15000", resp.Amount)
	}
	if resp.GatewayOrderID != "order_test_1" {
		t.Fatalf("gateway order id = %q", resp.GatewayOrderID)
	}
	if resp.GatewayKey != "key_test" {
		t.Fatalf("gateway key = %q", resp.GatewayKey)
	}

	stored, err := env.repo.FindByID(ctx, env.db, resp.IntentID)
	if err != nil {
		t.Fatalf("find intent: %v", err)
	}
	if stored == nil {
		t.Fatal("intent not persisted")
	}
	if stored.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", stored.Status)
	}
	if stored.Amount != 15000 {
		t.Fatalf("stored amount = %d", stored.Amount)
	}
	if stored.GatewayOrderID != "order_test_1" {
		t.Fatalf("stored gateway order id = %q", stored.GatewayOrderID)
	}

	var snap catalogdomain.Snapshot
	if err := json.Unmarshal(stored.ProductSnapshot, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.AmountMinor != 15000 || snap.Title != "Algebra Foundations" {
		t.Fatalf("snapshot %+v does not capture purchase-time terms", snap)
	}

	window := stored.ExpiresAt.Sub(stored.CreatedAt)
	if window < 19*time.Minute || window > 21*time.Minute {
		t.Fatalf("expiry window = %s, want about 20m", window)
	}
}

func TestCreateOrderEligibility(t *testing.T) {
	srv := newFakeGateway(t)
	env := newTestEnv(t, srv.URL)
	ctx := context.Background()
	node, _ := snowflake.NewNode(2)

	inactiveStudent := catalogdomain.Student{ID: node.Generate(), Name: "Gone", Email: "gone@example.test", Active: false}
	inactiveProduct := catalogdomain.Product{
		ID: node.Generate(), Type: catalogdomain.ProductTypeWebinar,
		Title: "Old Webinar", Slug: "old-webinar", Price: 5000, Currency: "INR", Active: false,
	}
	fullProduct := catalogdomain.Product{
		ID: node.Generate(), Type: catalogdomain.ProductTypeLiveClass,
		Title: "Full Class", Slug: "full-class", Price: 9900, Currency: "INR", Capacity: 1, Active: true,
	}
	seatTaker := catalogdomain.Student{ID: node.Generate(), Name: "Early", Email: "early@example.test", Active: true}
	for _, row := range []any{&inactiveStudent, &inactiveProduct, &fullProduct, &seatTaker} {
		if err := env.db.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := env.db.Create(&catalogdomain.Enrollment{
		ID:          node.Generate(),
		ProductType: fullProduct.Type,
		ProductID:   fullProduct.ID,
		StudentID:   seatTaker.ID,
		EnrolledAt:  time.Now().UTC(),
	}).Error; err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}
	if err := env.db.Create(&catalogdomain.Enrollment{
		ID:          node.Generate(),
		ProductType: env.product.Type,
		ProductID:   env.product.ID,
		StudentID:   env.student.ID,
		EnrolledAt:  time.Now().UTC(),
	}).Error; err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}

	cases := []struct {
		name string
		req  domain.CreateOrderRequest
		want error
	}{
		{"missing ids", domain.CreateOrderRequest{ProductType: "course"}, domain.ErrMissingFields},
		{"unknown product type", domain.CreateOrderRequest{StudentID: env.student.ID, ProductType: "bootcamp", ProductID: env.product.ID}, domain.ErrInvalidProductType},
		{"unknown student", domain.CreateOrderRequest{StudentID: node.Generate(), ProductType: "course", ProductID: env.product.ID}, catalogdomain.ErrStudentNotFound},
		{"inactive student", domain.CreateOrderRequest{StudentID: inactiveStudent.ID, ProductType: "course", ProductID: env.product.ID}, catalogdomain.ErrStudentInactive},
		{"unknown product", domain.CreateOrderRequest{StudentID: env.student.ID, ProductType: "course", ProductID: node.Generate()}, catalogdomain.ErrProductNotFound},
		{"inactive product", domain.CreateOrderRequest{StudentID: env.student.ID, ProductType: "webinar", ProductID: inactiveProduct.ID}, catalogdomain.ErrProductInactive},
		{"capacity exhausted", domain.CreateOrderRequest{StudentID: env.student.ID, ProductType: "live_class", ProductID: fullProduct.ID}, catalogdomain.ErrCapacityExceeded},
		{"already enrolled", domain.CreateOrderRequest{StudentID: env.student.ID, ProductType: "course", ProductID: env.product.ID}, catalogdomain.ErrAlreadyEnrolled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateOrder(ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateOrderGatewayDownLeavesOrphanedIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	env := newTestEnv(t, srv.URL)
	ctx := context.Background()

	_, err := env.svc.CreateOrder(ctx, domain.CreateOrderRequest{
		StudentID:   env.student.ID,
		ProductType: "course",
		ProductID:   env.product.ID,
	})
	if !errors.Is(err, gateway.ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}

	// The pending intent stays behind without a gateway order and will simply
	// run out its expiry window.
	var count int64
	if err := env.db.Model(&domain.PaymentIntent{}).
		Where("status = ? AND gateway_order_id = ''", domain.StatusPending).
		Count(&count).Error; err != nil {
		t.Fatalf("count intents: %v", err)
	}
	if count != 1 {
		t.Fatalf("orphaned pending intents = %d, want 1", count)
	}
}

func TestGetIntentUnknown(t *testing.T) {
	srv := newFakeGateway(t)
	env := newTestEnv(t, srv.URL)

	node, _ := snowflake.NewNode(3)
	_, err := env.svc.GetIntent(context.Background(), node.Generate())
	if !errors.Is(err, domain.ErrIntentNotFound) {
		t.Fatalf("err = %v, want ErrIntentNotFound", err)
	}
}

func TestPurchaseTermsSurviveCatalogRepricing(t *testing.T) {
	srv := newFakeGateway(t)
	env := newTestEnv(t, srv.URL)
	ctx := context.Background()

	resp, err := env.svc.CreateOrder(ctx, domain.CreateOrderRequest{
		StudentID:   env.student.ID,
		ProductType: "course",
		ProductID:   env.product.ID,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// The catalog row is repriced after checkout.
	if err := env.db.Exec(
		`UPDATE products SET price = ? WHERE id = ?`, 99900.0, env.product.ID,
	).Error; err != nil {
		t.Fatalf("reprice product: %v", err)
	}

	intent, err := env.repo.FindByID(ctx, env.db, resp.IntentID)
	if err != nil {
		t.Fatalf("find intent: %v", err)
	}
	if intent.Amount != 15000 {
		t.Fatalf("intent amount = %d, want purchase-time 15000", intent.Amount)
	}
	var snap catalogdomain.Snapshot
	if err := json.Unmarshal(intent.ProductSnapshot, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.AmountMinor != 15000 {
		t.Fatalf("snapshot amount = %d, want purchase-time 15000", snap.AmountMinor)
	}

	// Settlement grants access on the stored snapshot, never the current row.
	settle := settlement.NewService(settlement.Params{
		DB:      env.db,
		Log:     zap.NewNop(),
		Repo:    env.repo,
		Catalog: env.catalog,
		Gateway: env.gw,
	})
	if _, err := settle.Settle(ctx, intent, settlement.Event{
		Name:             "payment.captured",
		GatewayPaymentID: "pay_reprice_1",
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}

	var enrollment catalogdomain.Enrollment
	res := env.db.Raw(
		`SELECT * FROM enrollments WHERE product_id = ? AND student_id = ?`,
		env.product.ID, env.student.ID,
	).Scan(&enrollment)
	if res.Error != nil || res.RowsAffected == 0 {
		t.Fatalf("enrollment missing: %v", res.Error)
	}
	var granted catalogdomain.Snapshot
	if err := json.Unmarshal(enrollment.Snapshot, &granted); err != nil {
		t.Fatalf("decode enrollment snapshot: %v", err)
	}
	if granted.AmountMinor != 15000 {
		t.Fatalf("enrolled amount = %d, want purchase-time 15000", granted.AmountMinor)
	}
}
