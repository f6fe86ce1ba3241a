package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
	"github.com/learnsphere/tutorpay/internal/clock"
	intentdomain "github.com/learnsphere/tutorpay/internal/intent/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestGetSummary(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&intentdomain.PaymentIntent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, _ := snowflake.NewNode(1)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	rows := []struct {
		status      intentdomain.Status
		productType catalogdomain.ProductType
		amount      int64
		age         time.Duration
	}{
		{intentdomain.StatusSucceeded, catalogdomain.ProductTypeCourse, 15000, time.Hour},
		{intentdomain.StatusSucceeded, catalogdomain.ProductTypeCourse, 15000, 2 * time.Hour},
		{intentdomain.StatusSucceeded, catalogdomain.ProductTypeWebinar, 5000, 3 * time.Hour},
		{intentdomain.StatusFailed, catalogdomain.ProductTypeCourse, 15000, time.Hour},
		{intentdomain.StatusPending, catalogdomain.ProductTypeCourse, 15000, time.Hour},
		// Outside the trailing 30 day window.
		{intentdomain.StatusSucceeded, catalogdomain.ProductTypeCourse, 15000, 45 * 24 * time.Hour},
	}
	for _, row := range rows {
		created := now.Add(-row.age)
		intent := intentdomain.PaymentIntent{
			ID:          node.Generate(),
			StudentID:   node.Generate(),
			ProductID:   node.Generate(),
			ProductType: row.productType,
			Amount:      row.amount,
			Currency:    "INR",
			Status:      row.status,
			ExpiresAt:   created.Add(20 * time.Minute),
			CreatedAt:   created,
			UpdatedAt:   created,
		}
		if err := db.Create(&intent).Error; err != nil {
			t.Fatalf("seed intent: %v", err)
		}
	}

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(now),
	})

	summary, err := svc.GetSummary(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}

	if summary.TotalIntents != 5 {
		t.Fatalf("total intents = %d, want 5", summary.TotalIntents)
	}
	if summary.SettledAmount != 35000 {
		t.Fatalf("settled amount = %d, want 35000", summary.SettledAmount)
	}

	byType := map[string]int64{}
	for _, line := range summary.ByProductType {
		byType[line.ProductType] = line.Amount
	}
	if byType["course"] != 30000 || byType["webinar"] != 5000 {
		t.Fatalf("settled by product type = %v", byType)
	}
}
