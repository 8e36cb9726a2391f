package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupSubscriptionRepositoryTest(t *testing.T) *GormSubscriptionRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:subscription_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Subscription{}, &models.RenewalCycle{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewSubscriptionRepository(db)
}

func TestSubscriptionOrderItemUnique(t *testing.T) {
	repo := setupSubscriptionRepositoryTest(t)
	now := time.Now()

	sub := &models.Subscription{
		UserID:      1,
		OrderItemID: 10,
		PlanID:      3,
		PlanName:    "pro",
		Status:      constants.SubscriptionStatusActive,
		BillingTerm: constants.BillingTermMonthly,
		AutoRenew:   true,
		StartDate:   now,
		EndDate:     now.AddDate(0, 1, 0),
	}
	if err := repo.Create(sub); err != nil {
		t.Fatalf("create subscription failed: %v", err)
	}

	dup := &models.Subscription{
		UserID:      1,
		OrderItemID: 10,
		PlanID:      3,
		PlanName:    "pro",
		Status:      constants.SubscriptionStatusActive,
		BillingTerm: constants.BillingTermMonthly,
		StartDate:   now,
		EndDate:     now.AddDate(0, 1, 0),
	}
	if err := repo.Create(dup); err == nil {
		t.Fatalf("expected unique constraint on order_item_id")
	}

	got, err := repo.GetByOrderItemID(10)
	if err != nil {
		t.Fatalf("get by order item failed: %v", err)
	}
	if got == nil || got.ID != sub.ID {
		t.Fatalf("expected subscription %d, got %+v", sub.ID, got)
	}
}

func TestRenewalCycleLock(t *testing.T) {
	repo := setupSubscriptionRepositoryTest(t)
	cycleEnd := time.Date(2026, 9, 30, 18, 45, 12, 0, time.FixedZone("CST", 8*3600))

	created, err := repo.CreateRenewalCycle(&models.RenewalCycle{
		SubscriptionID: 7,
		CycleEnd:       cycleEnd,
		PaymentID:      101,
	})
	if err != nil {
		t.Fatalf("create cycle failed: %v", err)
	}
	if !created {
		t.Fatalf("expected first cycle insert to succeed")
	}

	// 同一订阅同一周期日（即使时刻不同）命中唯一键
	sameDay := time.Date(2026, 9, 30, 2, 0, 0, 0, time.UTC)
	created, err = repo.CreateRenewalCycle(&models.RenewalCycle{
		SubscriptionID: 7,
		CycleEnd:       sameDay,
		PaymentID:      102,
	})
	if err != nil {
		t.Fatalf("duplicate cycle must not error: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate cycle to report created=false")
	}

	// 下一个周期日可以入账
	created, err = repo.CreateRenewalCycle(&models.RenewalCycle{
		SubscriptionID: 7,
		CycleEnd:       sameDay.AddDate(0, 1, 0),
		PaymentID:      103,
	})
	if err != nil {
		t.Fatalf("next cycle failed: %v", err)
	}
	if !created {
		t.Fatalf("expected next cycle insert to succeed")
	}
}

func TestTruncateCycleDate(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 东九区 2026-10-01 01:30 等于 UTC 2026-09-30
	local := time.Date(2026, 10, 1, 1, 30, 0, 0, loc)
	got := TruncateCycleDate(local)
	want := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("truncate = %v, want %v", got, want)
	}
}
