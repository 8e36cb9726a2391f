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

func setupEventRepositoryTest(t *testing.T) *GormPaymentEventRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:event_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.PaymentEvent{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewPaymentEventRepository(db)
}

func TestEventRepositoryRecordFirstSeen(t *testing.T) {
	repo := setupEventRepositoryTest(t)

	event := &models.PaymentEvent{
		Provider:          constants.PaymentProviderCard,
		EventID:           "evt_1",
		ProviderPaymentID: "pi_1",
		EventType:         "payment_intent.succeeded",
		ProviderStatus:    "succeeded",
		ReceivedAt:        time.Now(),
	}
	firstSeen, err := repo.Record(event)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if !firstSeen {
		t.Fatalf("expected first seen for new event")
	}

	// 同一事件重投递：返回 false 而不是错误
	dup := &models.PaymentEvent{
		Provider:          constants.PaymentProviderCard,
		EventID:           "evt_1",
		ProviderPaymentID: "pi_1",
		ReceivedAt:        time.Now(),
	}
	firstSeen, err = repo.Record(dup)
	if err != nil {
		t.Fatalf("duplicate record must not error: %v", err)
	}
	if firstSeen {
		t.Fatalf("expected duplicate to report firstSeen=false")
	}

	events, err := repo.ListByProviderPaymentID(constants.PaymentProviderCard, "pi_1")
	if err != nil {
		t.Fatalf("list events failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 stored event, got %d", len(events))
	}
}

func TestEventRepositorySameEventIDAcrossProviders(t *testing.T) {
	repo := setupEventRepositoryTest(t)

	for _, provider := range []string{constants.PaymentProviderCard, constants.PaymentProviderCrypto} {
		firstSeen, err := repo.Record(&models.PaymentEvent{
			Provider:          provider,
			EventID:           "evt_shared",
			ProviderPaymentID: "ref_1",
			ReceivedAt:        time.Now(),
		})
		if err != nil {
			t.Fatalf("record for %s failed: %v", provider, err)
		}
		if !firstSeen {
			t.Fatalf("event id is only unique per provider, %s insert must succeed", provider)
		}
	}
}
