package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/lock"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/provider"
	"github.com/subpay-core/internal/queue"
	"github.com/subpay-core/internal/repository"
	"github.com/subpay-core/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

func setupWorkerTest(t *testing.T) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Order{},
		&models.OrderItem{},
		&models.UnifiedPayment{},
		&models.PaymentEvent{},
		&models.PaymentItem{},
		&models.Subscription{},
		&models.RenewalCycle{},
		&models.CreditAccount{},
		&models.CreditTransaction{},
		&models.RefundRequest{},
		&models.CouponRedemption{},
		&models.AdminTask{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	paymentRepo := repository.NewPaymentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	couponRepo := repository.NewCouponRedemptionRepository(db)
	adminTaskRepo := repository.NewAdminTaskRepository(db)
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	gateways := map[string]service.ProviderClient{}

	creditSvc := service.NewCreditService(creditRepo, service.CreditConfig{})
	failureSvc := service.NewFailureService(paymentRepo, adminTaskRepo, couponRepo, queueClient, service.FailureConfig{})
	notifySvc := service.NewNotificationService(queueClient)
	paymentSvc := service.NewPaymentService(
		paymentRepo, orderRepo, subscriptionRepo, creditRepo,
		queueClient, gateways, "USD", 30,
	)
	reconcileSvc := service.NewReconcileService(
		paymentRepo,
		repository.NewPaymentEventRepository(db),
		orderRepo,
		subscriptionRepo,
		repository.NewPaymentItemRepository(db),
		couponRepo,
		adminTaskRepo,
		creditSvc,
		failureSvc,
		notifySvc,
		lock.NewManager(db),
		gateways,
		10,
	)
	refundSvc := service.NewRefundService(
		refundRepo, paymentRepo, creditRepo, creditSvc,
		notifySvc, queueClient, gateways, service.RefundServiceConfig{},
	)

	c := &provider.Container{
		QueueClient:      queueClient,
		Gateways:         gateways,
		PaymentRepo:      paymentRepo,
		OrderRepo:        orderRepo,
		SubscriptionRepo: subscriptionRepo,
		CreditRepo:       creditRepo,
		RefundRepo:       refundRepo,
		AdminTaskRepo:    adminTaskRepo,

		PaymentService:      paymentSvc,
		CreditService:       creditSvc,
		FailureService:      failureSvc,
		ReconcileService:    reconcileSvc,
		RefundService:       refundSvc,
		NotificationService: notifySvc,
		SubscriptionService: service.NewSubscriptionService(subscriptionRepo, paymentSvc),
	}
	return NewConsumer(c), db
}

func mustTask(t *testing.T, name string, payload interface{}) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return asynq.NewTask(name, body)
}

func TestHandlePaymentSyncStatusSkipsMissingPayment(t *testing.T) {
	consumer, _ := setupWorkerTest(t)
	task := mustTask(t, queue.TaskPaymentSyncStatus, queue.PaymentSyncStatusPayload{PaymentID: 9999})
	if err := consumer.handlePaymentSyncStatus(context.Background(), task); err != nil {
		t.Fatalf("expected missing payment to be skipped, got %v", err)
	}
}

func TestHandlePaymentSyncStatusBadPayload(t *testing.T) {
	consumer, _ := setupWorkerTest(t)
	task := asynq.NewTask(queue.TaskPaymentSyncStatus, []byte("{not json"))
	if err := consumer.handlePaymentSyncStatus(context.Background(), task); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestHandlePaymentRetrySkipsInactiveSubscription(t *testing.T) {
	consumer, db := setupWorkerTest(t)
	now := time.Now()
	subID := uint(0)
	sub := &models.Subscription{
		UserID:      1,
		OrderItemID: 1,
		PlanID:      11,
		PlanName:    "基础版",
		Status:      constants.SubscriptionStatusCanceled,
		BillingTerm: constants.BillingTermMonthly,
		AutoRenew:   false,
		StartDate:   now.AddDate(0, -1, 0),
		EndDate:     now.AddDate(0, 0, -1),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("create subscription failed: %v", err)
	}
	subID = sub.ID

	payment := &models.UnifiedPayment{
		Provider:          constants.PaymentProviderCard,
		ProviderPaymentID: "pi_worker_retry",
		Purpose:           constants.PaymentPurposeRenewal,
		Status:            constants.PaymentStatusFailed,
		UserID:            1,
		SubscriptionID:    &subID,
		Amount:            models.MoneyZero(),
		Currency:          "USD",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	task := mustTask(t, queue.TaskPaymentRetry, queue.PaymentRetryPayload{PaymentID: payment.ID, Attempt: 1})
	if err := consumer.handlePaymentRetry(context.Background(), task); err != nil {
		t.Fatalf("expected inactive subscription retry to be skipped, got %v", err)
	}
}

func TestHandleRefundProcessSkipsMissingRefund(t *testing.T) {
	consumer, _ := setupWorkerTest(t)
	task := mustTask(t, queue.TaskRefundProcess, queue.RefundProcessPayload{RefundID: 4242})
	if err := consumer.handleRefundProcess(context.Background(), task); err != nil {
		t.Fatalf("expected missing refund to be skipped, got %v", err)
	}
}

func TestHandleNotificationDispatchInvalidPayload(t *testing.T) {
	consumer, _ := setupWorkerTest(t)
	task := mustTask(t, queue.TaskNotificationDispatch, queue.NotificationDispatchPayload{})
	if err := consumer.handleNotificationDispatch(context.Background(), task); err != nil {
		t.Fatalf("expected invalid payload to be skipped, got %v", err)
	}
}

func TestHandleAdminAlertLogsAndReturnsNil(t *testing.T) {
	consumer, _ := setupWorkerTest(t)
	task := mustTask(t, queue.TaskAdminAlert, queue.AdminAlertPayload{
		TaskID: 7,
		Type:   constants.AdminTaskTypePaymentEscalation,
		Title:  "支付重试超限，需人工介入",
	})
	if err := consumer.handleAdminAlert(context.Background(), task); err != nil {
		t.Fatalf("expected admin alert handling to succeed, got %v", err)
	}
}
