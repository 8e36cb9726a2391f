package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/lock"
	"github.com/subpay-core/internal/logger"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/queue"
	"github.com/subpay-core/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func setupReconcileTest(t *testing.T) (*ReconcileService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:reconcile_svc_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
		&models.CouponRedemption{},
		&models.AdminTask{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	paymentRepo := repository.NewPaymentRepository(db)
	couponRepo := repository.NewCouponRedemptionRepository(db)
	adminTaskRepo := repository.NewAdminTaskRepository(db)
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}

	creditSvc := NewCreditService(repository.NewCreditRepository(db), CreditConfig{})
	failureSvc := NewFailureService(paymentRepo, adminTaskRepo, couponRepo, queueClient, FailureConfig{})
	notifySvc := NewNotificationService(queueClient)

	svc := NewReconcileService(
		paymentRepo,
		repository.NewPaymentEventRepository(db),
		repository.NewOrderRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewPaymentItemRepository(db),
		couponRepo,
		adminTaskRepo,
		creditSvc,
		failureSvc,
		notifySvc,
		lock.NewManager(db),
		map[string]ProviderClient{},
		10,
	)
	return svc, db
}

func money(t *testing.T, s string) models.Money {
	t.Helper()
	m, err := models.NewMoneyFromString(s)
	if err != nil {
		t.Fatalf("parse money %q failed: %v", s, err)
	}
	return m
}

func createTestOrder(t *testing.T, db *gorm.DB, total string, couponID *uint) *models.Order {
	t.Helper()
	now := time.Now()
	order := &models.Order{
		OrderNo:     fmt.Sprintf("SO%d", now.UnixNano()),
		UserID:      1,
		Status:      constants.OrderStatusPendingPayment,
		Currency:    "USD",
		TotalAmount: money(t, total),
		CouponID:    couponID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	items := []models.OrderItem{
		{
			OrderID:     order.ID,
			PlanID:      11,
			PlanName:    "基础版",
			BillingTerm: constants.BillingTermMonthly,
			UnitPrice:   money(t, "29.99"),
			Quantity:    1,
			TotalPrice:  money(t, "29.99"),
			CostPrice:   money(t, "12.00"),
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			OrderID:     order.ID,
			PlanID:      12,
			PlanName:    "加购包",
			BillingTerm: constants.BillingTermMonthly,
			UnitPrice:   money(t, "20.00"),
			Quantity:    1,
			TotalPrice:  money(t, "20.00"),
			CostPrice:   money(t, "8.00"),
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	if err := db.Create(&items).Error; err != nil {
		t.Fatalf("create order items failed: %v", err)
	}
	order.Items = items
	return order
}

func createTestPayment(t *testing.T, db *gorm.DB, purpose, provider, ppid string, amount string, mutate func(p *models.UnifiedPayment)) *models.UnifiedPayment {
	t.Helper()
	now := time.Now()
	payment := &models.UnifiedPayment{
		Provider:          provider,
		ProviderPaymentID: ppid,
		Purpose:           purpose,
		Status:            constants.PaymentStatusPending,
		UserID:            1,
		Amount:            money(t, amount),
		Currency:          "USD",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if mutate != nil {
		mutate(payment)
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func TestProcessEventCheckoutSettles(t *testing.T) {
	svc, db := setupReconcileTest(t)
	order := createTestOrder(t, db, "49.99", nil)
	payment := createTestPayment(t, db, constants.PaymentPurposeCheckout, constants.PaymentProviderCard, "pi_settle", "49.99", func(p *models.UnifiedPayment) {
		p.OrderID = &order.ID
	})

	result, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCard,
		EventID:           "evt_settle_1",
		ProviderPaymentID: "pi_settle",
		EventType:         "payment_intent.succeeded",
		RawStatus:         "succeeded",
		ReceivedAmount:    "49.99",
		Currency:          "USD",
	})
	if err != nil {
		t.Fatalf("process event failed: %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", result.Outcome)
	}

	var gotOrder models.Order
	if err := db.First(&gotOrder, order.ID).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if gotOrder.Status != constants.OrderStatusInProcess {
		t.Fatalf("expected order in_process, got %s", gotOrder.Status)
	}
	if gotOrder.StatusReason != constants.OrderReasonPaid {
		t.Fatalf("expected reason paid, got %s", gotOrder.StatusReason)
	}
	if gotOrder.PaidAt == nil {
		t.Fatalf("expected paid_at set")
	}

	var items []models.PaymentItem
	if err := db.Where("payment_id = ?", payment.ID).Find(&items).Error; err != nil {
		t.Fatalf("load payment items failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 payment items, got %d", len(items))
	}
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Amount.Decimal)
	}
	if !sum.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("expected cost split to sum to 49.99, got %s", sum)
	}

	var subs []models.Subscription
	if err := db.Where("user_id = ?", order.UserID).Find(&subs).Error; err != nil {
		t.Fatalf("load subscriptions failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}
	for _, sub := range subs {
		if sub.Status != constants.SubscriptionStatusActive || !sub.AutoRenew {
			t.Fatalf("expected active auto-renew subscription, got %+v", sub)
		}
	}
}

func TestProcessEventAmountMismatchCancelsOrder(t *testing.T) {
	svc, db := setupReconcileTest(t)
	couponID := uint(7)
	order := createTestOrder(t, db, "49.99", &couponID)
	redemption := &models.CouponRedemption{
		CouponID:       couponID,
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         constants.CouponRedemptionStatusReserved,
		DiscountAmount: money(t, "5.00"),
	}
	if err := db.Create(redemption).Error; err != nil {
		t.Fatalf("create redemption failed: %v", err)
	}
	payment := createTestPayment(t, db, constants.PaymentPurposeCheckout, constants.PaymentProviderCard, "pi_mismatch", "49.99", func(p *models.UnifiedPayment) {
		p.OrderID = &order.ID
	})

	result, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCard,
		EventID:           "evt_mismatch_1",
		ProviderPaymentID: "pi_mismatch",
		RawStatus:         "succeeded",
		ReceivedAmount:    "40.00",
		Currency:          "USD",
	})
	if err != nil {
		t.Fatalf("process event failed: %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", result.Outcome)
	}

	var gotOrder models.Order
	if err := db.First(&gotOrder, order.ID).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if gotOrder.Status != constants.OrderStatusCanceled {
		t.Fatalf("expected order canceled, got %s", gotOrder.Status)
	}
	if gotOrder.StatusReason != constants.OrderReasonAmountMismatch {
		t.Fatalf("expected mismatch reason, got %s", gotOrder.StatusReason)
	}

	// 支付本身保持成功，资金去向交人工处理
	var gotPayment models.UnifiedPayment
	if err := db.First(&gotPayment, payment.ID).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if gotPayment.Status != constants.PaymentStatusSucceeded {
		t.Fatalf("expected payment succeeded, got %s", gotPayment.Status)
	}

	var gotRedemption models.CouponRedemption
	if err := db.First(&gotRedemption, redemption.ID).Error; err != nil {
		t.Fatalf("load redemption failed: %v", err)
	}
	if gotRedemption.Status != constants.CouponRedemptionStatusVoided {
		t.Fatalf("expected voided redemption, got %s", gotRedemption.Status)
	}

	var tasks []models.AdminTask
	if err := db.Where("type = ?", constants.AdminTaskTypePaymentEscalation).Find(&tasks).Error; err != nil {
		t.Fatalf("load tasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 escalation task, got %d", len(tasks))
	}

	var subCount int64
	db.Model(&models.Subscription{}).Count(&subCount)
	if subCount != 0 {
		t.Fatalf("mismatched order must not provision subscriptions")
	}
}

func TestProcessEventDuplicateIgnored(t *testing.T) {
	svc, db := setupReconcileTest(t)
	order := createTestOrder(t, db, "49.99", nil)
	createTestPayment(t, db, constants.PaymentPurposeCheckout, constants.PaymentProviderCard, "pi_dup_evt", "49.99", func(p *models.UnifiedPayment) {
		p.OrderID = &order.ID
	})

	input := ReconcileEventInput{
		Provider:          constants.PaymentProviderCard,
		EventID:           "evt_dup",
		ProviderPaymentID: "pi_dup_evt",
		RawStatus:         "succeeded",
		ReceivedAmount:    "49.99",
		Currency:          "USD",
	}
	first, err := svc.ProcessEvent(input)
	if err != nil {
		t.Fatalf("first event failed: %v", err)
	}
	if first.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", first.Outcome)
	}

	second, err := svc.ProcessEvent(input)
	if err != nil {
		t.Fatalf("replayed event failed: %v", err)
	}
	if second.Outcome != OutcomeDuplicateIgnored {
		t.Fatalf("expected duplicate_ignored, got %s", second.Outcome)
	}

	var subCount int64
	db.Model(&models.Subscription{}).Count(&subCount)
	if subCount != 2 {
		t.Fatalf("replay must not create extra subscriptions, got %d", subCount)
	}
}

func TestProcessEventRegressionIgnored(t *testing.T) {
	svc, db := setupReconcileTest(t)
	createTestPayment(t, db, constants.PaymentPurposeTopUp, constants.PaymentProviderCard, "pi_regress", "100.00", func(p *models.UnifiedPayment) {
		p.Status = constants.PaymentStatusSucceeded
	})

	result, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCard,
		EventID:           "evt_regress",
		ProviderPaymentID: "pi_regress",
		RawStatus:         "processing",
	})
	if err != nil {
		t.Fatalf("process event failed: %v", err)
	}
	if result.Outcome != OutcomeRegressionIgnored {
		t.Fatalf("expected regression_ignored, got %s", result.Outcome)
	}
	if result.Payment.Status != constants.PaymentStatusSucceeded {
		t.Fatalf("status must not regress, got %s", result.Payment.Status)
	}
}

func TestProcessEventEqualPriorityMergesMetadata(t *testing.T) {
	svc, db := setupReconcileTest(t)
	createTestPayment(t, db, constants.PaymentPurposeTopUp, constants.PaymentProviderCrypto, "inv_merge", "100.00", func(p *models.UnifiedPayment) {
		p.Status = constants.PaymentStatusProcessing
		p.Metadata = models.JSON{"tx_hash": "0xabc"}
	})

	result, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCrypto,
		EventID:           "evt_merge",
		ProviderPaymentID: "inv_merge",
		RawStatus:         "confirming",
		Payload:           models.JSON{"confirmations": float64(3)},
	})
	if err != nil {
		t.Fatalf("process event failed: %v", err)
	}
	if result.Outcome != OutcomeMetadataMerged {
		t.Fatalf("expected metadata_merged, got %s", result.Outcome)
	}

	var payment models.UnifiedPayment
	if err := db.Where("provider_payment_id = ?", "inv_merge").First(&payment).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if payment.Status != constants.PaymentStatusProcessing {
		t.Fatalf("equal priority must not change status, got %s", payment.Status)
	}
	if payment.Metadata["tx_hash"] != "0xabc" {
		t.Fatalf("existing metadata must survive merge: %+v", payment.Metadata)
	}
	if payment.Metadata["confirmations"] == nil {
		t.Fatalf("new metadata must be merged in: %+v", payment.Metadata)
	}
}

func TestProcessEventTopUpAllocatesCredit(t *testing.T) {
	svc, db := setupReconcileTest(t)
	payment := createTestPayment(t, db, constants.PaymentPurposeTopUp, constants.PaymentProviderCrypto, "inv_topup", "100.00", nil)
	pending := &models.CreditTransaction{
		UserID:    payment.UserID,
		PaymentID: &payment.ID,
		Type:      constants.CreditTxnTypeTopUp,
		Direction: constants.CreditTxnDirectionIn,
		Status:    constants.CreditTxnStatusPending,
		Amount:    models.MoneyZero(),
		Currency:  "USD",
	}
	if err := db.Create(pending).Error; err != nil {
		t.Fatalf("create pending txn failed: %v", err)
	}

	// 链上实收略低于面值，但在 95% 容差内
	result, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCrypto,
		EventID:           "evt_topup",
		ProviderPaymentID: "inv_topup",
		RawStatus:         "finished",
		ReceivedAmount:    "98.00",
		Currency:          "USD",
	})
	if err != nil {
		t.Fatalf("process event failed: %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", result.Outcome)
	}

	var account models.CreditAccount
	if err := db.Where("user_id = ?", payment.UserID).First(&account).Error; err != nil {
		t.Fatalf("load account failed: %v", err)
	}
	if !account.Balance.Decimal.Equal(decimal.RequireFromString("98.00")) {
		t.Fatalf("expected balance 98.00, got %s", account.Balance)
	}

	var txn models.CreditTransaction
	if err := db.First(&txn, pending.ID).Error; err != nil {
		t.Fatalf("load txn failed: %v", err)
	}
	if txn.Status != constants.CreditTxnStatusCompleted || !txn.PaymentCompleted {
		t.Fatalf("expected completed txn, got %+v", txn)
	}
	if !txn.BalanceAfter.Decimal.Equal(txn.BalanceBefore.Decimal.Add(txn.Amount.Decimal)) {
		t.Fatalf("balance_after must equal balance_before + amount: %+v", txn)
	}
}

func TestProcessEventTopUpUnderpaidGoesTerminal(t *testing.T) {
	svc, db := setupReconcileTest(t)
	payment := createTestPayment(t, db, constants.PaymentPurposeTopUp, constants.PaymentProviderCrypto, "inv_under", "100.00", nil)
	pending := &models.CreditTransaction{
		UserID:    payment.UserID,
		PaymentID: &payment.ID,
		Type:      constants.CreditTxnTypeTopUp,
		Direction: constants.CreditTxnDirectionIn,
		Status:    constants.CreditTxnStatusPending,
		Amount:    models.MoneyZero(),
		Currency:  "USD",
	}
	if err := db.Create(pending).Error; err != nil {
		t.Fatalf("create pending txn failed: %v", err)
	}

	result, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCrypto,
		EventID:           "evt_under",
		ProviderPaymentID: "inv_under",
		RawStatus:         "finished",
		ReceivedAmount:    "80.00",
		Currency:          "USD",
	})
	if err != nil {
		t.Fatalf("process event failed: %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", result.Outcome)
	}

	// 实收不足容差：支付单落终态失败并归入 insufficient_payment 桶
	var gotPayment models.UnifiedPayment
	if err := db.First(&gotPayment, payment.ID).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if gotPayment.Status != constants.PaymentStatusFailed {
		t.Fatalf("expected terminal failed, got %s", gotPayment.Status)
	}
	if gotPayment.FailureBucket != constants.FailureBucketInsufficientPayment {
		t.Fatalf("expected insufficient_payment bucket, got %q", gotPayment.FailureBucket)
	}
	if gotPayment.PaidAt != nil {
		t.Fatalf("underpaid payment must not record paid_at")
	}

	// 额度未入账，预建流水保持待结算
	var accountCount int64
	db.Model(&models.CreditAccount{}).Count(&accountCount)
	if accountCount != 0 {
		t.Fatalf("underpaid top-up must not credit an account")
	}
	var txn models.CreditTransaction
	if err := db.First(&txn, pending.ID).Error; err != nil {
		t.Fatalf("load txn failed: %v", err)
	}
	if txn.Status != constants.CreditTxnStatusPending {
		t.Fatalf("expected pending txn, got %s", txn.Status)
	}

	// 同一状态的重放命中去重，终态不被重复处理
	replay, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCrypto,
		EventID:           "evt_under",
		ProviderPaymentID: "inv_under",
		RawStatus:         "finished",
		ReceivedAmount:    "80.00",
		Currency:          "USD",
	})
	if err != nil {
		t.Fatalf("replayed event failed: %v", err)
	}
	if replay.Outcome != OutcomeDuplicateIgnored {
		t.Fatalf("expected duplicate_ignored, got %s", replay.Outcome)
	}
	if replay.Payment == nil || replay.Payment.Status != constants.PaymentStatusFailed {
		t.Fatalf("replay must observe the terminal status")
	}
}

func TestProcessEventRenewalCycleIdempotent(t *testing.T) {
	svc, db := setupReconcileTest(t)
	endDate := time.Date(2026, 9, 15, 10, 30, 0, 0, time.UTC)
	sub := &models.Subscription{
		UserID:      1,
		OrderItemID: 501,
		PlanID:      11,
		PlanName:    "基础版",
		Status:      constants.SubscriptionStatusActive,
		BillingTerm: constants.BillingTermMonthly,
		AutoRenew:   true,
		StartDate:   endDate.AddDate(0, -1, 0),
		EndDate:     endDate,
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("create subscription failed: %v", err)
	}

	for i, ppid := range []string{"pi_renew_a", "pi_renew_b"} {
		createTestPayment(t, db, constants.PaymentPurposeRenewal, constants.PaymentProviderCard, ppid, "29.99", func(p *models.UnifiedPayment) {
			p.SubscriptionID = &sub.ID
		})
		result, err := svc.ProcessEvent(ReconcileEventInput{
			Provider:          constants.PaymentProviderCard,
			EventID:           fmt.Sprintf("evt_renew_%d", i),
			ProviderPaymentID: ppid,
			RawStatus:         "succeeded",
			ReceivedAmount:    "29.99",
			Currency:          "USD",
		})
		if err != nil {
			t.Fatalf("renewal event %d failed: %v", i, err)
		}
		if result.Outcome != OutcomeApplied {
			t.Fatalf("expected applied, got %s", result.Outcome)
		}
	}

	// 同一账期只允许结算一次：两笔成功支付只推进一个周期
	var gotSub models.Subscription
	if err := db.First(&gotSub, sub.ID).Error; err != nil {
		t.Fatalf("load subscription failed: %v", err)
	}
	wantEnd := endDate.AddDate(0, 1, 0)
	if !gotSub.EndDate.Equal(wantEnd) {
		t.Fatalf("expected end date %s, got %s", wantEnd, gotSub.EndDate)
	}

	var cycleCount int64
	db.Model(&models.RenewalCycle{}).Where("subscription_id = ?", sub.ID).Count(&cycleCount)
	if cycleCount != 1 {
		t.Fatalf("expected 1 renewal cycle, got %d", cycleCount)
	}
}

func TestProcessEventRenewalHardDeclineDisablesAutoRenew(t *testing.T) {
	svc, db := setupReconcileTest(t)
	sub := &models.Subscription{
		UserID:      1,
		OrderItemID: 601,
		PlanID:      11,
		PlanName:    "基础版",
		Status:      constants.SubscriptionStatusActive,
		BillingTerm: constants.BillingTermMonthly,
		AutoRenew:   true,
		StartDate:   time.Now().AddDate(0, -1, 0),
		EndDate:     time.Now().Add(24 * time.Hour),
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("create subscription failed: %v", err)
	}
	createTestPayment(t, db, constants.PaymentPurposeRenewal, constants.PaymentProviderCard, "pi_decline", "29.99", func(p *models.UnifiedPayment) {
		p.SubscriptionID = &sub.ID
	})

	result, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCard,
		EventID:           "evt_decline",
		ProviderPaymentID: "pi_decline",
		RawStatus:         "payment_failed",
		DeclineCode:       "stolen_card",
		FailureReason:     "card declined",
	})
	if err != nil {
		t.Fatalf("process event failed: %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", result.Outcome)
	}

	var gotSub models.Subscription
	if err := db.First(&gotSub, sub.ID).Error; err != nil {
		t.Fatalf("load subscription failed: %v", err)
	}
	if gotSub.AutoRenew {
		t.Fatalf("hard decline must disable auto renew")
	}
	if gotSub.RenewAttempts != 1 {
		t.Fatalf("expected 1 renew attempt, got %d", gotSub.RenewAttempts)
	}
}

func TestProcessEventRenewalSoftDeclineExhaustionDisablesAutoRenew(t *testing.T) {
	svc, db := setupReconcileTest(t)
	sub := &models.Subscription{
		UserID:        1,
		OrderItemID:   701,
		PlanID:        11,
		PlanName:      "基础版",
		Status:        constants.SubscriptionStatusActive,
		BillingTerm:   constants.BillingTermMonthly,
		AutoRenew:     true,
		RenewAttempts: 4,
		StartDate:     time.Now().AddDate(0, -1, 0),
		EndDate:       time.Now().Add(24 * time.Hour),
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("create subscription failed: %v", err)
	}
	createTestPayment(t, db, constants.PaymentPurposeRenewal, constants.PaymentProviderCard, "pi_soft_max", "29.99", func(p *models.UnifiedPayment) {
		p.SubscriptionID = &sub.ID
	})

	result, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCard,
		EventID:           "evt_soft_max",
		ProviderPaymentID: "pi_soft_max",
		RawStatus:         "payment_failed",
		DeclineCode:       "insufficient_funds",
		FailureReason:     "card declined",
	})
	if err != nil {
		t.Fatalf("process event failed: %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", result.Outcome)
	}

	// 软失败达到重试上限：无法再排期重试，必须停用自动续费并转人工
	var gotSub models.Subscription
	if err := db.First(&gotSub, sub.ID).Error; err != nil {
		t.Fatalf("load subscription failed: %v", err)
	}
	if gotSub.AutoRenew {
		t.Fatalf("exhausted retries must disable auto renew")
	}
	if gotSub.RenewAttempts != 5 {
		t.Fatalf("expected 5 renew attempts, got %d", gotSub.RenewAttempts)
	}

	var taskCount int64
	db.Model(&models.AdminTask{}).Where("type = ?", constants.AdminTaskTypePaymentEscalation).Count(&taskCount)
	if taskCount != 1 {
		t.Fatalf("expected 1 escalation task, got %d", taskCount)
	}
}

func TestProcessEventRenewalSoftDeclineSkipsRetryWhenAutoRenewOff(t *testing.T) {
	svc, db := setupReconcileTest(t)
	sub := &models.Subscription{
		UserID:      1,
		OrderItemID: 702,
		PlanID:      11,
		PlanName:    "基础版",
		Status:      constants.SubscriptionStatusActive,
		BillingTerm: constants.BillingTermMonthly,
		AutoRenew:   false,
		StartDate:   time.Now().AddDate(0, -1, 0),
		EndDate:     time.Now().Add(24 * time.Hour),
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("create subscription failed: %v", err)
	}
	createTestPayment(t, db, constants.PaymentPurposeRenewal, constants.PaymentProviderCard, "pi_soft_off", "29.99", func(p *models.UnifiedPayment) {
		p.SubscriptionID = &sub.ID
	})

	result, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCard,
		EventID:           "evt_soft_off",
		ProviderPaymentID: "pi_soft_off",
		RawStatus:         "payment_failed",
		DeclineCode:       "insufficient_funds",
		FailureReason:     "card declined",
	})
	if err != nil {
		t.Fatalf("process event failed: %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", result.Outcome)
	}

	// 自动续费已关闭：只记录失败次数，不升级也不排期重试
	var gotSub models.Subscription
	if err := db.First(&gotSub, sub.ID).Error; err != nil {
		t.Fatalf("load subscription failed: %v", err)
	}
	if gotSub.AutoRenew {
		t.Fatalf("auto renew must stay off")
	}
	if gotSub.RenewAttempts != 1 {
		t.Fatalf("expected 1 renew attempt, got %d", gotSub.RenewAttempts)
	}
	var taskCount int64
	db.Model(&models.AdminTask{}).Count(&taskCount)
	if taskCount != 0 {
		t.Fatalf("auto-renew-off failure must not escalate, got %d tasks", taskCount)
	}
}

func TestProcessEventAppliedLogsPriorStatus(t *testing.T) {
	svc, db := setupReconcileTest(t)
	core, observed := observer.New(zap.InfoLevel)
	prev := logger.L
	logger.L = zap.New(core)
	defer func() { logger.L = prev }()

	order := createTestOrder(t, db, "49.99", nil)
	createTestPayment(t, db, constants.PaymentPurposeCheckout, constants.PaymentProviderCard, "pi_log_prev", "49.99", func(p *models.UnifiedPayment) {
		p.OrderID = &order.ID
	})

	if _, err := svc.ProcessEvent(ReconcileEventInput{
		Provider:          constants.PaymentProviderCard,
		EventID:           "evt_log_prev",
		ProviderPaymentID: "pi_log_prev",
		RawStatus:         "succeeded",
		ReceivedAmount:    "49.99",
		Currency:          "USD",
	}); err != nil {
		t.Fatalf("process event failed: %v", err)
	}

	entries := observed.FilterMessage("payment_event_applied").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 applied log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != constants.PaymentStatusPending {
		t.Fatalf("expected previous_status pending, got %v", fields["previous_status"])
	}
	if fields["new_status"] != constants.PaymentStatusSucceeded {
		t.Fatalf("expected new_status succeeded, got %v", fields["new_status"])
	}
}

func TestDeriveEventIDDeterministic(t *testing.T) {
	payload := models.JSON{"amount": "49.99"}
	a := DeriveEventID("card", "pi_1", "succeeded", payload)
	b := DeriveEventID("card", "pi_1", "Succeeded ", payload)
	if a != b {
		t.Fatalf("derivation must normalize status casing: %s vs %s", a, b)
	}
	c := DeriveEventID("card", "pi_1", "processing", payload)
	if a == c {
		t.Fatalf("different status must derive different event id")
	}
	if len(a) != len("drv_")+40 {
		t.Fatalf("unexpected derived id length: %s", a)
	}
}
