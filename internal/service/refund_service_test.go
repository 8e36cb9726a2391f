package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/queue"
	"github.com/subpay-core/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeGateway struct {
	refundID    string
	refundErr   error
	refundCalls int
	status      *ProviderStatus
	statusErr   error
}

func (f *fakeGateway) CreatePayment(ctx context.Context, input ProviderCreateInput) (*ProviderCreateResult, error) {
	return &ProviderCreateResult{ProviderPaymentID: "pi_fake"}, nil
}

func (f *fakeGateway) GetStatus(ctx context.Context, providerPaymentID string) (*ProviderStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeGateway) Cancel(ctx context.Context, providerPaymentID string) error {
	return nil
}

func (f *fakeGateway) Refund(ctx context.Context, providerPaymentID, amount, reference string) (string, error) {
	f.refundCalls++
	if f.refundErr != nil {
		return "", f.refundErr
	}
	return f.refundID, nil
}

func setupRefundTest(t *testing.T) (*RefundService, *fakeGateway, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:refund_svc_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.UnifiedPayment{},
		&models.CreditAccount{},
		&models.CreditTransaction{},
		&models.RefundRequest{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	creditRepo := repository.NewCreditRepository(db)
	creditSvc := NewCreditService(creditRepo, CreditConfig{})
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	gateway := &fakeGateway{refundID: "re_fake_1"}
	svc := NewRefundService(
		repository.NewRefundRepository(db),
		repository.NewPaymentRepository(db),
		creditRepo,
		creditSvc,
		NewNotificationService(queueClient),
		queueClient,
		map[string]ProviderClient{constants.PaymentProviderCard: gateway},
		RefundServiceConfig{},
	)
	return svc, gateway, db
}

// 预置一笔已到账并入账额度的充值
func seedRefundablePayment(t *testing.T, db *gorm.DB, svc *RefundService, amount string) *models.UnifiedPayment {
	t.Helper()
	paidAt := time.Now().Add(-48 * time.Hour)
	payment := &models.UnifiedPayment{
		Provider:          constants.PaymentProviderCard,
		ProviderPaymentID: fmt.Sprintf("pi_refund_%d", time.Now().UnixNano()),
		Purpose:           constants.PaymentPurposeTopUp,
		Status:            constants.PaymentStatusSucceeded,
		UserID:            1,
		Amount:            money(t, amount),
		ReceivedAmount:    money(t, amount),
		Currency:          "USD",
		PaidAt:            &paidAt,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

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
	if err := db.Transaction(func(tx *gorm.DB) error {
		_, allocErr := svc.creditSvc.AllocateInTx(tx, AllocateInput{
			Payment:        payment,
			ReceivedAmount: payment.ReceivedAmount,
			Currency:       "USD",
		})
		return allocErr
	}); err != nil {
		t.Fatalf("seed allocation failed: %v", err)
	}
	return payment
}

func accountBalance(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	t.Helper()
	var account models.CreditAccount
	if err := db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		t.Fatalf("load account failed: %v", err)
	}
	return account.Balance.Decimal
}

func TestRefundHappyPath(t *testing.T) {
	svc, gateway, db := setupRefundTest(t)
	payment := seedRefundablePayment(t, db, svc, "100.00")

	refund, err := svc.Request(RefundRequestInput{
		UserID:    payment.UserID,
		PaymentID: payment.ID,
		Amount:    money(t, "60.00"),
		Reason:    "不再需要",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if refund.Status != constants.RefundStatusPending {
		t.Fatalf("expected pending, got %s", refund.Status)
	}

	approved, err := svc.Approve(refund.ID, "admin")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != constants.RefundStatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	if err := svc.ProcessApprovedRefund(context.Background(), refund.ID); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	var got models.RefundRequest
	if err := db.First(&got, refund.ID).Error; err != nil {
		t.Fatalf("load refund failed: %v", err)
	}
	if got.Status != constants.RefundStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.ProviderRefundID != "re_fake_1" {
		t.Fatalf("expected provider refund id, got %q", got.ProviderRefundID)
	}
	if got.ReversalTxnID == nil {
		t.Fatalf("expected reversal txn recorded")
	}
	if got.ProcessedAt == nil {
		t.Fatalf("expected processed_at set")
	}
	if gateway.refundCalls != 1 {
		t.Fatalf("expected 1 provider call, got %d", gateway.refundCalls)
	}

	if balance := accountBalance(t, db, payment.UserID); !balance.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("expected balance 40.00 after refund, got %s", balance)
	}
}

func TestRefundProviderFailureRollsBack(t *testing.T) {
	svc, gateway, db := setupRefundTest(t)
	gateway.refundErr = fmt.Errorf("gateway unavailable")
	payment := seedRefundablePayment(t, db, svc, "100.00")

	refund, err := svc.Request(RefundRequestInput{
		UserID:    payment.UserID,
		PaymentID: payment.ID,
		Amount:    money(t, "60.00"),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, err := svc.Approve(refund.ID, "admin"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if err := svc.ProcessApprovedRefund(context.Background(), refund.ID); err != nil {
		t.Fatalf("process should absorb provider failure: %v", err)
	}

	var got models.RefundRequest
	if err := db.First(&got, refund.ID).Error; err != nil {
		t.Fatalf("load refund failed: %v", err)
	}
	if got.Status != constants.RefundStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}

	// 冲回与回补一来一回，余额净值不变
	if balance := accountBalance(t, db, payment.UserID); !balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected balance restored to 100.00, got %s", balance)
	}

	var txnCount int64
	db.Model(&models.CreditTransaction{}).Where("refund_id = ?", refund.ID).Count(&txnCount)
	if txnCount != 2 {
		t.Fatalf("expected reversal + rollback rows, got %d", txnCount)
	}
}

func TestRefundProcessReplayIsIdempotent(t *testing.T) {
	svc, gateway, db := setupRefundTest(t)
	payment := seedRefundablePayment(t, db, svc, "100.00")

	refund, err := svc.Request(RefundRequestInput{
		UserID:    payment.UserID,
		PaymentID: payment.ID,
		Amount:    money(t, "60.00"),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, err := svc.Approve(refund.ID, "admin"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.ProcessApprovedRefund(context.Background(), refund.ID); err != nil {
			t.Fatalf("process round %d failed: %v", i, err)
		}
	}

	if gateway.refundCalls != 1 {
		t.Fatalf("replay must not re-call provider, got %d calls", gateway.refundCalls)
	}
	if balance := accountBalance(t, db, payment.UserID); !balance.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("replay must not double-debit, balance=%s", balance)
	}
}

func TestRefundDecisionIsExclusive(t *testing.T) {
	svc, _, db := setupRefundTest(t)
	payment := seedRefundablePayment(t, db, svc, "100.00")

	refund, err := svc.Request(RefundRequestInput{
		UserID:    payment.UserID,
		PaymentID: payment.ID,
		Amount:    money(t, "50.00"),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, err := svc.Approve(refund.ID, "admin-a"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := svc.Reject(refund.ID, "admin-b", "重复操作"); err != ErrRefundStatusInvalid {
		t.Fatalf("expected ErrRefundStatusInvalid on second decision, got %v", err)
	}
}

func TestRefundRequestValidations(t *testing.T) {
	svc, _, db := setupRefundTest(t)
	payment := seedRefundablePayment(t, db, svc, "100.00")

	t.Run("window expired", func(t *testing.T) {
		old := time.Now().Add(-31 * 24 * time.Hour)
		if err := db.Model(&models.UnifiedPayment{}).Where("id = ?", payment.ID).
			Update("paid_at", old).Error; err != nil {
			t.Fatalf("age payment failed: %v", err)
		}
		_, err := svc.Request(RefundRequestInput{
			UserID:    payment.UserID,
			PaymentID: payment.ID,
			Amount:    money(t, "10.00"),
		})
		if err != ErrRefundWindowExpired {
			t.Fatalf("expected ErrRefundWindowExpired, got %v", err)
		}
		recent := time.Now().Add(-time.Hour)
		if err := db.Model(&models.UnifiedPayment{}).Where("id = ?", payment.ID).
			Update("paid_at", recent).Error; err != nil {
			t.Fatalf("restore paid_at failed: %v", err)
		}
	})

	t.Run("amount above received", func(t *testing.T) {
		_, err := svc.Request(RefundRequestInput{
			UserID:    payment.UserID,
			PaymentID: payment.ID,
			Amount:    money(t, "150.00"),
		})
		if err != ErrRefundAmountInvalid {
			t.Fatalf("expected ErrRefundAmountInvalid, got %v", err)
		}
	})

	t.Run("insufficient credit balance", func(t *testing.T) {
		// 余额已被部分消费时不允许全额退款
		if err := db.Transaction(func(tx *gorm.DB) error {
			_, debitErr := svc.creditSvc.DebitInTx(tx, payment.UserID, money(t, "70.00"),
				constants.CreditTxnTypeAdjust, "adjust:spend:1", "模拟消费", nil)
			return debitErr
		}); err != nil {
			t.Fatalf("spend balance failed: %v", err)
		}
		_, err := svc.Request(RefundRequestInput{
			UserID:    payment.UserID,
			PaymentID: payment.ID,
			Amount:    money(t, "50.00"),
		})
		if err != ErrCreditInsufficientBalance {
			t.Fatalf("expected ErrCreditInsufficientBalance, got %v", err)
		}
	})

	t.Run("active refund blocks another", func(t *testing.T) {
		first, err := svc.Request(RefundRequestInput{
			UserID:    payment.UserID,
			PaymentID: payment.ID,
			Amount:    money(t, "10.00"),
		})
		if err != nil {
			t.Fatalf("first request failed: %v", err)
		}
		_, err = svc.Request(RefundRequestInput{
			UserID:    payment.UserID,
			PaymentID: payment.ID,
			Amount:    money(t, "10.00"),
		})
		if err != ErrRefundAlreadyActive {
			t.Fatalf("expected ErrRefundAlreadyActive, got %v", err)
		}
		if _, err := svc.Reject(first.ID, "admin", "测试释放"); err != nil {
			t.Fatalf("reject failed: %v", err)
		}
		// 终结后允许重新申请
		if _, err := svc.Request(RefundRequestInput{
			UserID:    payment.UserID,
			PaymentID: payment.ID,
			Amount:    money(t, "10.00"),
		}); err != nil {
			t.Fatalf("request after rejection failed: %v", err)
		}
	})
}
