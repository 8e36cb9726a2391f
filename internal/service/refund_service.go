package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/queue"
	"github.com/subpay-core/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RefundServiceConfig 退款配置
type RefundServiceConfig struct {
	WindowDays int
	MinAmount  models.Money
	MaxAmount  models.Money
}

func (c RefundServiceConfig) normalized() RefundServiceConfig {
	if c.WindowDays <= 0 {
		c.WindowDays = 30
	}
	if c.MinAmount.Decimal.LessThanOrEqual(decimal.Zero) {
		c.MinAmount = models.NewMoneyFromDecimal(decimal.NewFromFloat(0.01))
	}
	if c.MaxAmount.Decimal.LessThanOrEqual(decimal.Zero) {
		c.MaxAmount = models.NewMoneyFromDecimal(decimal.NewFromInt(10000))
	}
	return c
}

// RefundService 退款申请与执行
type RefundService struct {
	refundRepo  repository.RefundRepository
	paymentRepo repository.PaymentRepository
	creditRepo  repository.CreditRepository
	creditSvc   *CreditService
	notifySvc   *NotificationService
	queueClient *queue.Client
	gateways    map[string]ProviderClient
	cfg         RefundServiceConfig
}

// NewRefundService 创建退款服务
func NewRefundService(
	refundRepo repository.RefundRepository,
	paymentRepo repository.PaymentRepository,
	creditRepo repository.CreditRepository,
	creditSvc *CreditService,
	notifySvc *NotificationService,
	queueClient *queue.Client,
	gateways map[string]ProviderClient,
	cfg RefundServiceConfig,
) *RefundService {
	return &RefundService{
		refundRepo:  refundRepo,
		paymentRepo: paymentRepo,
		creditRepo:  creditRepo,
		creditSvc:   creditSvc,
		notifySvc:   notifySvc,
		queueClient: queueClient,
		gateways:    gateways,
		cfg:         cfg.normalized(),
	}
}

// RefundRequestInput 退款申请输入
type RefundRequestInput struct {
	UserID    uint
	PaymentID uint
	Amount    models.Money
	Reason    string
}

// Request 提交退款申请。
// 仅限时间窗口内、额度余额足以冲回的已到账充值。
func (s *RefundService) Request(input RefundRequestInput) (*models.RefundRequest, error) {
	if input.UserID == 0 || input.PaymentID == 0 {
		return nil, ErrRefundInvalid
	}
	amount := input.Amount.Decimal.Round(2)
	if amount.LessThan(s.cfg.MinAmount.Decimal) || amount.GreaterThan(s.cfg.MaxAmount.Decimal) {
		return nil, ErrRefundAmountInvalid
	}

	log := paymentLogger(
		"user_id", input.UserID,
		"payment_id", input.PaymentID,
		"amount", amount.String(),
	)

	payment, err := s.paymentRepo.GetByID(input.PaymentID)
	if err != nil {
		log.Errorw("refund_payment_fetch_failed", "error", err)
		return nil, err
	}
	if payment == nil || payment.UserID != input.UserID {
		return nil, ErrPaymentNotFound
	}
	if payment.Purpose != constants.PaymentPurposeTopUp {
		return nil, ErrRefundInvalid
	}
	if payment.Status != constants.PaymentStatusSucceeded || payment.PaidAt == nil {
		return nil, ErrRefundStatusInvalid
	}
	if time.Since(*payment.PaidAt) > time.Duration(s.cfg.WindowDays)*24*time.Hour {
		return nil, ErrRefundWindowExpired
	}
	if amount.GreaterThan(payment.ReceivedAmount.Decimal.Round(2)) {
		return nil, ErrRefundAmountInvalid
	}

	active, err := s.refundRepo.GetActiveByPaymentID(payment.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrRefundAlreadyActive
	}

	account, err := s.creditRepo.GetAccountByUserID(input.UserID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.Balance.Decimal.Round(2).LessThan(amount) {
		return nil, ErrCreditInsufficientBalance
	}

	now := time.Now()
	refund := &models.RefundRequest{
		RefundNo:  buildRefundNo(),
		UserID:    input.UserID,
		PaymentID: payment.ID,
		Amount:    models.NewMoneyFromDecimal(amount),
		Currency:  payment.Currency,
		Reason:    strings.TrimSpace(input.Reason),
		Status:    constants.RefundStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.refundRepo.Create(refund); err != nil {
		log.Errorw("refund_create_failed", "error", err)
		return nil, ErrRefundCreateFailed
	}
	log.Infow("refund_requested", "refund_no", refund.RefundNo)
	return refund, nil
}

// Approve 管理员批准退款并排队执行。行锁保证同一申请只会被裁决一次。
func (s *RefundService) Approve(refundID uint, decidedBy string) (*models.RefundRequest, error) {
	refund, err := s.decide(refundID, decidedBy, constants.RefundStatusApproved, "")
	if err != nil {
		return nil, err
	}
	if err := s.queueClient.EnqueueRefundProcess(queue.RefundProcessPayload{RefundID: refund.ID}); err != nil {
		paymentLogger("refund_id", refund.ID).Errorw("refund_process_enqueue_failed", "error", err)
	}
	return refund, nil
}

// Reject 管理员拒绝退款
func (s *RefundService) Reject(refundID uint, decidedBy, reason string) (*models.RefundRequest, error) {
	return s.decide(refundID, decidedBy, constants.RefundStatusRejected, reason)
}

func (s *RefundService) decide(refundID uint, decidedBy, target, rejectReason string) (*models.RefundRequest, error) {
	if refundID == 0 {
		return nil, ErrRefundNotFound
	}
	var result *models.RefundRequest
	err := s.refundRepo.Transaction(func(tx *gorm.DB) error {
		repo := s.refundRepo.WithTx(tx)
		refund, err := repo.GetByIDForUpdate(refundID)
		if err != nil {
			return err
		}
		if refund == nil {
			return ErrRefundNotFound
		}
		if refund.Status != constants.RefundStatusPending {
			return ErrRefundStatusInvalid
		}

		now := time.Now()
		refund.Status = target
		refund.DecidedBy = strings.TrimSpace(decidedBy)
		refund.DecidedAt = &now
		refund.RejectReason = strings.TrimSpace(rejectReason)
		refund.UpdatedAt = now
		if err := repo.Update(refund); err != nil {
			return ErrRefundUpdateFailed
		}
		result = refund
		return nil
	})
	if err != nil {
		return nil, err
	}

	paymentLogger("refund_id", result.ID, "refund_no", result.RefundNo).
		Infow("refund_decided", "status", result.Status, "decided_by", result.DecidedBy)
	return result, nil
}

// ProcessApprovedRefund 执行已批准的退款：先冲回额度，再请求网关原路退回。
// 网关失败时把已冲回的额度补记回去并置为失败。整个流程可安全重放。
func (s *RefundService) ProcessApprovedRefund(ctx context.Context, refundID uint) error {
	if refundID == 0 {
		return ErrRefundNotFound
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log := paymentLogger("refund_id", refundID)

	var refund *models.RefundRequest
	var payment *models.UnifiedPayment
	err := s.refundRepo.Transaction(func(tx *gorm.DB) error {
		repo := s.refundRepo.WithTx(tx)
		r, err := repo.GetByIDForUpdate(refundID)
		if err != nil {
			return err
		}
		if r == nil {
			return ErrRefundNotFound
		}
		// 重放保护：已终结的申请不再处理
		if r.Status == constants.RefundStatusCompleted ||
			r.Status == constants.RefundStatusFailed ||
			r.Status == constants.RefundStatusRejected {
			refund = r
			return nil
		}
		if r.Status != constants.RefundStatusApproved && r.Status != constants.RefundStatusProcessing {
			return ErrRefundStatusInvalid
		}

		p, err := s.paymentRepo.WithTx(tx).GetByID(r.PaymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPaymentNotFound
		}

		// 先动账：额度冲回，唯一参考号保证重放不重复扣减
		txn, err := s.creditSvc.DebitInTx(tx, r.UserID, r.Amount,
			constants.CreditTxnTypeReversal,
			buildRefundReference(r.ID, "reversal"),
			fmt.Sprintf("退款 %s 额度冲回", r.RefundNo),
			&r.ID,
		)
		if err != nil {
			return err
		}

		now := time.Now()
		r.Status = constants.RefundStatusProcessing
		r.ReversalTxnID = &txn.ID
		r.UpdatedAt = now
		if err := repo.Update(r); err != nil {
			return ErrRefundUpdateFailed
		}
		refund = r
		payment = p
		return nil
	})
	if err != nil {
		log.Errorw("refund_process_prepare_failed", "error", err)
		return err
	}
	if payment == nil {
		// 已终结，无事可做
		return nil
	}

	client, ok := s.gateways[payment.Provider]
	if !ok || client == nil {
		return s.failWithRollback(refund, log, "provider client missing")
	}

	providerRefundID, err := client.Refund(ctx, payment.ProviderPaymentID,
		refund.Amount.String(), refund.RefundNo)
	if err != nil {
		log.Errorw("refund_provider_failed", "error", err)
		return s.failWithRollback(refund, log, err.Error())
	}

	now := time.Now()
	refund.Status = constants.RefundStatusCompleted
	refund.ProviderRefundID = providerRefundID
	refund.ProcessedAt = &now
	refund.UpdatedAt = now
	if err := s.refundRepo.Update(refund); err != nil {
		log.Errorw("refund_complete_update_failed", "error", err)
		return ErrRefundUpdateFailed
	}

	s.notifySvc.RefundCompleted(refund)
	log.Infow("refund_completed",
		"refund_no", refund.RefundNo,
		"provider_refund_id", providerRefundID,
	)
	return nil
}

// failWithRollback 网关退款失败：补回已冲减的额度并终结申请
func (s *RefundService) failWithRollback(refund *models.RefundRequest, log *zap.SugaredLogger, reason string) error {
	err := s.refundRepo.Transaction(func(tx *gorm.DB) error {
		if _, err := s.creditSvc.CreditInTx(tx, refund.UserID, refund.Amount,
			constants.CreditTxnTypeRollback,
			buildRefundReference(refund.ID, "rollback"),
			fmt.Sprintf("退款 %s 失败，额度回补", refund.RefundNo),
			&refund.ID,
		); err != nil {
			return err
		}

		now := time.Now()
		refund.Status = constants.RefundStatusFailed
		refund.RejectReason = strings.TrimSpace(reason)
		refund.ProcessedAt = &now
		refund.UpdatedAt = now
		return s.refundRepo.WithTx(tx).Update(refund)
	})
	if err != nil {
		log.Errorw("refund_rollback_failed", "error", err)
		return ErrRefundUpdateFailed
	}

	s.notifySvc.RefundFailed(refund)
	log.Infow("refund_failed_rolled_back", "refund_no", refund.RefundNo)
	return nil
}

// GetByRefundNo 按退款单号查询当前用户的申请
func (s *RefundService) GetByRefundNo(userID uint, refundNo string) (*models.RefundRequest, error) {
	refund, err := s.refundRepo.GetByRefundNo(refundNo)
	if err != nil {
		return nil, err
	}
	if refund == nil || refund.UserID != userID {
		return nil, ErrRefundNotFound
	}
	return refund, nil
}

// ListAdmin 管理端查询退款申请
func (s *RefundService) ListAdmin(filter repository.RefundListFilter) ([]models.RefundRequest, int64, error) {
	return s.refundRepo.ListAdmin(filter)
}

func buildRefundNo() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return fmt.Sprintf("RF%s%s", time.Now().Format("20060102150405"), strings.ToUpper(suffix))
}
