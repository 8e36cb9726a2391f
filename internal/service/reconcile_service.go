package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/lock"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/paystatus"
	"github.com/subpay-core/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReconcileOutcome 对账处理结果
type ReconcileOutcome string

const (
	// OutcomeApplied 事件已应用，状态发生迁移
	OutcomeApplied ReconcileOutcome = "applied"
	// OutcomeDuplicateIgnored 重复事件，已忽略
	OutcomeDuplicateIgnored ReconcileOutcome = "duplicate_ignored"
	// OutcomeRegressionIgnored 事件优先级低于当前状态，已忽略
	OutcomeRegressionIgnored ReconcileOutcome = "regression_ignored"
	// OutcomeMetadataMerged 同优先级事件，仅合并元数据
	OutcomeMetadataMerged ReconcileOutcome = "metadata_merged"
	// OutcomeRejected 事件无效，已拒绝
	OutcomeRejected ReconcileOutcome = "rejected"
)

// ReconcileEventInput 对账事件输入
type ReconcileEventInput struct {
	Context           context.Context
	Provider          string
	EventID           string // 为空时由载荷推导
	ProviderPaymentID string
	EventType         string
	RawStatus         string
	Amount            string // 应收金额（网关口径）
	ReceivedAmount    string // 实收金额
	Currency          string
	DeclineCode       string
	FailureReason     string
	Payload           models.JSON
}

// ReconcileResult 对账处理结果
type ReconcileResult struct {
	Outcome ReconcileOutcome
	Payment *models.UnifiedPayment
}

// ReconcileService 支付事件对账编排
type ReconcileService struct {
	paymentRepo      repository.PaymentRepository
	eventRepo        repository.PaymentEventRepository
	orderRepo        repository.OrderRepository
	subscriptionRepo repository.SubscriptionRepository
	paymentItemRepo  repository.PaymentItemRepository
	couponRepo       repository.CouponRedemptionRepository
	adminTaskRepo    repository.AdminTaskRepository
	creditSvc        *CreditService
	failureSvc       *FailureService
	notifySvc        *NotificationService
	lockMgr          *lock.Manager
	gateways         map[string]ProviderClient
	syncBatchSize    int
}

// NewReconcileService 创建对账服务
func NewReconcileService(
	paymentRepo repository.PaymentRepository,
	eventRepo repository.PaymentEventRepository,
	orderRepo repository.OrderRepository,
	subscriptionRepo repository.SubscriptionRepository,
	paymentItemRepo repository.PaymentItemRepository,
	couponRepo repository.CouponRedemptionRepository,
	adminTaskRepo repository.AdminTaskRepository,
	creditSvc *CreditService,
	failureSvc *FailureService,
	notifySvc *NotificationService,
	lockMgr *lock.Manager,
	gateways map[string]ProviderClient,
	syncBatchSize int,
) *ReconcileService {
	if syncBatchSize <= 0 {
		syncBatchSize = 50
	}
	return &ReconcileService{
		paymentRepo:      paymentRepo,
		eventRepo:        eventRepo,
		orderRepo:        orderRepo,
		subscriptionRepo: subscriptionRepo,
		paymentItemRepo:  paymentItemRepo,
		couponRepo:       couponRepo,
		adminTaskRepo:    adminTaskRepo,
		creditSvc:        creditSvc,
		failureSvc:       failureSvc,
		notifySvc:        notifySvc,
		lockMgr:          lockMgr,
		gateways:         gateways,
		syncBatchSize:    syncBatchSize,
	}
}

// DeriveEventID 为缺少事件 ID 的回调推导确定性 ID。
// 同一支付单同一状态的重放会落到同一条事件记录上。
func DeriveEventID(provider, providerPaymentID, rawStatus string, payload models.JSON) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(provider)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(providerPaymentID)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(rawStatus))))
	if len(payload) > 0 {
		if body, err := json.Marshal(payload); err == nil {
			h.Write([]byte{0})
			h.Write(body)
		}
	}
	return "drv_" + hex.EncodeToString(h.Sum(nil))[:40]
}

// ProcessEvent 处理一条支付事件：去重、加锁、状态归一、按优先级应用
func (s *ReconcileService) ProcessEvent(input ReconcileEventInput) (*ReconcileResult, error) {
	provider := strings.TrimSpace(input.Provider)
	providerPaymentID := strings.TrimSpace(input.ProviderPaymentID)
	if provider == "" || providerPaymentID == "" {
		return nil, ErrEventInvalid
	}
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}

	eventID := strings.TrimSpace(input.EventID)
	if eventID == "" {
		eventID = DeriveEventID(provider, providerPaymentID, input.RawStatus, input.Payload)
	}

	log := paymentLogger(
		"provider", provider,
		"provider_payment_id", providerPaymentID,
		"event_id", eventID,
		"event_type", input.EventType,
		"raw_status", input.RawStatus,
	)
	log.Infow("payment_event_received")

	firstSeen, err := s.eventRepo.Record(&models.PaymentEvent{
		Provider:          provider,
		EventID:           eventID,
		ProviderPaymentID: providerPaymentID,
		EventType:         strings.TrimSpace(input.EventType),
		ProviderStatus:    strings.TrimSpace(input.RawStatus),
		Payload:           input.Payload,
		ReceivedAt:        time.Now(),
	})
	if err != nil {
		log.Errorw("payment_event_record_failed", "error", err)
		return nil, ErrEventRecordFailed
	}
	if !firstSeen {
		log.Infow("payment_event_duplicate")
		payment, _ := s.paymentRepo.GetByProviderPaymentID(provider, providerPaymentID)
		return &ReconcileResult{Outcome: OutcomeDuplicateIgnored, Payment: payment}, nil
	}

	var result *ReconcileResult
	lockKey := provider + ":" + providerPaymentID
	err = s.lockMgr.WithLock(ctx, lockKey, func(ctx context.Context) error {
		r, applyErr := s.applyEvent(input, provider, providerPaymentID, log)
		result = r
		return applyErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ReconcileService) applyEvent(input ReconcileEventInput, provider, providerPaymentID string, log *zap.SugaredLogger) (*ReconcileResult, error) {
	payment, err := s.paymentRepo.GetByProviderPaymentID(provider, providerPaymentID)
	if err != nil {
		log.Errorw("payment_event_payment_fetch_failed", "error", err)
		return nil, ErrOrderFetchFailed
	}
	if payment == nil {
		log.Warnw("payment_event_payment_not_found")
		return nil, ErrPaymentNotFound
	}

	status := paystatus.Normalize(provider, input.RawStatus)
	newPriority := paystatus.Priority(status)
	currentPriority := paystatus.Priority(payment.Status)

	if newPriority < currentPriority {
		log.Infow("payment_event_regression_ignored",
			"current_status", payment.Status,
			"event_status", status,
		)
		return &ReconcileResult{Outcome: OutcomeRegressionIgnored, Payment: payment}, nil
	}
	if newPriority == currentPriority {
		if err := s.mergeEventMeta(payment, input); err != nil {
			log.Errorw("payment_event_meta_merge_failed", "error", err)
			return nil, ErrPaymentUpdateFailed
		}
		log.Infow("payment_event_metadata_merged", "status", payment.Status)
		return &ReconcileResult{Outcome: OutcomeMetadataMerged, Payment: payment}, nil
	}

	previousStatus := payment.Status
	updated, err := s.applyTransition(payment, status, input, log)
	if err != nil {
		return nil, err
	}
	log.Infow("payment_event_applied",
		"previous_status", previousStatus,
		"new_status", updated.Status,
		"purpose", updated.Purpose,
	)
	return &ReconcileResult{Outcome: OutcomeApplied, Payment: updated}, nil
}

// mergeEventMeta 同优先级事件只更新网关侧元数据，不改变状态
func (s *ReconcileService) mergeEventMeta(payment *models.UnifiedPayment, input ReconcileEventInput) error {
	now := time.Now()
	payment.ProviderStatus = strings.TrimSpace(input.RawStatus)
	payment.CallbackAt = &now
	payment.Metadata = payment.Metadata.Merge(input.Payload)
	payment.UpdatedAt = now
	return s.paymentRepo.Update(payment)
}

// applyTransition 应用更高优先级的状态并执行对应的业务结算
func (s *ReconcileService) applyTransition(payment *models.UnifiedPayment, status string, input ReconcileEventInput, log *zap.SugaredLogger) (*models.UnifiedPayment, error) {
	now := time.Now()
	received := parseEventMoney(input.ReceivedAmount, input.Amount)

	if status == constants.PaymentStatusSucceeded {
		if err := models.DB.Transaction(func(tx *gorm.DB) error {
			payment.Status = status
			payment.ProviderStatus = strings.TrimSpace(input.RawStatus)
			payment.ReceivedAmount = received
			payment.DeclineCode = strings.TrimSpace(input.DeclineCode)
			payment.Metadata = payment.Metadata.Merge(input.Payload)
			payment.PaidAt = &now
			payment.CallbackAt = &now
			payment.UpdatedAt = now
			if err := s.paymentRepo.WithTx(tx).Update(payment); err != nil {
				return ErrPaymentUpdateFailed
			}

			switch payment.Purpose {
			case constants.PaymentPurposeCheckout:
				return s.settleCheckout(tx, payment, received, input.Currency, now)
			case constants.PaymentPurposeTopUp:
				_, err := s.creditSvc.AllocateInTx(tx, AllocateInput{
					Payment:        payment,
					ReceivedAmount: received,
					Currency:       input.Currency,
				})
				return err
			case constants.PaymentPurposeRenewal:
				return s.settleRenewal(tx, payment, now)
			default:
				return ErrPaymentInvalid
			}
		}); err != nil {
			// 实收不足容差：网关视角成功，业务上按终态失败收口，
			// 否则支付单会卡在进行中且后续同步全部命中去重
			if errors.Is(err, ErrCreditAmountTooLow) {
				return s.failUnderpaid(payment, input, received, now, log)
			}
			log.Errorw("payment_settle_failed", "error", err)
			return nil, err
		}

		if payment.Purpose == constants.PaymentPurposeCheckout {
			s.ensureSubscriptions(payment, log)
		}
		s.afterSuccess(payment, log)
		return payment, nil
	}

	// 非成功迁移：先落状态，终态失败再走失败处理
	payment.Status = status
	payment.ProviderStatus = strings.TrimSpace(input.RawStatus)
	payment.DeclineCode = strings.TrimSpace(input.DeclineCode)
	payment.FailureReason = strings.TrimSpace(input.FailureReason)
	payment.Metadata = payment.Metadata.Merge(input.Payload)
	payment.CallbackAt = &now
	payment.UpdatedAt = now
	if err := s.paymentRepo.Update(payment); err != nil {
		log.Errorw("payment_status_update_failed", "error", err)
		return nil, ErrPaymentUpdateFailed
	}

	if paystatus.IsTerminalFailure(status) {
		if payment.Purpose == constants.PaymentPurposeRenewal {
			if err := s.applyRenewalFailure(payment, log); err != nil {
				return nil, err
			}
		} else if err := s.failureSvc.HandleFailure(payment, input.FailureReason); err != nil {
			return nil, err
		}
		s.notifySvc.PaymentFailed(payment)
	}
	return payment, nil
}

// failUnderpaid 实收金额低于容差下限的成功事件按终态失败落库。
// 失败处理链会将其归入 insufficient_payment 桶并完成收尾。
func (s *ReconcileService) failUnderpaid(payment *models.UnifiedPayment, input ReconcileEventInput, received models.Money, now time.Time, log *zap.SugaredLogger) (*models.UnifiedPayment, error) {
	payment.Status = constants.PaymentStatusFailed
	payment.ProviderStatus = strings.TrimSpace(input.RawStatus)
	payment.ReceivedAmount = received
	payment.FailureReason = "underpaid: received amount below tolerance"
	payment.Metadata = payment.Metadata.Merge(input.Payload)
	payment.PaidAt = nil
	payment.CallbackAt = &now
	payment.UpdatedAt = now
	if err := s.paymentRepo.Update(payment); err != nil {
		log.Errorw("payment_status_update_failed", "error", err)
		return nil, ErrPaymentUpdateFailed
	}

	if err := s.failureSvc.HandleFailure(payment, payment.FailureReason); err != nil {
		return nil, err
	}
	s.notifySvc.PaymentFailed(payment)
	log.Warnw("payment_underpaid_terminal",
		"expected", payment.Amount.String(),
		"received", received.String(),
	)
	return payment, nil
}

// afterSuccess 结算提交后的异步通知
func (s *ReconcileService) afterSuccess(payment *models.UnifiedPayment, log *zap.SugaredLogger) {
	switch payment.Purpose {
	case constants.PaymentPurposeRenewal:
		s.notifySvc.RenewalSucceeded(payment)
	case constants.PaymentPurposeTopUp:
		s.notifySvc.CreditAllocated(payment)
	default:
		s.notifySvc.PaymentSucceeded(payment)
	}
}

// SyncPayment 主动拉取网关状态并按事件路径处理。
// Webhook 丢失或延迟时由该路径兜底。
func (s *ReconcileService) SyncPayment(ctx context.Context, paymentID uint) (*ReconcileResult, error) {
	if paymentID == 0 {
		return nil, ErrPaymentNotFound
	}
	payment, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if paystatus.IsTerminal(payment.Status) {
		return &ReconcileResult{Outcome: OutcomeDuplicateIgnored, Payment: payment}, nil
	}

	client, ok := s.gateways[payment.Provider]
	if !ok || client == nil {
		return nil, ErrPaymentInvalid
	}
	status, err := client.GetStatus(ctx, payment.ProviderPaymentID)
	if err != nil {
		paymentLogger("payment_id", payment.ID, "provider", payment.Provider).
			Errorw("payment_sync_provider_failed", "error", err)
		return nil, ErrPaymentProviderFailed
	}

	return s.ProcessEvent(ReconcileEventInput{
		Context:           ctx,
		Provider:          payment.Provider,
		ProviderPaymentID: payment.ProviderPaymentID,
		EventType:         "status_sync",
		RawStatus:         status.Status,
		Amount:            status.Amount,
		ReceivedAmount:    status.ReceivedAmount,
		Currency:          status.Currency,
		DeclineCode:       status.DeclineCode,
	})
}

// SyncOpenPayments 批量同步仍在途的支付单
func (s *ReconcileService) SyncOpenPayments(ctx context.Context, provider string) (int, error) {
	payments, err := s.paymentRepo.ListOpenByProvider(provider, time.Now(), s.syncBatchSize)
	if err != nil {
		return 0, err
	}
	synced := 0
	for i := range payments {
		if _, err := s.SyncPayment(ctx, payments[i].ID); err != nil {
			paymentLogger("payment_id", payments[i].ID).
				Warnw("payment_sync_failed", "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

func parseEventMoney(values ...string) models.Money {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if m, err := models.NewMoneyFromString(v); err == nil {
			return m
		}
	}
	return models.MoneyZero()
}
