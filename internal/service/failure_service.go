package service

import (
	"strings"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/queue"
	"github.com/subpay-core/internal/repository"
)

// FailureConfig 失败处理配置
type FailureConfig struct {
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	MaxAttempts    int
}

func (c FailureConfig) normalized() FailureConfig {
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Minute
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// FailureService 支付失败分类与重试调度
type FailureService struct {
	paymentRepo   repository.PaymentRepository
	adminTaskRepo repository.AdminTaskRepository
	couponRepo    repository.CouponRedemptionRepository
	queueClient   *queue.Client
	cfg           FailureConfig
}

// NewFailureService 创建失败处理服务
func NewFailureService(
	paymentRepo repository.PaymentRepository,
	adminTaskRepo repository.AdminTaskRepository,
	couponRepo repository.CouponRedemptionRepository,
	queueClient *queue.Client,
	cfg FailureConfig,
) *FailureService {
	return &FailureService{
		paymentRepo:   paymentRepo,
		adminTaskRepo: adminTaskRepo,
		couponRepo:    couponRepo,
		queueClient:   queueClient,
		cfg:           cfg.normalized(),
	}
}

// 卡组织侧表示凭据已永久不可用的拒绝码，命中即停止自动续费
var hardDeclineCodes = map[string]struct{}{
	"expired_card":    {},
	"stolen_card":     {},
	"lost_card":       {},
	"fraudulent":      {},
	"invalid_account": {},
	"pickup_card":     {},
	"restricted_card": {},
}

// IsHardDecline 判断拒绝码是否为不可恢复的硬拒绝
func IsHardDecline(declineCode string) bool {
	_, ok := hardDeclineCodes[strings.ToLower(strings.TrimSpace(declineCode))]
	return ok
}

// ClassifyFailure 将失败原因归入处理桶
func ClassifyFailure(status, reason, declineCode string) string {
	reason = strings.ToLower(strings.TrimSpace(reason))
	declineCode = strings.ToLower(strings.TrimSpace(declineCode))

	switch {
	case status == constants.PaymentStatusExpired:
		return constants.FailureBucketExpired
	case strings.Contains(reason, "partial") || strings.Contains(reason, "underpaid") ||
		declineCode == "insufficient_funds":
		return constants.FailureBucketInsufficientPayment
	case strings.Contains(reason, "timeout") || strings.Contains(reason, "connection") ||
		strings.Contains(reason, "unreachable") || strings.Contains(reason, "network"):
		return constants.FailureBucketNetworkError
	case strings.Contains(reason, "webhook") || strings.Contains(reason, "signature") ||
		strings.Contains(reason, "monitor"):
		return constants.FailureBucketMonitoringError
	case strings.Contains(reason, "internal") || strings.Contains(reason, "database") ||
		strings.Contains(reason, "panic"):
		return constants.FailureBucketSystemError
	default:
		return constants.FailureBucketFailed
	}
}

// IsRetryableBucket 判断处理桶是否允许自动重试。
// 瞬态故障（网络、监听、系统）可重试，业务性失败交由用户或人工处理。
func IsRetryableBucket(bucket string) bool {
	switch bucket {
	case constants.FailureBucketNetworkError,
		constants.FailureBucketMonitoringError,
		constants.FailureBucketSystemError:
		return true
	default:
		return false
	}
}

// RetryDelay 计算下一次重试的等待时长
func (s *FailureService) RetryDelay(attempt int) time.Duration {
	return backoffDelay(s.cfg.RetryBaseDelay, s.cfg.RetryMaxDelay, attempt)
}

// MaxAttempts 返回允许的最大重试次数
func (s *FailureService) MaxAttempts() int {
	return s.cfg.MaxAttempts
}

// ScheduleRetry 按指定延迟排期一次支付重试
func (s *FailureService) ScheduleRetry(paymentID uint, attempt int, delay time.Duration) error {
	return s.queueClient.EnqueuePaymentRetry(queue.PaymentRetryPayload{
		PaymentID: paymentID,
		Attempt:   attempt,
	}, delay)
}

// HandleFailure 对失败支付分类并调度重试或升级。
// 调用方保证 payment 已处于失败类状态。
func (s *FailureService) HandleFailure(payment *models.UnifiedPayment, reason string) error {
	if payment == nil || payment.ID == 0 {
		return ErrPaymentInvalid
	}

	bucket := ClassifyFailure(payment.Status, reason, payment.DeclineCode)
	log := paymentLogger(
		"payment_id", payment.ID,
		"provider", payment.Provider,
		"failure_bucket", bucket,
		"attempt_count", payment.AttemptCount,
	)

	now := time.Now()
	updates := map[string]interface{}{
		"failure_bucket": bucket,
		"failure_reason": strings.TrimSpace(reason),
		"updated_at":     now,
	}

	if !IsRetryableBucket(bucket) {
		updates["next_retry_at"] = nil
		if err := s.paymentRepo.UpdateFields(payment.ID, updates); err != nil {
			log.Errorw("payment_failure_update_failed", "error", err)
			return ErrPaymentUpdateFailed
		}
		s.cleanupTerminalFailure(payment, now)
		log.Infow("payment_failure_terminal")
		return nil
	}

	attempt := payment.AttemptCount + 1
	if attempt > s.cfg.MaxAttempts {
		updates["next_retry_at"] = nil
		if err := s.paymentRepo.UpdateFields(payment.ID, updates); err != nil {
			log.Errorw("payment_failure_update_failed", "error", err)
			return ErrPaymentUpdateFailed
		}
		if err := s.escalate(payment, bucket, reason, now); err != nil {
			log.Errorw("payment_failure_escalate_failed", "error", err)
			return err
		}
		log.Warnw("payment_failure_escalated", "max_attempts", s.cfg.MaxAttempts)
		return nil
	}

	delay := s.RetryDelay(attempt)
	nextRetryAt := now.Add(delay)
	updates["attempt_count"] = attempt
	updates["next_retry_at"] = nextRetryAt
	if err := s.paymentRepo.UpdateFields(payment.ID, updates); err != nil {
		log.Errorw("payment_failure_update_failed", "error", err)
		return ErrPaymentUpdateFailed
	}

	if err := s.queueClient.EnqueuePaymentRetry(queue.PaymentRetryPayload{
		PaymentID: payment.ID,
		Attempt:   attempt,
	}, delay); err != nil {
		log.Errorw("payment_retry_enqueue_failed", "error", err)
		return err
	}
	log.Infow("payment_retry_scheduled", "attempt", attempt, "delay", delay.String())
	return nil
}

// cleanupTerminalFailure 终态失败的收尾：释放订单上预占的优惠券
func (s *FailureService) cleanupTerminalFailure(payment *models.UnifiedPayment, now time.Time) {
	if payment.OrderID == nil || s.couponRepo == nil {
		return
	}
	redemption, err := s.couponRepo.GetReservedByOrderID(*payment.OrderID)
	if err != nil || redemption == nil {
		return
	}
	if err := s.couponRepo.Void(redemption.ID, now); err != nil {
		paymentLogger("payment_id", payment.ID, "order_id", *payment.OrderID).
			Errorw("coupon_void_failed", "error", err)
	}
}

// escalate 超过重试上限后升级为人工处理任务
func (s *FailureService) escalate(payment *models.UnifiedPayment, bucket, reason string, now time.Time) error {
	task := &models.AdminTask{
		Type:      constants.AdminTaskTypePaymentEscalation,
		Status:    constants.AdminTaskStatusOpen,
		Title:     "支付重试超限，需人工介入",
		PaymentID: &payment.ID,
		OrderID:   payment.OrderID,
		Detail: models.JSON{
			"provider":            payment.Provider,
			"provider_payment_id": payment.ProviderPaymentID,
			"failure_bucket":      bucket,
			"failure_reason":      strings.TrimSpace(reason),
			"attempt_count":       payment.AttemptCount,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.adminTaskRepo.Create(task); err != nil {
		return err
	}
	return s.queueClient.EnqueueAdminAlert(queue.AdminAlertPayload{
		TaskID: task.ID,
		Type:   task.Type,
		Title:  task.Title,
	})
}
