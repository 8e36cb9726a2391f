package service

import (
	"fmt"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// settleRenewal 在事务内结算续费扣款。
// (subscription_id, cycle_end) 唯一键充当周期锁：插入失败说明
// 该周期已被其它支付结算过，本次为幂等重放。
func (s *ReconcileService) settleRenewal(tx *gorm.DB, payment *models.UnifiedPayment, now time.Time) error {
	if payment.SubscriptionID == nil {
		return ErrSubscriptionNotFound
	}
	subRepo := s.subscriptionRepo.WithTx(tx)
	sub, err := subRepo.GetByIDForUpdate(*payment.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}

	cycleEnd := repository.TruncateCycleDate(sub.EndDate)
	created, err := subRepo.CreateRenewalCycle(&models.RenewalCycle{
		SubscriptionID: sub.ID,
		CycleEnd:       cycleEnd,
		PaymentID:      payment.ID,
		CreatedAt:      now,
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	newEnd := addBillingTerm(sub.EndDate, sub.BillingTerm)
	sub.Status = constants.SubscriptionStatusActive
	sub.EndDate = newEnd
	sub.NextBillingAt = &newEnd
	sub.RenewAttempts = 0
	sub.UpdatedAt = now
	if err := subRepo.Update(sub); err != nil {
		return ErrSubscriptionUpdateFailed
	}

	// 续费交付为人工流程，开工单跟进
	task := &models.AdminTask{
		Type:           constants.AdminTaskTypeManualFulfillment,
		Status:         constants.AdminTaskStatusOpen,
		Title:          fmt.Sprintf("订阅 %s 续费到账，待交付", sub.PlanName),
		PaymentID:      &payment.ID,
		SubscriptionID: &sub.ID,
		Detail: models.JSON{
			"billing_term":  sub.BillingTerm,
			"cycle_end":     cycleEnd.Format("2006-01-02"),
			"new_end_date":  newEnd.Format("2006-01-02"),
			"amount":        payment.Amount.String(),
			"currency":      payment.Currency,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.adminTaskRepo.WithTx(tx).Create(task)
}

// applyRenewalFailure 续费失败处理：硬拒绝停用自动续费，软失败按退避重试
func (s *ReconcileService) applyRenewalFailure(payment *models.UnifiedPayment, log *zap.SugaredLogger) error {
	if payment.SubscriptionID == nil {
		return ErrSubscriptionNotFound
	}
	sub, err := s.subscriptionRepo.GetByID(*payment.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}

	now := time.Now()
	sub.RenewAttempts++
	sub.UpdatedAt = now

	if IsHardDecline(payment.DeclineCode) {
		sub.AutoRenew = false
		if err := s.subscriptionRepo.Update(sub); err != nil {
			return ErrSubscriptionUpdateFailed
		}
		s.notifySvc.AutoRenewDisabled(sub.UserID, sub.ID, payment.DeclineCode)
		log.Warnw("renewal_hard_decline",
			"subscription_id", sub.ID,
			"decline_code", payment.DeclineCode,
		)
		return nil
	}

	// 用户已关闭自动续费：只记录本次失败，不排期重试
	if !sub.AutoRenew {
		if err := s.subscriptionRepo.Update(sub); err != nil {
			return ErrSubscriptionUpdateFailed
		}
		log.Infow("renewal_retry_skipped",
			"subscription_id", sub.ID,
			"attempts", sub.RenewAttempts,
		)
		return nil
	}

	// 软失败重试额度用尽：停用自动续费并转人工，避免周期性重复扣款
	if sub.RenewAttempts >= s.failureSvc.MaxAttempts() {
		sub.AutoRenew = false
		if err := s.subscriptionRepo.Update(sub); err != nil {
			return ErrSubscriptionUpdateFailed
		}
		if err := s.failureSvc.escalate(payment, constants.FailureBucketFailed, "renewal retries exhausted", now); err != nil {
			return err
		}
		s.notifySvc.AutoRenewDisabled(sub.UserID, sub.ID, payment.DeclineCode)
		log.Warnw("renewal_retries_exhausted",
			"subscription_id", sub.ID,
			"attempts", sub.RenewAttempts,
		)
		return nil
	}

	if err := s.subscriptionRepo.Update(sub); err != nil {
		return ErrSubscriptionUpdateFailed
	}

	// 重试锚定在账期节点上：从周期末尾起按指数退避排期
	delay := s.failureSvc.RetryDelay(sub.RenewAttempts)
	if until := time.Until(sub.EndDate); until > delay {
		delay = until
	}
	if err := s.failureSvc.ScheduleRetry(payment.ID, sub.RenewAttempts, delay); err != nil {
		log.Errorw("renewal_retry_enqueue_failed", "error", err)
		return err
	}
	s.notifySvc.RenewalFailed(payment)
	log.Infow("renewal_retry_scheduled",
		"subscription_id", sub.ID,
		"attempt", sub.RenewAttempts,
		"delay", delay.String(),
	)
	return nil
}
