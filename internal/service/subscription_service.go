package service

import (
	"context"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/repository"
)

// SubscriptionService 订阅查询与续费触发
type SubscriptionService struct {
	subscriptionRepo repository.SubscriptionRepository
	paymentSvc       *PaymentService
}

// NewSubscriptionService 创建订阅服务
func NewSubscriptionService(subscriptionRepo repository.SubscriptionRepository, paymentSvc *PaymentService) *SubscriptionService {
	return &SubscriptionService{
		subscriptionRepo: subscriptionRepo,
		paymentSvc:       paymentSvc,
	}
}

// ListByUser 获取用户订阅列表
func (s *SubscriptionService) ListByUser(userID uint) ([]models.Subscription, error) {
	if userID == 0 {
		return nil, ErrUserNotFound
	}
	return s.subscriptionRepo.ListByUser(userID)
}

// GetByIDForUser 查询当前用户的订阅
func (s *SubscriptionService) GetByIDForUser(id, userID uint) (*models.Subscription, error) {
	sub, err := s.subscriptionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.UserID != userID {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// SetAutoRenew 用户开关自动续费
func (s *SubscriptionService) SetAutoRenew(id, userID uint, enabled bool) (*models.Subscription, error) {
	sub, err := s.GetByIDForUser(id, userID)
	if err != nil {
		return nil, err
	}
	if sub.AutoRenew == enabled {
		return sub, nil
	}
	sub.AutoRenew = enabled
	sub.UpdatedAt = time.Now()
	if err := s.subscriptionRepo.Update(sub); err != nil {
		return nil, ErrSubscriptionUpdateFailed
	}
	paymentLogger("subscription_id", sub.ID, "user_id", userID).
		Infow("subscription_auto_renew_changed", "enabled", enabled)
	return sub, nil
}

// Cancel 用户取消订阅。当前周期继续有效，到期后不再续费。
func (s *SubscriptionService) Cancel(id, userID uint) (*models.Subscription, error) {
	sub, err := s.GetByIDForUser(id, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == constants.SubscriptionStatusCanceled {
		return sub, nil
	}
	now := time.Now()
	sub.Status = constants.SubscriptionStatusCanceled
	sub.AutoRenew = false
	sub.CanceledAt = &now
	sub.NextBillingAt = nil
	sub.UpdatedAt = now
	if err := s.subscriptionRepo.Update(sub); err != nil {
		return nil, ErrSubscriptionUpdateFailed
	}
	paymentLogger("subscription_id", sub.ID, "user_id", userID).
		Infow("subscription_canceled")
	return sub, nil
}

// InitiateDueRenewals 为到期订阅批量发起续费扣款，返回成功发起的数量
func (s *SubscriptionService) InitiateDueRenewals(ctx context.Context, limit int) (int, error) {
	subs, err := s.subscriptionRepo.ListDueForRenewal(time.Now(), limit)
	if err != nil {
		return 0, err
	}
	initiated := 0
	for i := range subs {
		sub := &subs[i]
		if _, err := s.paymentSvc.CreateRenewalPayment(CreateRenewalPaymentInput{
			Context:        ctx,
			SubscriptionID: sub.ID,
		}); err != nil {
			paymentLogger("subscription_id", sub.ID).
				Warnw("renewal_initiate_failed", "error", err)
			continue
		}
		// 扣款已在途：推迟下一次扫描命中，等待对账结果推进周期
		next := sub.EndDate.Add(24 * time.Hour)
		sub.NextBillingAt = &next
		sub.UpdatedAt = time.Now()
		if err := s.subscriptionRepo.Update(sub); err != nil {
			paymentLogger("subscription_id", sub.ID).
				Warnw("renewal_reschedule_failed", "error", err)
		}
		initiated++
	}
	return initiated, nil
}
