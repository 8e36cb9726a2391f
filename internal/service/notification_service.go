package service

import (
	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/queue"
)

// NotificationService 用户通知分发。
// 仅负责入队，实际投递由 worker 消费 notification:dispatch 完成。
type NotificationService struct {
	queueClient *queue.Client
}

// NewNotificationService 创建通知服务
func NewNotificationService(queueClient *queue.Client) *NotificationService {
	return &NotificationService{queueClient: queueClient}
}

func (s *NotificationService) dispatch(userID uint, event string, payload map[string]interface{}) {
	if s == nil || userID == 0 {
		return
	}
	if err := s.queueClient.EnqueueNotification(queue.NotificationDispatchPayload{
		UserID:  userID,
		Event:   event,
		Payload: payload,
	}); err != nil {
		paymentLogger("user_id", userID, "event", event).
			Warnw("notification_enqueue_failed", "error", err)
	}
}

func paymentNotifyPayload(payment *models.UnifiedPayment) map[string]interface{} {
	if payment == nil {
		return nil
	}
	return map[string]interface{}{
		"payment_id": payment.ID,
		"provider":   payment.Provider,
		"purpose":    payment.Purpose,
		"amount":     payment.Amount.String(),
		"currency":   payment.Currency,
	}
}

// PaymentSucceeded 支付成功通知
func (s *NotificationService) PaymentSucceeded(payment *models.UnifiedPayment) {
	if payment == nil {
		return
	}
	s.dispatch(payment.UserID, constants.NotifyEventPaymentSucceeded, paymentNotifyPayload(payment))
}

// PaymentFailed 支付失败通知
func (s *NotificationService) PaymentFailed(payment *models.UnifiedPayment) {
	if payment == nil {
		return
	}
	payload := paymentNotifyPayload(payment)
	payload["failure_bucket"] = payment.FailureBucket
	s.dispatch(payment.UserID, constants.NotifyEventPaymentFailed, payload)
}

// RenewalSucceeded 续费成功通知
func (s *NotificationService) RenewalSucceeded(payment *models.UnifiedPayment) {
	if payment == nil {
		return
	}
	s.dispatch(payment.UserID, constants.NotifyEventRenewalSucceeded, paymentNotifyPayload(payment))
}

// RenewalFailed 续费失败通知
func (s *NotificationService) RenewalFailed(payment *models.UnifiedPayment) {
	if payment == nil {
		return
	}
	payload := paymentNotifyPayload(payment)
	payload["decline_code"] = payment.DeclineCode
	s.dispatch(payment.UserID, constants.NotifyEventRenewalFailed, payload)
}

// AutoRenewDisabled 自动续费已停用通知
func (s *NotificationService) AutoRenewDisabled(userID, subscriptionID uint, declineCode string) {
	s.dispatch(userID, constants.NotifyEventAutoRenewDisabled, map[string]interface{}{
		"subscription_id": subscriptionID,
		"decline_code":    declineCode,
	})
}

// CreditAllocated 额度到账通知
func (s *NotificationService) CreditAllocated(payment *models.UnifiedPayment) {
	if payment == nil {
		return
	}
	payload := paymentNotifyPayload(payment)
	payload["received_amount"] = payment.ReceivedAmount.String()
	s.dispatch(payment.UserID, constants.NotifyEventCreditAllocated, payload)
}

// RefundCompleted 退款完成通知
func (s *NotificationService) RefundCompleted(refund *models.RefundRequest) {
	if refund == nil {
		return
	}
	s.dispatch(refund.UserID, constants.NotifyEventRefundCompleted, map[string]interface{}{
		"refund_no": refund.RefundNo,
		"amount":    refund.Amount.String(),
		"currency":  refund.Currency,
	})
}

// RefundFailed 退款失败通知
func (s *NotificationService) RefundFailed(refund *models.RefundRequest) {
	if refund == nil {
		return
	}
	s.dispatch(refund.UserID, constants.NotifyEventRefundFailed, map[string]interface{}{
		"refund_no": refund.RefundNo,
		"amount":    refund.Amount.String(),
		"currency":  refund.Currency,
	})
}
