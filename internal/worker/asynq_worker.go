package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/logger"
	"github.com/subpay-core/internal/provider"
	"github.com/subpay-core/internal/queue"
	"github.com/subpay-core/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentRetry, c.handlePaymentRetry)
	mux.HandleFunc(queue.TaskPaymentSyncStatus, c.handlePaymentSyncStatus)
	mux.HandleFunc(queue.TaskRefundProcess, c.handleRefundProcess)
	mux.HandleFunc(queue.TaskNotificationDispatch, c.handleNotificationDispatch)
	mux.HandleFunc(queue.TaskAdminAlert, c.handleAdminAlert)
}

// handlePaymentRetry 支付重试。
// 续费支付重新发起扣款，其余用途只向提供方拉取最新状态。
func (c *Consumer) handlePaymentRetry(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_retry_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_retry_unmarshal_failed", "error", err)
		return err
	}
	if payload.PaymentID == 0 {
		logger.Debugw("worker_payment_retry_skip_invalid_payload", "payment_id", payload.PaymentID)
		return nil
	}
	payment, err := c.PaymentRepo.GetByID(payload.PaymentID)
	if err != nil {
		logger.Warnw("worker_payment_retry_fetch_failed", "payment_id", payload.PaymentID, "error", err)
		return err
	}
	if payment == nil {
		logger.Debugw("worker_payment_retry_skip_payment_not_found", "payment_id", payload.PaymentID)
		return nil
	}

	if payment.Purpose == constants.PaymentPurposeRenewal && payment.SubscriptionID != nil {
		_, err := c.PaymentService.CreateRenewalPayment(service.CreateRenewalPaymentInput{
			Context:        ctx,
			SubscriptionID: *payment.SubscriptionID,
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, service.ErrSubscriptionNotFound):
			logger.Debugw("worker_payment_retry_skip_subscription_not_found",
				"payment_id", payment.ID, "subscription_id", *payment.SubscriptionID)
			return nil
		case errors.Is(err, service.ErrSubscriptionUpdateFailed):
			// 订阅已取消或关闭自动续费，重试失去意义
			logger.Debugw("worker_payment_retry_skip_subscription_inactive",
				"payment_id", payment.ID, "subscription_id", *payment.SubscriptionID)
			return nil
		default:
			logger.Warnw("worker_payment_retry_renewal_failed",
				"payment_id", payment.ID, "attempt", payload.Attempt, "error", err)
			return err
		}
	}

	if _, err := c.ReconcileService.SyncPayment(ctx, payment.ID); err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			logger.Debugw("worker_payment_retry_skip_payment_not_found", "payment_id", payment.ID)
			return nil
		}
		logger.Warnw("worker_payment_retry_sync_failed",
			"payment_id", payment.ID, "attempt", payload.Attempt, "error", err)
		return err
	}
	return nil
}

// handlePaymentSyncStatus 主动向提供方拉取支付状态并入账
func (c *Consumer) handlePaymentSyncStatus(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_sync_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentSyncStatusPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_sync_unmarshal_failed", "error", err)
		return err
	}
	if payload.PaymentID == 0 {
		logger.Debugw("worker_payment_sync_skip_invalid_payload", "payment_id", payload.PaymentID)
		return nil
	}
	if _, err := c.ReconcileService.SyncPayment(ctx, payload.PaymentID); err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			logger.Debugw("worker_payment_sync_skip_payment_not_found", "payment_id", payload.PaymentID)
			return nil
		}
		logger.Warnw("worker_payment_sync_failed", "payment_id", payload.PaymentID, "error", err)
		return err
	}
	return nil
}

// handleRefundProcess 执行已批准的退款
func (c *Consumer) handleRefundProcess(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_refund_process_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.RefundProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_refund_process_unmarshal_failed", "error", err)
		return err
	}
	if payload.RefundID == 0 {
		logger.Debugw("worker_refund_process_skip_invalid_payload", "refund_id", payload.RefundID)
		return nil
	}
	if err := c.RefundService.ProcessApprovedRefund(ctx, payload.RefundID); err != nil {
		if errors.Is(err, service.ErrRefundNotFound) {
			logger.Debugw("worker_refund_process_skip_refund_not_found", "refund_id", payload.RefundID)
			return nil
		}
		logger.Warnw("worker_refund_process_failed", "refund_id", payload.RefundID, "error", err)
		return err
	}
	return nil
}

// handleNotificationDispatch 用户通知投递。
// 站内信/邮件等出口渠道不在本服务范围内，仅落结构化日志供下游采集。
func (c *Consumer) handleNotificationDispatch(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.NotificationDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_notification_unmarshal_failed", "error", err)
		return err
	}
	if payload.UserID == 0 || payload.Event == "" {
		logger.Debugw("worker_notification_skip_invalid_payload",
			"user_id", payload.UserID, "event", payload.Event)
		return nil
	}
	logger.Infow("notification_dispatched",
		"user_id", payload.UserID,
		"event", payload.Event,
		"payload", payload.Payload,
	)
	return nil
}

// handleAdminAlert 管理员告警投递
func (c *Consumer) handleAdminAlert(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.AdminAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_admin_alert_unmarshal_failed", "error", err)
		return err
	}
	if payload.TaskID == 0 {
		logger.Debugw("worker_admin_alert_skip_invalid_payload", "task_id", payload.TaskID)
		return nil
	}
	logger.Warnw("admin_alert_dispatched",
		"task_id", payload.TaskID,
		"task_type", payload.Type,
		"title", payload.Title,
	)
	return nil
}
