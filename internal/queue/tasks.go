package queue

import (
	"encoding/json"

	"github.com/subpay-core/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPaymentRetry 支付重试任务
	TaskPaymentRetry = constants.TaskPaymentRetry
	// TaskPaymentSyncStatus 支付状态同步任务
	TaskPaymentSyncStatus = constants.TaskPaymentSyncStatus
	// TaskRefundProcess 退款执行任务
	TaskRefundProcess = constants.TaskRefundProcess
	// TaskNotificationDispatch 用户通知任务
	TaskNotificationDispatch = constants.TaskNotificationDispatch
	// TaskAdminAlert 管理员告警任务
	TaskAdminAlert = constants.TaskAdminAlert
)

// PaymentRetryPayload 支付重试任务载荷
type PaymentRetryPayload struct {
	PaymentID uint `json:"payment_id"`
	Attempt   int  `json:"attempt"`
}

// PaymentSyncStatusPayload 支付状态同步任务载荷
type PaymentSyncStatusPayload struct {
	PaymentID uint `json:"payment_id"`
}

// RefundProcessPayload 退款执行任务载荷
type RefundProcessPayload struct {
	RefundID uint `json:"refund_id"`
}

// NotificationDispatchPayload 用户通知任务载荷
type NotificationDispatchPayload struct {
	UserID  uint                   `json:"user_id"`
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// AdminAlertPayload 管理员告警任务载荷
type AdminAlertPayload struct {
	TaskID uint   `json:"task_id"`
	Type   string `json:"type"`
	Title  string `json:"title"`
}

// NewPaymentRetryTask 创建支付重试任务
func NewPaymentRetryTask(payload PaymentRetryPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentRetry, body), nil
}

// NewPaymentSyncStatusTask 创建支付状态同步任务
func NewPaymentSyncStatusTask(payload PaymentSyncStatusPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentSyncStatus, body), nil
}

// NewRefundProcessTask 创建退款执行任务
func NewRefundProcessTask(payload RefundProcessPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefundProcess, body), nil
}

// NewNotificationDispatchTask 创建用户通知任务
func NewNotificationDispatchTask(payload NotificationDispatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDispatch, body), nil
}

// NewAdminAlertTask 创建管理员告警任务
func NewAdminAlertTask(payload AdminAlertPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAdminAlert, body), nil
}
