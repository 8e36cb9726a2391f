package constants

// 统一支付状态常量（规范化后的状态机）
const (
	PaymentStatusPending               = "pending"
	PaymentStatusRequiresPaymentMethod = "requires_payment_method"
	PaymentStatusRequiresAction        = "requires_action"
	PaymentStatusProcessing            = "processing"
	PaymentStatusFailed                = "failed"
	PaymentStatusCanceled              = "canceled"
	PaymentStatusExpired               = "expired"
	PaymentStatusSucceeded             = "succeeded"
)

// 支付提供方常量
const (
	PaymentProviderCard   = "card"
	PaymentProviderCrypto = "crypto"
)

// 支付用途常量
const (
	PaymentPurposeCheckout = "checkout"
	PaymentPurposeTopUp    = "top_up"
	PaymentPurposeRenewal  = "renewal"
)

// 订单状态常量
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusInProcess      = "in_process"
	OrderStatusCompleted      = "completed"
	OrderStatusCanceled       = "canceled"
)

// 订单状态原因常量
const (
	OrderReasonPaid                    = "paid"
	OrderReasonAmountMismatch          = "payment_amount_mismatch"
	OrderReasonSubscriptionCreateError = "subscription_create_failed"
	OrderReasonPaymentFailed           = "payment_failed"
)

// 订阅状态常量
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// 订阅计费周期常量
const (
	BillingTermMonthly   = "monthly"
	BillingTermQuarterly = "quarterly"
	BillingTermYearly    = "yearly"
)

// 积分交易类型常量
const (
	CreditTxnTypeTopUp    = "top_up"
	CreditTxnTypeReversal = "refund_reversal"
	CreditTxnTypeRollback = "refund_rollback"
	CreditTxnTypeAdjust   = "admin_adjust"
)

// 积分交易方向常量
const (
	CreditTxnDirectionIn  = "in"
	CreditTxnDirectionOut = "out"
)

// 积分交易状态常量
const (
	CreditTxnStatusPending   = "pending"
	CreditTxnStatusCompleted = "completed"
)

// 退款状态常量
const (
	RefundStatusPending    = "pending"
	RefundStatusApproved   = "approved"
	RefundStatusRejected   = "rejected"
	RefundStatusProcessing = "processing"
	RefundStatusCompleted  = "completed"
	RefundStatusFailed     = "failed"
)

// 支付失败分类常量
const (
	FailureBucketExpired             = "expired"
	FailureBucketFailed              = "failed"
	FailureBucketNetworkError        = "network_error"
	FailureBucketInsufficientPayment = "insufficient_payment"
	FailureBucketMonitoringError     = "monitoring_error"
	FailureBucketSystemError         = "system_error"
)

// 优惠券核销状态常量
const (
	CouponRedemptionStatusReserved  = "reserved"
	CouponRedemptionStatusFinalized = "finalized"
	CouponRedemptionStatusVoided    = "voided"
)

// 人工任务类型常量
const (
	AdminTaskTypeManualFulfillment = "manual_fulfillment"
	AdminTaskTypePaymentEscalation = "payment_escalation"
	AdminTaskTypeSubscriptionFix   = "subscription_fix"
)

// 人工任务状态常量
const (
	AdminTaskStatusOpen = "open"
	AdminTaskStatusDone = "done"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 队列常量
const (
	QueueDefault             = "default"
	QueueCritical            = "critical"
	TaskPaymentRetry         = "payment:retry"
	TaskPaymentSyncStatus    = "payment:sync_status"
	TaskRefundProcess        = "refund:process"
	TaskNotificationDispatch = "notification:dispatch"
	TaskAdminAlert           = "admin:alert"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "sp"
)

// 通知事件常量
const (
	NotifyEventPaymentSucceeded  = "payment_succeeded"
	NotifyEventPaymentFailed     = "payment_failed"
	NotifyEventRenewalSucceeded  = "renewal_succeeded"
	NotifyEventRenewalFailed     = "renewal_failed"
	NotifyEventCreditAllocated   = "credit_allocated"
	NotifyEventRefundCompleted   = "refund_completed"
	NotifyEventRefundFailed      = "refund_failed"
	NotifyEventAutoRenewDisabled = "auto_renew_disabled"
)

// 币种常量
const (
	SiteCurrencyDefault = "USD"
)
