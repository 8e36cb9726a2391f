package service

import "errors"

// 支付相关错误
var (
	ErrPaymentInvalid          = errors.New("支付参数无效")
	ErrPaymentNotFound         = errors.New("支付单不存在")
	ErrPaymentCreateFailed     = errors.New("支付单创建失败")
	ErrPaymentUpdateFailed     = errors.New("支付单更新失败")
	ErrPaymentStatusInvalid    = errors.New("支付状态无效")
	ErrPaymentProviderFailed   = errors.New("支付网关请求失败")
	ErrPaymentAmountMismatch   = errors.New("支付金额不匹配")
	ErrPaymentCurrencyMismatch = errors.New("支付货币不匹配")
)

// 事件与对账相关错误
var (
	ErrEventInvalid        = errors.New("支付事件无效")
	ErrEventRecordFailed   = errors.New("支付事件记录失败")
	ErrReconcileLockFailed = errors.New("对账加锁失败")
)

// 订单相关错误
var (
	ErrOrderNotFound      = errors.New("订单不存在")
	ErrOrderFetchFailed   = errors.New("订单查询失败")
	ErrOrderUpdateFailed  = errors.New("订单更新失败")
	ErrOrderStatusInvalid = errors.New("订单状态无效")
)

// 订阅相关错误
var (
	ErrSubscriptionNotFound     = errors.New("订阅不存在")
	ErrSubscriptionCreateFailed = errors.New("订阅创建失败")
	ErrSubscriptionUpdateFailed = errors.New("订阅更新失败")
)

// 额度账户相关错误
var (
	ErrCreditAccountNotFound         = errors.New("额度账户不存在")
	ErrCreditAccountCreateFailed     = errors.New("额度账户创建失败")
	ErrCreditAccountUpdateFailed     = errors.New("额度账户更新失败")
	ErrCreditTransactionNotFound     = errors.New("额度流水不存在")
	ErrCreditTransactionCreateFailed = errors.New("额度流水创建失败")
	ErrCreditInvalidAmount           = errors.New("额度金额无效")
	ErrCreditAmountTooLow            = errors.New("实收金额低于允许容差")
	ErrCreditAmountExceedsLimit      = errors.New("实收金额超出入账上限")
	ErrCreditCurrencyMismatch        = errors.New("额度货币不匹配")
	ErrCreditInsufficientBalance     = errors.New("额度余额不足")
)

// 退款相关错误
var (
	ErrRefundNotFound      = errors.New("退款申请不存在")
	ErrRefundInvalid       = errors.New("退款参数无效")
	ErrRefundStatusInvalid = errors.New("退款状态不允许该操作")
	ErrRefundWindowExpired = errors.New("已超出可退款时间窗口")
	ErrRefundAmountInvalid = errors.New("退款金额无效")
	ErrRefundAlreadyActive = errors.New("该支付已有进行中的退款申请")
	ErrRefundCreateFailed  = errors.New("退款申请创建失败")
	ErrRefundUpdateFailed  = errors.New("退款申请更新失败")
)

// 用户与认证相关错误
var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrInvalidPassword    = errors.New("原密码错误")
	ErrAdminTaskNotFound  = errors.New("人工任务不存在")
)
