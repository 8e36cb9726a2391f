// Package paystatus 将各提供方的原始支付状态映射为统一状态机。
package paystatus

import (
	"strings"

	"github.com/subpay-core/internal/constants"
)

// 状态优先级（只允许沿优先级不降的方向迁移）
const (
	PriorityPending               = 10
	PriorityRequiresPaymentMethod = 20
	PriorityRequiresAction        = 30
	PriorityProcessing            = 40
	PriorityTerminalFailure       = 50
	PrioritySucceeded             = 60
)

var statusPriority = map[string]int{
	constants.PaymentStatusPending:               PriorityPending,
	constants.PaymentStatusRequiresPaymentMethod: PriorityRequiresPaymentMethod,
	constants.PaymentStatusRequiresAction:        PriorityRequiresAction,
	constants.PaymentStatusProcessing:            PriorityProcessing,
	constants.PaymentStatusFailed:                PriorityTerminalFailure,
	constants.PaymentStatusCanceled:              PriorityTerminalFailure,
	constants.PaymentStatusExpired:               PriorityTerminalFailure,
	constants.PaymentStatusSucceeded:             PrioritySucceeded,
}

// Priority 返回统一状态的优先级，未知状态按 pending 处理
func Priority(status string) int {
	if p, ok := statusPriority[normalizeKey(status)]; ok {
		return p
	}
	return PriorityPending
}

// IsValid 判断是否为合法统一状态
func IsValid(status string) bool {
	_, ok := statusPriority[normalizeKey(status)]
	return ok
}

// IsTerminal 判断是否为终态（成功或终态失败）
func IsTerminal(status string) bool {
	return Priority(status) >= PriorityTerminalFailure
}

// IsTerminalFailure 判断是否为终态失败
func IsTerminalFailure(status string) bool {
	return Priority(status) == PriorityTerminalFailure
}

// Normalize 将提供方原始状态映射为统一状态。
// 映射是全函数：未知的原始状态回落到保守默认值而不是报错。
func Normalize(provider, raw string) string {
	switch normalizeKey(provider) {
	case constants.PaymentProviderCard:
		return normalizeCard(raw)
	case constants.PaymentProviderCrypto:
		return normalizeCrypto(raw)
	default:
		return constants.PaymentStatusPending
	}
}

// normalizeCard 卡支付网关状态（intent 风格词表）
func normalizeCard(raw string) string {
	switch normalizeKey(raw) {
	case "requires_payment_method":
		return constants.PaymentStatusRequiresPaymentMethod
	case "requires_confirmation", "requires_action", "requires_source_action":
		return constants.PaymentStatusRequiresAction
	case "processing", "requires_capture":
		return constants.PaymentStatusProcessing
	case "succeeded", "success", "paid":
		return constants.PaymentStatusSucceeded
	case "canceled", "cancelled":
		return constants.PaymentStatusCanceled
	case "failed", "payment_failed", "declined":
		return constants.PaymentStatusFailed
	case "expired":
		return constants.PaymentStatusExpired
	case "created", "pending":
		return constants.PaymentStatusPending
	default:
		// 卡网关的未知状态视为尚未开始，等待后续事件
		return constants.PaymentStatusPending
	}
}

// normalizeCrypto 加密货币网关状态（invoice 风格词表）
func normalizeCrypto(raw string) string {
	switch normalizeKey(raw) {
	case "waiting", "new", "created":
		return constants.PaymentStatusPending
	case "confirming", "confirmed", "sending":
		return constants.PaymentStatusProcessing
	case "partially_paid":
		return constants.PaymentStatusProcessing
	case "finished", "paid", "succeeded", "success":
		return constants.PaymentStatusSucceeded
	case "failed", "refunded":
		return constants.PaymentStatusFailed
	case "expired":
		return constants.PaymentStatusExpired
	case "canceled", "cancelled":
		return constants.PaymentStatusCanceled
	default:
		// 链上支付一旦出现未知状态，多半已有交易在途，按处理中对待
		return constants.PaymentStatusProcessing
	}
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
