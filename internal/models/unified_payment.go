package models

import (
	"time"

	"gorm.io/gorm"
)

// UnifiedPayment 统一支付记录（所有提供方共用一张表）
type UnifiedPayment struct {
	ID                uint   `gorm:"primarykey" json:"id"`                                               // 主键
	Provider          string `gorm:"uniqueIndex:idx_provider_payment;not null" json:"provider"`          // 提供方（card/crypto）
	ProviderPaymentID string `gorm:"uniqueIndex:idx_provider_payment;not null" json:"provider_payment_id"` // 提供方支付单号
	Purpose           string `gorm:"index;not null" json:"purpose"`                                      // 支付用途（checkout/top_up/renewal）
	Status            string `gorm:"index;not null" json:"status"`                                       // 规范化状态
	ProviderStatus    string `gorm:"" json:"provider_status"`                                            // 提供方原始状态（仅审计用）
	UserID            uint   `gorm:"index" json:"user_id"`                                               // 用户ID
	OrderID           *uint  `gorm:"index" json:"order_id,omitempty"`                                    // 订单ID（一次写入）
	SubscriptionID    *uint  `gorm:"index" json:"subscription_id,omitempty"`                             // 订阅ID（续费支付）
	Amount            Money  `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`                // 应付金额
	ReceivedAmount    Money  `gorm:"type:decimal(20,2);not null;default:0" json:"received_amount"`       // 实收金额（加密货币换算后）
	Currency          string `gorm:"not null" json:"currency"`                                           // 币种
	PayURL            string `gorm:"type:text" json:"pay_url"`                                           // 收银台地址
	Metadata          JSON   `gorm:"type:json" json:"metadata"`                                          // 元数据（合并更新，不整体覆盖）
	FailureBucket     string `gorm:"index" json:"failure_bucket"`                                        // 失败分类
	FailureReason     string `gorm:"type:text" json:"failure_reason"`                                    // 失败原因
	DeclineCode       string `gorm:"" json:"decline_code"`                                               // 卡拒付码
	AttemptCount      int    `gorm:"not null;default:0" json:"attempt_count"`                            // 重试次数
	NextRetryAt       *time.Time `gorm:"index" json:"next_retry_at"`                                     // 下次重试时间
	PaidAt            *time.Time `gorm:"index" json:"paid_at"`                                           // 支付时间
	ExpiredAt         *time.Time `gorm:"index" json:"expired_at"`                                        // 过期时间
	CallbackAt        *time.Time `gorm:"index" json:"callback_at"`                                       // 最近回调时间
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`                                        // 创建时间
	UpdatedAt         time.Time  `gorm:"index" json:"updated_at"`                                        // 更新时间
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`                                             // 软删除时间
}

// TableName 指定表名
func (UnifiedPayment) TableName() string {
	return "unified_payments"
}
