package models

import "time"

// PaymentEvent 支付事件回执（幂等去重依据）
type PaymentEvent struct {
	ID                uint      `gorm:"primarykey" json:"id"`                                       // 主键
	Provider          string    `gorm:"uniqueIndex:idx_provider_event;not null" json:"provider"`    // 提供方
	EventID           string    `gorm:"uniqueIndex:idx_provider_event;not null" json:"event_id"`    // 事件ID（缺失时由载荷哈希派生）
	ProviderPaymentID string    `gorm:"index;not null" json:"provider_payment_id"`                  // 提供方支付单号
	EventType         string    `gorm:"" json:"event_type"`                                         // 事件类型
	ProviderStatus    string    `gorm:"" json:"provider_status"`                                    // 提供方原始状态
	Payload           JSON      `gorm:"type:json" json:"payload"`                                   // 原始载荷
	ReceivedAt        time.Time `gorm:"index" json:"received_at"`                                   // 接收时间
}

// TableName 指定表名
func (PaymentEvent) TableName() string {
	return "payment_events"
}
