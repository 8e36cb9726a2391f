package models

import "time"

// PaymentItem 支付分摊明细表（(payment_id, order_item_id) 唯一）
type PaymentItem struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                        // 主键
	PaymentID   uint      `gorm:"uniqueIndex:idx_payment_order_item;not null" json:"payment_id"` // 支付ID
	OrderItemID uint      `gorm:"uniqueIndex:idx_payment_order_item;not null" json:"order_item_id"` // 订单项ID
	Amount      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`         // 实付分摊金额
	CostAmount  Money     `gorm:"type:decimal(20,2);not null;default:0" json:"cost_amount"`    // 成本分摊金额
	Currency    string    `gorm:"not null" json:"currency"`                                    // 币种
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                                     // 创建时间
}

// TableName 指定表名
func (PaymentItem) TableName() string {
	return "payment_items"
}
