package models

import (
	"time"

	"gorm.io/gorm"
)

// RefundRequest 退款申请表
type RefundRequest struct {
	ID               uint           `gorm:"primarykey" json:"id"`                                // 主键
	RefundNo         string         `gorm:"uniqueIndex;not null" json:"refund_no"`               // 退款编号
	UserID           uint           `gorm:"index;not null" json:"user_id"`                       // 用户ID
	PaymentID        uint           `gorm:"index;not null" json:"payment_id"`                    // 原支付ID
	Amount           Money          `gorm:"type:decimal(20,2);not null;default:0" json:"amount"` // 退款金额
	Currency         string         `gorm:"not null" json:"currency"`                            // 币种
	Reason           string         `gorm:"type:text" json:"reason"`                             // 申请原因
	Status           string         `gorm:"index;not null" json:"status"`                        // 状态
	RejectReason     string         `gorm:"type:text" json:"reject_reason"`                      // 驳回原因
	ReversalTxnID    *uint          `gorm:"index" json:"reversal_txn_id,omitempty"`              // 积分冲正流水ID
	ProviderRefundID string         `gorm:"index" json:"provider_refund_id"`                     // 提供方退款单号
	DecidedBy        string         `gorm:"" json:"decided_by"`                                  // 审核人
	DecidedAt        *time.Time     `gorm:"index" json:"decided_at"`                             // 审核时间
	ProcessedAt      *time.Time     `gorm:"index" json:"processed_at"`                           // 处理完成时间
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`                             // 创建时间
	UpdatedAt        time.Time      `gorm:"index" json:"updated_at"`                             // 更新时间
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`                                      // 软删除时间
}

// TableName 指定表名
func (RefundRequest) TableName() string {
	return "refund_requests"
}
