package models

import (
	"time"

	"gorm.io/gorm"
)

// CouponRedemption 优惠券核销记录（下单预占，支付成功核销，失败释放）
type CouponRedemption struct {
	ID             uint           `gorm:"primarykey" json:"id"`                                         // 主键
	CouponID       uint           `gorm:"index;not null" json:"coupon_id"`                              // 优惠券ID
	OrderID        uint           `gorm:"index;not null" json:"order_id"`                               // 订单ID
	UserID         uint           `gorm:"index;not null" json:"user_id"`                                // 用户ID
	Status         string         `gorm:"index;not null" json:"status"`                                 // 核销状态
	DiscountAmount Money          `gorm:"type:decimal(20,2);not null;default:0" json:"discount_amount"` // 抵扣金额
	FinalizedAt    *time.Time     `gorm:"index" json:"finalized_at"`                                    // 核销时间
	VoidedAt       *time.Time     `gorm:"index" json:"voided_at"`                                       // 释放时间
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`                                      // 更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间
}

// TableName 指定表名
func (CouponRedemption) TableName() string {
	return "coupon_redemptions"
}
