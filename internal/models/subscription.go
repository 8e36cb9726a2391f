package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription 订阅表（按订单项一一对应）
type Subscription struct {
	ID            uint           `gorm:"primarykey" json:"id"`                       // 主键
	UserID        uint           `gorm:"index;not null" json:"user_id"`              // 用户ID
	OrderItemID   uint           `gorm:"uniqueIndex;not null" json:"order_item_id"`  // 来源订单项ID（幂等键）
	PlanID        uint           `gorm:"index;not null" json:"plan_id"`              // 订阅计划ID
	PlanName      string         `gorm:"not null" json:"plan_name"`                  // 计划名称快照
	Status        string         `gorm:"index;not null" json:"status"`               // 订阅状态
	BillingTerm   string         `gorm:"not null" json:"billing_term"`               // 计费周期
	AutoRenew     bool           `gorm:"not null;default:true" json:"auto_renew"`    // 自动续费开关
	StartDate     time.Time      `gorm:"index" json:"start_date"`                    // 生效时间
	EndDate       time.Time      `gorm:"index" json:"end_date"`                      // 当前周期结束时间
	NextBillingAt *time.Time     `gorm:"index" json:"next_billing_at"`               // 下次扣费时间
	RenewAttempts int            `gorm:"not null;default:0" json:"renew_attempts"`   // 当前周期续费尝试次数
	CanceledAt    *time.Time     `gorm:"index" json:"canceled_at"`                   // 取消时间
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                    // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                    // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                             // 软删除时间
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscriptions"
}

// RenewalCycle 续费周期记录（(subscription_id, cycle_end) 唯一，用作周期锁）
type RenewalCycle struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                        // 主键
	SubscriptionID uint      `gorm:"uniqueIndex:idx_sub_cycle;not null" json:"subscription_id"`   // 订阅ID
	CycleEnd       time.Time `gorm:"uniqueIndex:idx_sub_cycle;not null" json:"cycle_end"`         // 周期结束日（UTC 日期截断）
	PaymentID      uint      `gorm:"index;not null" json:"payment_id"`                            // 触发本周期的支付ID
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                                     // 创建时间
}

// TableName 指定表名
func (RenewalCycle) TableName() string {
	return "renewal_cycles"
}
