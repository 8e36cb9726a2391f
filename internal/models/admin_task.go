package models

import (
	"time"

	"gorm.io/gorm"
)

// AdminTask 人工处理任务表
type AdminTask struct {
	ID             uint           `gorm:"primarykey" json:"id"`                    // 主键
	Type           string         `gorm:"index;not null" json:"type"`              // 任务类型
	Status         string         `gorm:"index;not null" json:"status"`            // 任务状态
	Title          string         `gorm:"not null" json:"title"`                   // 标题
	Detail         JSON           `gorm:"type:json" json:"detail"`                 // 任务详情
	PaymentID      *uint          `gorm:"index" json:"payment_id,omitempty"`       // 关联支付ID
	OrderID        *uint          `gorm:"index" json:"order_id,omitempty"`         // 关联订单ID
	SubscriptionID *uint          `gorm:"index" json:"subscription_id,omitempty"`  // 关联订阅ID
	DoneAt         *time.Time     `gorm:"index" json:"done_at"`                    // 完成时间
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                 // 创建时间
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`                 // 更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                          // 软删除时间
}

// TableName 指定表名
func (AdminTask) TableName() string {
	return "admin_tasks"
}
