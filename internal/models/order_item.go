package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderItem 订单项表（每项对应一个订阅计划）
type OrderItem struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                   // 主键
	OrderID     uint           `gorm:"index;not null" json:"order_id"`                         // 订单ID
	PlanID      uint           `gorm:"index;not null" json:"plan_id"`                          // 订阅计划ID
	PlanName    string         `gorm:"not null" json:"plan_name"`                              // 计划名称快照
	BillingTerm string         `gorm:"not null" json:"billing_term"`                           // 计费周期（monthly/quarterly/yearly）
	UnitPrice   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"` // 单价
	Quantity    int            `gorm:"not null" json:"quantity"`                               // 数量
	TotalPrice  Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_price"` // 小计
	CostPrice   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"cost_price"` // 成本价快照（用于成本分摊）
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                                // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                         // 软删除时间
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}
