package models

import (
	"time"

	"gorm.io/gorm"
)

// CreditAccount 积分账户表
type CreditAccount struct {
	ID        uint           `gorm:"primarykey" json:"id"`                               // 主键
	UserID    uint           `gorm:"uniqueIndex;not null" json:"user_id"`                // 用户ID
	Balance   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"balance"` // 当前余额
	Currency  string         `gorm:"not null" json:"currency"`                           // 币种
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                            // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`                            // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                                     // 软删除时间
}

// TableName 指定表名
func (CreditAccount) TableName() string {
	return "credit_accounts"
}

// CreditTransaction 积分流水表（充值发起时预插 pending 行，结算时原行完成）
type CreditTransaction struct {
	ID               uint           `gorm:"primarykey" json:"id"`                                       // 主键
	UserID           uint           `gorm:"index;not null" json:"user_id"`                              // 用户ID
	AccountID        uint           `gorm:"index;not null" json:"account_id"`                           // 账户ID
	PaymentID        *uint          `gorm:"index" json:"payment_id,omitempty"`                          // 关联支付ID
	RefundID         *uint          `gorm:"index" json:"refund_id,omitempty"`                           // 关联退款ID
	Type             string         `gorm:"index;not null" json:"type"`                                 // 交易类型
	Direction        string         `gorm:"not null" json:"direction"`                                  // 方向（in/out）
	Status           string         `gorm:"index;not null" json:"status"`                               // 状态（pending/completed）
	Amount           Money          `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`        // 金额
	BalanceBefore    Money          `gorm:"type:decimal(20,2);not null;default:0" json:"balance_before"` // 变动前余额
	BalanceAfter     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"balance_after"` // 变动后余额
	Currency         string         `gorm:"not null" json:"currency"`                                   // 币种
	Reference        string         `gorm:"index" json:"reference"`                                     // 业务引用号
	Remark           string         `gorm:"" json:"remark"`                                             // 备注
	PaymentCompleted bool           `gorm:"not null;default:false" json:"payment_completed"`            // 支付入账完成标记
	CompletedAt      *time.Time     `gorm:"index" json:"completed_at"`                                  // 完成时间
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt        time.Time      `gorm:"index" json:"updated_at"`                                    // 更新时间
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`                                             // 软删除时间
}

// TableName 指定表名
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}
