package repository

import "time"

// PaymentListFilter 查询支付列表的过滤条件
type PaymentListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	OrderID     uint
	Provider    string
	Purpose     string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// CreditTransactionListFilter 查询积分流水的过滤条件
type CreditTransactionListFilter struct {
	Page      int
	PageSize  int
	UserID    uint
	Type      string
	Direction string
	Status    string
}

// RefundListFilter 查询退款申请列表的过滤条件
type RefundListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	PaymentID   uint
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// AdminTaskListFilter 查询人工任务列表的过滤条件
type AdminTaskListFilter struct {
	Page     int
	PageSize int
	Type     string
	Status   string
}
