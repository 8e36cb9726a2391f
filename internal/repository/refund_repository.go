package repository

import (
	"errors"

	"github.com/subpay-core/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RefundRepository 退款申请数据访问接口
type RefundRepository interface {
	Create(refund *models.RefundRequest) error
	Update(refund *models.RefundRequest) error
	GetByID(id uint) (*models.RefundRequest, error)
	GetByIDForUpdate(id uint) (*models.RefundRequest, error)
	GetByRefundNo(refundNo string) (*models.RefundRequest, error)
	GetActiveByPaymentID(paymentID uint) (*models.RefundRequest, error)
	ListAdmin(filter RefundListFilter) ([]models.RefundRequest, int64, error)
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormRefundRepository
}

// GormRefundRepository GORM 实现
type GormRefundRepository struct {
	db *gorm.DB
}

// NewRefundRepository 创建退款仓库
func NewRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRefundRepository) WithTx(tx *gorm.DB) *GormRefundRepository {
	if tx == nil {
		return r
	}
	return &GormRefundRepository{db: tx}
}

// Transaction 执行数据库事务
func (r *GormRefundRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// Create 创建退款申请
func (r *GormRefundRepository) Create(refund *models.RefundRequest) error {
	return r.db.Create(refund).Error
}

// Update 更新退款申请
func (r *GormRefundRepository) Update(refund *models.RefundRequest) error {
	return r.db.Save(refund).Error
}

// GetByID 根据 ID 获取退款申请
func (r *GormRefundRepository) GetByID(id uint) (*models.RefundRequest, error) {
	var refund models.RefundRequest
	if err := r.db.First(&refund, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// GetByIDForUpdate 根据 ID 加锁获取退款申请
func (r *GormRefundRepository) GetByIDForUpdate(id uint) (*models.RefundRequest, error) {
	var refund models.RefundRequest
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&refund, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// GetByRefundNo 根据退款编号获取退款申请
func (r *GormRefundRepository) GetByRefundNo(refundNo string) (*models.RefundRequest, error) {
	if refundNo == "" {
		return nil, nil
	}
	var refund models.RefundRequest
	result := r.db.Where("refund_no = ?", refundNo).Limit(1).Find(&refund)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &refund, nil
}

// GetActiveByPaymentID 获取某笔支付仍在流转中的退款申请
func (r *GormRefundRepository) GetActiveByPaymentID(paymentID uint) (*models.RefundRequest, error) {
	if paymentID == 0 {
		return nil, nil
	}
	var refund models.RefundRequest
	result := r.db.Where("payment_id = ? AND status IN ?", paymentID, activeRefundStatuses).
		Order("id desc").Limit(1).Find(&refund)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &refund, nil
}

// ListAdmin 管理端退款列表
func (r *GormRefundRepository) ListAdmin(filter RefundListFilter) ([]models.RefundRequest, int64, error) {
	query := r.db.Model(&models.RefundRequest{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.PaymentID != 0 {
		query = query.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var refunds []models.RefundRequest
	if err := query.Order("id desc").Find(&refunds).Error; err != nil {
		return nil, 0, err
	}
	return refunds, total, nil
}

var activeRefundStatuses = []string{"pending", "approved", "processing"}
