package repository

import (
	"github.com/subpay-core/internal/models"

	"gorm.io/gorm"
)

// PaymentItemRepository 支付分摊明细数据访问接口
type PaymentItemRepository interface {
	CreateBatch(items []models.PaymentItem) error
	ListByPaymentID(paymentID uint) ([]models.PaymentItem, error)
	ExistsForPayment(paymentID uint) (bool, error)
	WithTx(tx *gorm.DB) *GormPaymentItemRepository
}

// GormPaymentItemRepository GORM 实现
type GormPaymentItemRepository struct {
	db *gorm.DB
}

// NewPaymentItemRepository 创建支付分摊仓库
func NewPaymentItemRepository(db *gorm.DB) *GormPaymentItemRepository {
	return &GormPaymentItemRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentItemRepository) WithTx(tx *gorm.DB) *GormPaymentItemRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentItemRepository{db: tx}
}

// CreateBatch 批量写入分摊明细。
// (payment_id, order_item_id) 唯一约束冲突视为重复入账，忽略。
func (r *GormPaymentItemRepository) CreateBatch(items []models.PaymentItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.db.Create(&items).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil
		}
		return err
	}
	return nil
}

// ListByPaymentID 查询某笔支付的分摊明细
func (r *GormPaymentItemRepository) ListByPaymentID(paymentID uint) ([]models.PaymentItem, error) {
	var items []models.PaymentItem
	if err := r.db.Where("payment_id = ?", paymentID).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ExistsForPayment 判断某笔支付是否已写入分摊明细
func (r *GormPaymentItemRepository) ExistsForPayment(paymentID uint) (bool, error) {
	var count int64
	if err := r.db.Model(&models.PaymentItem{}).Where("payment_id = ?", paymentID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
