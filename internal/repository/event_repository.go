package repository

import (
	"github.com/subpay-core/internal/models"

	"gorm.io/gorm"
)

// PaymentEventRepository 支付事件回执数据访问接口
type PaymentEventRepository interface {
	Record(event *models.PaymentEvent) (bool, error)
	ListByProviderPaymentID(provider, providerPaymentID string) ([]models.PaymentEvent, error)
	WithTx(tx *gorm.DB) *GormPaymentEventRepository
}

// GormPaymentEventRepository GORM 实现
type GormPaymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository 创建支付事件仓库
func NewPaymentEventRepository(db *gorm.DB) *GormPaymentEventRepository {
	return &GormPaymentEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentEventRepository) WithTx(tx *gorm.DB) *GormPaymentEventRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentEventRepository{db: tx}
}

// Record 写入事件回执。
// 首次写入返回 true；(provider, event_id) 唯一约束冲突说明事件已处理过，返回 false。
func (r *GormPaymentEventRepository) Record(event *models.PaymentEvent) (bool, error) {
	if err := r.db.Create(event).Error; err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListByProviderPaymentID 查询某笔支付的全部事件回执
func (r *GormPaymentEventRepository) ListByProviderPaymentID(provider, providerPaymentID string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	if err := r.db.Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).
		Order("id asc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
