package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/subpay-core/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentRepository 统一支付数据访问接口
type PaymentRepository interface {
	Create(payment *models.UnifiedPayment) error
	Update(payment *models.UnifiedPayment) error
	UpdateFields(id uint, updates map[string]interface{}) error
	GetByID(id uint) (*models.UnifiedPayment, error)
	GetByIDForUpdate(id uint) (*models.UnifiedPayment, error)
	GetByProviderPaymentID(provider, providerPaymentID string) (*models.UnifiedPayment, error)
	GetByProviderPaymentIDForUpdate(provider, providerPaymentID string) (*models.UnifiedPayment, error)
	ListOpenByProvider(provider string, before time.Time, limit int) ([]models.UnifiedPayment, error)
	ListDueForRetry(now time.Time, limit int) ([]models.UnifiedPayment, error)
	ListAdmin(filter PaymentListFilter) ([]models.UnifiedPayment, int64, error)
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付记录
func (r *GormPaymentRepository) Create(payment *models.UnifiedPayment) error {
	return r.db.Create(payment).Error
}

// Update 更新支付记录
func (r *GormPaymentRepository) Update(payment *models.UnifiedPayment) error {
	return r.db.Save(payment).Error
}

// UpdateFields 按字段更新支付记录
func (r *GormPaymentRepository) UpdateFields(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.UnifiedPayment{}).Where("id = ?", id).Updates(updates).Error
}

// GetByID 根据 ID 获取支付记录
func (r *GormPaymentRepository) GetByID(id uint) (*models.UnifiedPayment, error) {
	var payment models.UnifiedPayment
	if err := r.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByIDForUpdate 根据 ID 加锁获取支付记录
func (r *GormPaymentRepository) GetByIDForUpdate(id uint) (*models.UnifiedPayment, error) {
	var payment models.UnifiedPayment
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByProviderPaymentID 按 (provider, provider_payment_id) 获取支付记录
func (r *GormPaymentRepository) GetByProviderPaymentID(provider, providerPaymentID string) (*models.UnifiedPayment, error) {
	provider = strings.TrimSpace(provider)
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if provider == "" || providerPaymentID == "" {
		return nil, nil
	}
	var payment models.UnifiedPayment
	result := r.db.Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).
		Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetByProviderPaymentIDForUpdate 按 (provider, provider_payment_id) 加锁获取支付记录
func (r *GormPaymentRepository) GetByProviderPaymentIDForUpdate(provider, providerPaymentID string) (*models.UnifiedPayment, error) {
	provider = strings.TrimSpace(provider)
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if provider == "" || providerPaymentID == "" {
		return nil, nil
	}
	var payment models.UnifiedPayment
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// ListOpenByProvider 获取仍在进行中的支付记录（用于主动轮询网关状态）
func (r *GormPaymentRepository) ListOpenByProvider(provider string, before time.Time, limit int) ([]models.UnifiedPayment, error) {
	if limit <= 0 {
		limit = 100
	}
	var payments []models.UnifiedPayment
	if err := r.db.Where(
		"provider = ? AND status IN ? AND created_at <= ? AND (expired_at IS NULL OR expired_at > ?)",
		provider,
		openPaymentStatuses,
		before,
		time.Now(),
	).Order("id asc").Limit(limit).Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// ListDueForRetry 获取到达重试时间的支付记录
func (r *GormPaymentRepository) ListDueForRetry(now time.Time, limit int) ([]models.UnifiedPayment, error) {
	if limit <= 0 {
		limit = 100
	}
	var payments []models.UnifiedPayment
	if err := r.db.Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", now).
		Order("next_retry_at asc").Limit(limit).Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// ListAdmin 管理端支付列表
func (r *GormPaymentRepository) ListAdmin(filter PaymentListFilter) ([]models.UnifiedPayment, int64, error) {
	query := r.db.Model(&models.UnifiedPayment{})

	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.OrderID != 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Purpose != "" {
		query = query.Where("purpose = ?", filter.Purpose)
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

	var payments []models.UnifiedPayment
	if err := query.Order("id desc").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

var openPaymentStatuses = []string{
	"pending",
	"requires_payment_method",
	"requires_action",
	"processing",
}
