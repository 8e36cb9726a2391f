package repository

import (
	"errors"
	"time"

	"github.com/subpay-core/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionRepository 订阅数据访问接口
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	Update(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetByIDForUpdate(id uint) (*models.Subscription, error)
	GetByOrderItemID(orderItemID uint) (*models.Subscription, error)
	ListByUser(userID uint) ([]models.Subscription, error)
	ListDueForRenewal(now time.Time, limit int) ([]models.Subscription, error)
	CreateRenewalCycle(cycle *models.RenewalCycle) (bool, error)
	WithTx(tx *gorm.DB) *GormSubscriptionRepository
}

// GormSubscriptionRepository GORM 实现
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository 创建订阅仓库
func NewSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSubscriptionRepository) WithTx(tx *gorm.DB) *GormSubscriptionRepository {
	if tx == nil {
		return r
	}
	return &GormSubscriptionRepository{db: tx}
}

// Create 创建订阅
func (r *GormSubscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// Update 更新订阅
func (r *GormSubscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// GetByID 根据 ID 获取订阅
func (r *GormSubscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// GetByIDForUpdate 根据 ID 加锁获取订阅
func (r *GormSubscriptionRepository) GetByIDForUpdate(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// GetByOrderItemID 根据订单项获取订阅（order_item_id 唯一）
func (r *GormSubscriptionRepository) GetByOrderItemID(orderItemID uint) (*models.Subscription, error) {
	if orderItemID == 0 {
		return nil, nil
	}
	var sub models.Subscription
	result := r.db.Where("order_item_id = ?", orderItemID).Limit(1).Find(&sub)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &sub, nil
}

// ListByUser 获取用户订阅列表
func (r *GormSubscriptionRepository) ListByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.Where("user_id = ?", userID).Order("id desc").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ListDueForRenewal 获取已到扣费时间、开启自动续费的活跃订阅
func (r *GormSubscriptionRepository) ListDueForRenewal(now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 50
	}
	var subs []models.Subscription
	err := r.db.
		Where("status = ?", "active").
		Where("auto_renew = ?", true).
		Where("next_billing_at IS NOT NULL AND next_billing_at <= ?", now).
		Order("next_billing_at asc").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// CreateRenewalCycle 写入续费周期记录。
// 首次写入返回 true；(subscription_id, cycle_end) 唯一约束冲突说明该周期已入账，返回 false。
func (r *GormSubscriptionRepository) CreateRenewalCycle(cycle *models.RenewalCycle) (bool, error) {
	cycle.CycleEnd = TruncateCycleDate(cycle.CycleEnd)
	if err := r.db.Create(cycle).Error; err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// TruncateCycleDate 将周期结束时间截断为 UTC 日期，保证同一天的多次续费命中同一唯一键。
func TruncateCycleDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
