package repository

import (
	"time"

	"github.com/subpay-core/internal/models"

	"gorm.io/gorm"
)

// CouponRedemptionRepository 优惠券核销数据访问接口
type CouponRedemptionRepository interface {
	GetReservedByOrderID(orderID uint) (*models.CouponRedemption, error)
	Finalize(id uint, now time.Time) error
	Void(id uint, now time.Time) error
	WithTx(tx *gorm.DB) *GormCouponRedemptionRepository
}

// GormCouponRedemptionRepository GORM 实现
type GormCouponRedemptionRepository struct {
	db *gorm.DB
}

// NewCouponRedemptionRepository 创建优惠券核销仓库
func NewCouponRedemptionRepository(db *gorm.DB) *GormCouponRedemptionRepository {
	return &GormCouponRedemptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCouponRedemptionRepository) WithTx(tx *gorm.DB) *GormCouponRedemptionRepository {
	if tx == nil {
		return r
	}
	return &GormCouponRedemptionRepository{db: tx}
}

// GetReservedByOrderID 获取订单当前预占中的核销记录
func (r *GormCouponRedemptionRepository) GetReservedByOrderID(orderID uint) (*models.CouponRedemption, error) {
	if orderID == 0 {
		return nil, nil
	}
	var redemption models.CouponRedemption
	result := r.db.Where("order_id = ? AND status = ?", orderID, "reserved").
		Order("id desc").Limit(1).Find(&redemption)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &redemption, nil
}

// Finalize 核销预占记录（仅 reserved 状态可核销，重复调用无副作用）
func (r *GormCouponRedemptionRepository) Finalize(id uint, now time.Time) error {
	return r.db.Model(&models.CouponRedemption{}).
		Where("id = ? AND status = ?", id, "reserved").
		Updates(map[string]interface{}{
			"status":       "finalized",
			"finalized_at": now,
			"updated_at":   now,
		}).Error
}

// Void 释放预占记录（仅 reserved 状态可释放，重复调用无副作用）
func (r *GormCouponRedemptionRepository) Void(id uint, now time.Time) error {
	return r.db.Model(&models.CouponRedemption{}).
		Where("id = ? AND status = ?", id, "reserved").
		Updates(map[string]interface{}{
			"status":     "voided",
			"voided_at":  now,
			"updated_at": now,
		}).Error
}
