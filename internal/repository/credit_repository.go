package repository

import (
	"errors"

	"github.com/subpay-core/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditRepository 积分账户与流水数据访问接口
type CreditRepository interface {
	GetAccountByUserID(userID uint) (*models.CreditAccount, error)
	GetAccountByUserIDForUpdate(userID uint) (*models.CreditAccount, error)
	CreateAccount(account *models.CreditAccount) error
	UpdateAccount(account *models.CreditAccount) error
	CreateTransaction(txn *models.CreditTransaction) error
	UpdateTransaction(txn *models.CreditTransaction) error
	GetTransactionByID(id uint) (*models.CreditTransaction, error)
	GetTransactionByPaymentID(paymentID uint) (*models.CreditTransaction, error)
	GetTransactionByPaymentIDForUpdate(paymentID uint) (*models.CreditTransaction, error)
	GetTransactionByReference(reference string) (*models.CreditTransaction, error)
	ListTransactions(filter CreditTransactionListFilter) ([]models.CreditTransaction, int64, error)
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormCreditRepository
}

// GormCreditRepository GORM 实现
type GormCreditRepository struct {
	db *gorm.DB
}

// NewCreditRepository 创建积分仓库
func NewCreditRepository(db *gorm.DB) *GormCreditRepository {
	return &GormCreditRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCreditRepository) WithTx(tx *gorm.DB) *GormCreditRepository {
	if tx == nil {
		return r
	}
	return &GormCreditRepository{db: tx}
}

// Transaction 执行数据库事务
func (r *GormCreditRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// GetAccountByUserID 按用户ID获取积分账户
func (r *GormCreditRepository) GetAccountByUserID(userID uint) (*models.CreditAccount, error) {
	if userID == 0 {
		return nil, nil
	}
	var account models.CreditAccount
	if err := r.db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetAccountByUserIDForUpdate 按用户ID加锁获取积分账户
func (r *GormCreditRepository) GetAccountByUserIDForUpdate(userID uint) (*models.CreditAccount, error) {
	if userID == 0 {
		return nil, nil
	}
	var account models.CreditAccount
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// CreateAccount 创建积分账户
func (r *GormCreditRepository) CreateAccount(account *models.CreditAccount) error {
	return r.db.Create(account).Error
}

// UpdateAccount 更新积分账户
func (r *GormCreditRepository) UpdateAccount(account *models.CreditAccount) error {
	return r.db.Save(account).Error
}

// CreateTransaction 创建积分流水
func (r *GormCreditRepository) CreateTransaction(txn *models.CreditTransaction) error {
	return r.db.Create(txn).Error
}

// UpdateTransaction 更新积分流水
func (r *GormCreditRepository) UpdateTransaction(txn *models.CreditTransaction) error {
	return r.db.Save(txn).Error
}

// GetTransactionByID 根据 ID 获取积分流水
func (r *GormCreditRepository) GetTransactionByID(id uint) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	if err := r.db.First(&txn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// GetTransactionByPaymentID 按支付ID获取充值流水
func (r *GormCreditRepository) GetTransactionByPaymentID(paymentID uint) (*models.CreditTransaction, error) {
	if paymentID == 0 {
		return nil, nil
	}
	var txn models.CreditTransaction
	result := r.db.Where("payment_id = ? AND type = ?", paymentID, "top_up").
		Order("id asc").Limit(1).Find(&txn)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &txn, nil
}

// GetTransactionByPaymentIDForUpdate 按支付ID加锁获取充值流水
func (r *GormCreditRepository) GetTransactionByPaymentIDForUpdate(paymentID uint) (*models.CreditTransaction, error) {
	if paymentID == 0 {
		return nil, nil
	}
	var txn models.CreditTransaction
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_id = ? AND type = ?", paymentID, "top_up").
		Order("id asc").
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// GetTransactionByReference 按业务引用号获取积分流水
func (r *GormCreditRepository) GetTransactionByReference(reference string) (*models.CreditTransaction, error) {
	if reference == "" {
		return nil, nil
	}
	var txn models.CreditTransaction
	result := r.db.Where("reference = ?", reference).Order("id asc").Limit(1).Find(&txn)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &txn, nil
}

// ListTransactions 分页查询积分流水
func (r *GormCreditRepository) ListTransactions(filter CreditTransactionListFilter) ([]models.CreditTransaction, int64, error) {
	query := r.db.Model(&models.CreditTransaction{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var txns []models.CreditTransaction
	if err := query.Order("id desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}
