package repository

import (
	"errors"
	"time"

	"github.com/subpay-core/internal/models"

	"gorm.io/gorm"
)

// AdminTaskRepository 人工任务数据访问接口
type AdminTaskRepository interface {
	Create(task *models.AdminTask) error
	GetByID(id uint) (*models.AdminTask, error)
	MarkDone(id uint, now time.Time) error
	List(filter AdminTaskListFilter) ([]models.AdminTask, int64, error)
	WithTx(tx *gorm.DB) *GormAdminTaskRepository
}

// GormAdminTaskRepository GORM 实现
type GormAdminTaskRepository struct {
	db *gorm.DB
}

// NewAdminTaskRepository 创建人工任务仓库
func NewAdminTaskRepository(db *gorm.DB) *GormAdminTaskRepository {
	return &GormAdminTaskRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAdminTaskRepository) WithTx(tx *gorm.DB) *GormAdminTaskRepository {
	if tx == nil {
		return r
	}
	return &GormAdminTaskRepository{db: tx}
}

// Create 创建人工任务
func (r *GormAdminTaskRepository) Create(task *models.AdminTask) error {
	return r.db.Create(task).Error
}

// GetByID 根据 ID 获取人工任务
func (r *GormAdminTaskRepository) GetByID(id uint) (*models.AdminTask, error) {
	var task models.AdminTask
	if err := r.db.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// MarkDone 标记任务完成
func (r *GormAdminTaskRepository) MarkDone(id uint, now time.Time) error {
	return r.db.Model(&models.AdminTask{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     "done",
		"done_at":    now,
		"updated_at": now,
	}).Error
}

// List 分页查询人工任务
func (r *GormAdminTaskRepository) List(filter AdminTaskListFilter) ([]models.AdminTask, int64, error) {
	query := r.db.Model(&models.AdminTask{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var tasks []models.AdminTask
	if err := query.Order("id desc").Find(&tasks).Error; err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}
