package service

import (
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/repository"
)

// AdminTaskService 人工任务查询与处理
type AdminTaskService struct {
	adminTaskRepo repository.AdminTaskRepository
}

// NewAdminTaskService 创建人工任务服务
func NewAdminTaskService(adminTaskRepo repository.AdminTaskRepository) *AdminTaskService {
	return &AdminTaskService{adminTaskRepo: adminTaskRepo}
}

// List 分页查询人工任务
func (s *AdminTaskService) List(filter repository.AdminTaskListFilter) ([]models.AdminTask, int64, error) {
	return s.adminTaskRepo.List(filter)
}

// GetByID 查询人工任务
func (s *AdminTaskService) GetByID(id uint) (*models.AdminTask, error) {
	task, err := s.adminTaskRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrAdminTaskNotFound
	}
	return task, nil
}

// MarkDone 标记任务完成。已完成的任务重复标记视为幂等。
func (s *AdminTaskService) MarkDone(id uint) (*models.AdminTask, error) {
	task, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if task.Status == constants.AdminTaskStatusDone {
		return task, nil
	}
	now := time.Now()
	if err := s.adminTaskRepo.MarkDone(task.ID, now); err != nil {
		return nil, err
	}
	task.Status = constants.AdminTaskStatusDone
	task.DoneAt = &now
	task.UpdatedAt = now
	return task, nil
}
