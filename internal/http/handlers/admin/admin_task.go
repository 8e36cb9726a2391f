package admin

import (
	"github.com/subpay-core/internal/http/handlers/shared"
	"github.com/subpay-core/internal/http/response"
	"github.com/subpay-core/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetAdminTasks 分页查询人工任务
func (h *Handler) GetAdminTasks(c *gin.Context) {
	page, pageSize := shared.NormalizePagination(
		queryInt(c, "page", 1),
		queryInt(c, "page_size", 20),
	)

	tasks, total, err := h.container.AdminTaskService.List(repository.AdminTaskListFilter{
		Page:     page,
		PageSize: pageSize,
		Type:     c.Query("type"),
		Status:   c.Query("status"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, tasks, buildPagination(page, pageSize, total))
}

// GetAdminTask 查询单条人工任务
func (h *Handler) GetAdminTask(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	task, err := h.container.AdminTaskService.GetByID(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, task)
}

// MarkAdminTaskDone 标记人工任务完成
func (h *Handler) MarkAdminTaskDone(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	task, err := h.container.AdminTaskService.MarkDone(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, task)
}
