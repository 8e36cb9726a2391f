package admin

import (
	"strconv"

	"github.com/subpay-core/internal/http/handlers/shared"
	"github.com/subpay-core/internal/http/response"
	"github.com/subpay-core/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetAdminPayments 分页查询支付单
func (h *Handler) GetAdminPayments(c *gin.Context) {
	page, pageSize := shared.NormalizePagination(
		queryInt(c, "page", 1),
		queryInt(c, "page_size", 20),
	)

	payments, total, err := h.container.PaymentService.ListAdmin(repository.PaymentListFilter{
		Page:        page,
		PageSize:    pageSize,
		UserID:      uint(queryInt(c, "user_id", 0)),
		OrderID:     uint(queryInt(c, "order_id", 0)),
		Provider:    c.Query("provider"),
		Purpose:     c.Query("purpose"),
		Status:      c.Query("status"),
		CreatedFrom: queryTime(c, "created_from"),
		CreatedTo:   queryTime(c, "created_to"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, payments, buildPagination(page, pageSize, total))
}

// GetAdminPayment 查询单条支付单
func (h *Handler) GetAdminPayment(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	payment, err := h.container.PaymentService.GetByID(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payment)
}

// SyncAdminPayment 手工触发一次网关状态同步
func (h *Handler) SyncAdminPayment(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	result, err := h.container.ReconcileService.SyncPayment(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"outcome": result.Outcome,
		"payment": result.Payment,
	})
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "ID 无效", nil)
		return 0, false
	}
	return uint(id), true
}
