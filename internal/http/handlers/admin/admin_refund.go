package admin

import (
	"strings"

	"github.com/subpay-core/internal/http/handlers/shared"
	"github.com/subpay-core/internal/http/response"
	"github.com/subpay-core/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetAdminRefunds 分页查询退款申请
func (h *Handler) GetAdminRefunds(c *gin.Context) {
	page, pageSize := shared.NormalizePagination(
		queryInt(c, "page", 1),
		queryInt(c, "page_size", 20),
	)

	refunds, total, err := h.container.RefundService.ListAdmin(repository.RefundListFilter{
		Page:        page,
		PageSize:    pageSize,
		UserID:      uint(queryInt(c, "user_id", 0)),
		PaymentID:   uint(queryInt(c, "payment_id", 0)),
		Status:      c.Query("status"),
		CreatedFrom: queryTime(c, "created_from"),
		CreatedTo:   queryTime(c, "created_to"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, refunds, buildPagination(page, pageSize, total))
}

// ApproveRefund 批准退款申请，执行动作交由队列异步完成
func (h *Handler) ApproveRefund(c *gin.Context) {
	if _, ok := currentAdminID(c); !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	refund, err := h.container.RefundService.Approve(id, currentAdminUsername(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, refund)
}

type rejectRefundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectRefund 驳回退款申请
func (h *Handler) RejectRefund(c *gin.Context) {
	if _, ok := currentAdminID(c); !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req rejectRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		shared.RespondError(c, response.CodeBadRequest, "驳回原因不能为空", err)
		return
	}
	refund, err := h.container.RefundService.Reject(id, currentAdminUsername(c), req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, refund)
}
