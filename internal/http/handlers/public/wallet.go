package public

import (
	"github.com/subpay-core/internal/http/handlers/shared"
	"github.com/subpay-core/internal/http/response"
	"github.com/subpay-core/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetMyCreditAccount 查询当前用户额度账户
func (h *Handler) GetMyCreditAccount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	account, err := h.container.CreditService.GetAccount(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, account)
}

// GetMyCreditTransactions 分页查询当前用户额度流水
func (h *Handler) GetMyCreditTransactions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	page, pageSize := shared.NormalizePagination(
		queryInt(c, "page", 1),
		queryInt(c, "page_size", 20),
	)

	txns, total, err := h.container.CreditService.ListTransactions(repository.CreditTransactionListFilter{
		Page:      page,
		PageSize:  pageSize,
		UserID:    userID,
		Type:      c.Query("type"),
		Direction: c.Query("direction"),
		Status:    c.Query("status"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, txns, buildPagination(page, pageSize, total))
}
