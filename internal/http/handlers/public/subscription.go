package public

import (
	"strconv"

	"github.com/subpay-core/internal/http/handlers/shared"
	"github.com/subpay-core/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ListMySubscriptions 查询当前用户订阅列表
func (h *Handler) ListMySubscriptions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	subs, err := h.container.SubscriptionService.ListByUser(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, subs)
}

// GetMySubscription 查询当前用户的单个订阅
func (h *Handler) GetMySubscription(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, valid := paramID(c)
	if !valid {
		return
	}
	sub, err := h.container.SubscriptionService.GetByIDForUser(id, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, sub)
}

type setAutoRenewRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetSubscriptionAutoRenew 开关订阅的自动续费
func (h *Handler) SetSubscriptionAutoRenew(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, valid := paramID(c)
	if !valid {
		return
	}
	var req setAutoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		shared.RespondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	sub, err := h.container.SubscriptionService.SetAutoRenew(id, userID, *req.Enabled)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, sub)
}

// CancelSubscription 取消订阅，当前周期到期后不再续费
func (h *Handler) CancelSubscription(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, valid := paramID(c)
	if !valid {
		return
	}
	sub, err := h.container.SubscriptionService.Cancel(id, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, sub)
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "ID 无效", nil)
		return 0, false
	}
	return uint(id), true
}
