package public

import (
	"strings"

	"github.com/subpay-core/internal/http/handlers/shared"
	"github.com/subpay-core/internal/http/response"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/service"

	"github.com/gin-gonic/gin"
)

type requestRefundRequest struct {
	PaymentID uint   `json:"payment_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Reason    string `json:"reason"`
}

// RequestRefund 用户发起充值退款申请
func (h *Handler) RequestRefund(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req requestRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	amount, err := models.NewMoneyFromString(req.Amount)
	if err != nil {
		shared.RespondError(c, response.CodeBadRequest, "退款金额无效", nil)
		return
	}

	refund, err := h.container.RefundService.Request(service.RefundRequestInput{
		UserID:    userID,
		PaymentID: req.PaymentID,
		Amount:    amount,
		Reason:    req.Reason,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, refund)
}

// GetMyRefund 按退款单号查询当前用户的退款申请
func (h *Handler) GetMyRefund(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	refundNo := strings.TrimSpace(c.Param("refund_no"))
	if refundNo == "" {
		shared.RespondError(c, response.CodeBadRequest, "退款单号无效", nil)
		return
	}
	refund, err := h.container.RefundService.GetByRefundNo(userID, refundNo)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, refund)
}
