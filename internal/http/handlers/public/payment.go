package public

import (
	"strconv"

	"github.com/subpay-core/internal/http/handlers/shared"
	"github.com/subpay-core/internal/http/response"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/service"

	"github.com/gin-gonic/gin"
)

type createCheckoutPaymentRequest struct {
	OrderID  uint   `json:"order_id" binding:"required"`
	Provider string `json:"provider" binding:"required"`
}

// CreateCheckoutPayment 为订单创建支付单
func (h *Handler) CreateCheckoutPayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createCheckoutPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	payment, err := h.container.PaymentService.CreateCheckoutPayment(service.CreateCheckoutPaymentInput{
		Context:  c.Request.Context(),
		OrderID:  req.OrderID,
		UserID:   userID,
		Provider: req.Provider,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payment)
}

type createTopUpPaymentRequest struct {
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency"`
	Provider string `json:"provider" binding:"required"`
}

// CreateTopUpPayment 创建额度充值支付单
func (h *Handler) CreateTopUpPayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createTopUpPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	amount, err := models.NewMoneyFromString(req.Amount)
	if err != nil {
		shared.RespondError(c, response.CodeBadRequest, "充值金额无效", nil)
		return
	}

	payment, err := h.container.PaymentService.CreateTopUpPayment(service.CreateTopUpPaymentInput{
		Context:  c.Request.Context(),
		UserID:   userID,
		Amount:   amount,
		Currency: req.Currency,
		Provider: req.Provider,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payment)
}

// GetPayment 查询当前用户的支付单
func (h *Handler) GetPayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		shared.RespondError(c, response.CodeBadRequest, "支付单 ID 无效", nil)
		return
	}

	payment, err := h.container.PaymentService.GetByIDForUser(uint(id), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payment)
}
