package public

import (
	"errors"

	"github.com/subpay-core/internal/http/handlers/shared"
	"github.com/subpay-core/internal/http/response"
	"github.com/subpay-core/internal/service"

	"github.com/gin-gonic/gin"
)

// respondServiceError 将服务层错误映射为统一响应。
// 已知的业务错误按原始消息透出，未知错误一律归为内部错误。
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPaymentNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrSubscriptionNotFound),
		errors.Is(err, service.ErrRefundNotFound),
		errors.Is(err, service.ErrCreditAccountNotFound),
		errors.Is(err, service.ErrUserNotFound):
		shared.RespondError(c, response.CodeNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrPaymentInvalid),
		errors.Is(err, service.ErrPaymentStatusInvalid),
		errors.Is(err, service.ErrOrderStatusInvalid),
		errors.Is(err, service.ErrRefundInvalid),
		errors.Is(err, service.ErrRefundStatusInvalid),
		errors.Is(err, service.ErrRefundWindowExpired),
		errors.Is(err, service.ErrRefundAmountInvalid),
		errors.Is(err, service.ErrRefundAlreadyActive),
		errors.Is(err, service.ErrCreditInvalidAmount),
		errors.Is(err, service.ErrCreditInsufficientBalance),
		errors.Is(err, service.ErrCreditCurrencyMismatch):
		shared.RespondError(c, response.CodeBadRequest, err.Error(), nil)
	default:
		shared.RespondError(c, response.CodeInternal, "系统繁忙，请稍后重试", err)
	}
}
