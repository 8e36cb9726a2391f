package admin

import (
	"errors"

	"github.com/subpay-core/internal/http/handlers/shared"
	"github.com/subpay-core/internal/http/response"
	"github.com/subpay-core/internal/service"

	"github.com/gin-gonic/gin"
)

func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidPassword):
		shared.RespondError(c, response.CodeUnauthorized, err.Error(), nil)
	case errors.Is(err, service.ErrPaymentNotFound),
		errors.Is(err, service.ErrRefundNotFound),
		errors.Is(err, service.ErrAdminTaskNotFound),
		errors.Is(err, service.ErrUserNotFound):
		shared.RespondError(c, response.CodeNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrRefundStatusInvalid),
		errors.Is(err, service.ErrRefundInvalid),
		errors.Is(err, service.ErrPaymentStatusInvalid):
		shared.RespondError(c, response.CodeBadRequest, err.Error(), nil)
	default:
		shared.RespondError(c, response.CodeInternal, "系统繁忙，请稍后重试", err)
	}
}
