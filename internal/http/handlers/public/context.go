package public

import (
	"github.com/subpay-core/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func currentUserID(c *gin.Context) (uint, bool) {
	return shared.GetContextUint(c, "user_id")
}
