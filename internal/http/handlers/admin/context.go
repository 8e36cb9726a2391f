package admin

import (
	"github.com/subpay-core/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func currentAdminID(c *gin.Context) (uint, bool) {
	return shared.GetContextUint(c, "admin_id")
}

func currentAdminUsername(c *gin.Context) string {
	if value, ok := c.Get("username"); ok {
		if name, ok := value.(string); ok {
			return name
		}
	}
	return ""
}
