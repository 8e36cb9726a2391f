// Package public 提供面向用户侧的 HTTP 处理器。
package public

import (
	"github.com/subpay-core/internal/provider"
)

// Handler 用户侧处理器
type Handler struct {
	container *provider.Container
}

// New 创建用户侧处理器
func New(c *provider.Container) *Handler {
	return &Handler{container: c}
}
