// Package admin 提供管理端的 HTTP 处理器。
package admin

import (
	"github.com/subpay-core/internal/provider"
)

// Handler 管理端处理器
type Handler struct {
	container *provider.Container
}

// New 创建管理端处理器
func New(c *provider.Container) *Handler {
	return &Handler{container: c}
}
