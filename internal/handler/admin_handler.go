package handler

import (
	"im-server/internal/admin"
	"im-server/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler 管理接口（须管理员角色）
type AdminHandler struct {
	service *admin.Service
}

// NewAdminHandler 创建AdminHandler实例
func NewAdminHandler(s *admin.Service) *AdminHandler {
	return &AdminHandler{service: s}
}

// Status 系统状态
func (h *AdminHandler) Status(c *gin.Context) {
	response.Success(c, h.service.Status())
}

// Subservices 列出可重启的子服务
func (h *AdminHandler) Subservices(c *gin.Context) {
	response.Success(c, gin.H{"subservices": h.service.Subservices()})
}

// Restart 重启指定子服务
func (h *AdminHandler) Restart(c *gin.Context) {
	name := c.Param("name")
	if err := h.service.Restart(name); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "子服务已重启", gin.H{"name": name})
}
