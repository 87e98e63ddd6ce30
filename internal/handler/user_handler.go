package handler

import (
	"strconv"

	"im-server/internal/model"
	"im-server/internal/user"
	"im-server/pkg/imerr"
	"im-server/pkg/jwt"
	"im-server/pkg/response"

	"github.com/gin-gonic/gin"
)

// UserHandler 用户接口
type UserHandler struct {
	service *user.Service
}

// NewUserHandler 创建UserHandler实例
func NewUserHandler(s *user.Service) *UserHandler {
	return &UserHandler{service: s}
}

// UserView 用户信息视图（隐藏敏感字段）
type UserView struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Status   string `json:"status"`
	LastSeen string `json:"last_seen"`
}

// filterUser 过滤用户敏感字段
func filterUser(u *model.User) *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Nickname: u.Nickname,
		Avatar:   u.Avatar,
		Status:   u.Status,
		LastSeen: u.LastSeen.Format("2006-01-02 15:04:05"),
	}
}

// Register 用户注册
func (h *UserHandler) Register(c *gin.Context) {
	type req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email"`
		Password string `json:"password" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	u, token, err := h.service.Register(r.Username, r.Email, r.Password)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "注册成功", gin.H{
		"user":         filterUser(u),
		"access_token": token,
	})
}

// Login 用户登录
func (h *UserHandler) Login(c *gin.Context) {
	type req struct {
		Identifier string `json:"identifier" binding:"required"`
		Password   string `json:"password" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	u, token, err := h.service.Login(r.Identifier, r.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "登录成功", gin.H{
		"user":         filterUser(u),
		"access_token": token,
	})
}

// GetProfile 获取当前用户资料
func (h *UserHandler) GetProfile(c *gin.Context) {
	u, err := h.service.GetProfile(jwt.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, filterUser(u))
}

// UpdateProfile 更新用户资料
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	type req struct {
		Nickname string `json:"nickname"`
		Avatar   string `json:"avatar"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	if err := h.service.UpdateProfile(jwt.GetUserID(c), r.Nickname, r.Avatar); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "资料更新成功", nil)
}

// GetSettings 获取用户设置
func (h *UserHandler) GetSettings(c *gin.Context) {
	settings, err := h.service.GetSettings(jwt.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, settings)
}

// UpdateSettings 保存用户设置
func (h *UserHandler) UpdateSettings(c *gin.Context) {
	var settings model.UserSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}
	settings.UserID = jwt.GetUserID(c)

	if err := h.service.SaveSettings(&settings); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "设置保存成功", nil)
}

// SendVerificationCode 发送邮箱验证码
func (h *UserHandler) SendVerificationCode(c *gin.Context) {
	type req struct {
		Email string `json:"email" binding:"required,email"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	// 验证码经邮件通道送达，接口不回显
	if _, err := h.service.SendVerificationCode(r.Email); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "验证码已发送", nil)
}

// VerifyCode 校验邮箱验证码
func (h *UserHandler) VerifyCode(c *gin.Context) {
	type req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	if err := h.service.VerifyCode(r.Email, r.Code); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "验证成功", nil)
}

// Approve 管理员审批用户
func (h *UserHandler) Approve(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		response.Fail(c, imerr.Invalid("user_id格式错误"))
		return
	}

	type req struct {
		Approved bool   `json:"approved"`
		Reason   string `json:"reason"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	if err := h.service.Approve(userID, jwt.GetUserID(c), r.Approved, r.Reason); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "审批完成", nil)
}
