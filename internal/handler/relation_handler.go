package handler

import (
	"strconv"

	"im-server/internal/relation"
	"im-server/pkg/imerr"
	"im-server/pkg/jwt"
	"im-server/pkg/response"

	"github.com/gin-gonic/gin"
)

// RelationHandler 好友关系接口
type RelationHandler struct {
	service *relation.Service
}

// NewRelationHandler 创建RelationHandler实例
func NewRelationHandler(s *relation.Service) *RelationHandler {
	return &RelationHandler{service: s}
}

// AddFriend 发起好友请求
func (h *RelationHandler) AddFriend(c *gin.Context) {
	type req struct {
		ToUserID uint64 `json:"to_user_id" binding:"required"`
		Message  string `json:"message"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	request, err := h.service.SendFriendRequest(jwt.GetUserID(c), r.ToUserID, r.Message)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "好友请求已发送", gin.H{
		"request_id": request.ID,
		"state":      request.State,
	})
}

// HandleRequest 处理好友请求
func (h *RelationHandler) HandleRequest(c *gin.Context) {
	requestID, err := strconv.ParseUint(c.Param("request_id"), 10, 64)
	if err != nil {
		response.Fail(c, imerr.Invalid("request_id格式错误"))
		return
	}

	type req struct {
		Accept bool `json:"accept"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	request, err := h.service.HandleFriendRequest(requestID, jwt.GetUserID(c), r.Accept)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "请求处理完成", gin.H{
		"request_id": request.ID,
		"state":      request.State,
	})
}

// ListFriends 获取好友列表
func (h *RelationHandler) ListFriends(c *gin.Context) {
	ids, err := h.service.FriendIDs(jwt.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"friend_ids": ids})
}

// ListPending 获取收到的待处理请求
func (h *RelationHandler) ListPending(c *gin.Context) {
	reqs, err := h.service.ListPendingRequests(jwt.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, reqs)
}

// DeleteFriend 删除好友
func (h *RelationHandler) DeleteFriend(c *gin.Context) {
	friendID, err := strconv.ParseUint(c.Param("friend_id"), 10, 64)
	if err != nil {
		response.Fail(c, imerr.Invalid("friend_id格式错误"))
		return
	}

	if err := h.service.DeleteFriend(jwt.GetUserID(c), friendID); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "好友已删除", nil)
}
