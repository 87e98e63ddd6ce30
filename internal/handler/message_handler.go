package handler

import (
	"strconv"

	"im-server/internal/delivery"
	"im-server/internal/model"
	"im-server/internal/offline"
	"im-server/pkg/imerr"
	"im-server/pkg/jwt"
	"im-server/pkg/response"

	"github.com/gin-gonic/gin"
)

// MessageHandler 消息接口
type MessageHandler struct {
	engine  *delivery.Engine
	offline *offline.Store
}

// NewMessageHandler 创建MessageHandler实例
func NewMessageHandler(engine *delivery.Engine, offlineStore *offline.Store) *MessageHandler {
	return &MessageHandler{engine: engine, offline: offlineStore}
}

// MessageView 消息视图
type MessageView struct {
	ID       uint64 `json:"id"`
	SenderID uint64 `json:"sender_id"`
	Receiver uint64 `json:"receiver_id,omitempty"`
	GroupID  uint64 `json:"group_id,omitempty"`
	Kind     string `json:"kind"`
	Content  string `json:"content"`
	IsRead   bool   `json:"is_read"`
	SendTime int64  `json:"send_time"`
	Extra    string `json:"extra,omitempty"`
}

// filterMessage 模型转视图
func filterMessage(m *model.Message) *MessageView {
	v := &MessageView{
		ID:       m.ID,
		SenderID: m.SenderID,
		Receiver: m.ReceiverID,
		Kind:     m.Kind,
		Content:  m.Content,
		IsRead:   m.IsRead,
		SendTime: m.SendTime,
		Extra:    m.Extra,
	}
	if m.GroupID != nil {
		v.GroupID = *m.GroupID
	}
	return v
}

// filterMessages 批量转视图
func filterMessages(messages []*model.Message) []*MessageView {
	out := make([]*MessageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, filterMessage(m))
	}
	return out
}

// Send 发送消息（REST入口，单聊或群聊二选一）
func (h *MessageHandler) Send(c *gin.Context) {
	type req struct {
		ToUserID uint64 `json:"to_user_id"`
		GroupID  uint64 `json:"group_id"`
		Kind     string `json:"kind"`
		Content  string `json:"content" binding:"required"`
		Extra    string `json:"extra"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	msg, err := h.engine.Submit(jwt.GetUserID(c),
		delivery.Recipient{UserID: r.ToUserID, GroupID: r.GroupID},
		r.Kind, r.Content, r.Extra)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "消息发送成功", gin.H{
		"message_id": msg.ID,
		"send_time":  msg.SendTime,
	})
}

// GetPrivateHistory 获取单聊历史
func (h *MessageHandler) GetPrivateHistory(c *gin.Context) {
	otherUserID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		response.Fail(c, imerr.Invalid("user_id格式错误"))
		return
	}

	page, pageSize := pagination(c)
	messages, err := h.engine.GetPrivateHistory(jwt.GetUserID(c), otherUserID, page, pageSize)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, filterMessages(messages))
}

// GetGroupHistory 获取群聊历史
func (h *MessageHandler) GetGroupHistory(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("group_id"), 10, 64)
	if err != nil {
		response.Fail(c, imerr.Invalid("group_id格式错误"))
		return
	}

	page, pageSize := pagination(c)
	messages, err := h.engine.GetGroupHistory(groupID, jwt.GetUserID(c), page, pageSize)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, filterMessages(messages))
}

// GetOffline 读取离线消息积压（只读，不出队）
// WebSocket认证路径负责破坏性补推，REST入口保持可重复查询
func (h *MessageHandler) GetOffline(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "100")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 1000 {
		limit = 100
	}

	envelopes, err := h.offline.PeekMessages(c.Request.Context(), jwt.GetUserID(c), limit)
	if err != nil {
		response.Fail(c, imerr.Cache("读取离线消息失败", err))
		return
	}
	response.Success(c, envelopes)
}

// MarkAsRead 标记消息已读
func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	messageID, err := strconv.ParseUint(c.Param("message_id"), 10, 64)
	if err != nil {
		response.Fail(c, imerr.Invalid("message_id格式错误"))
		return
	}

	if err := h.engine.MarkRead(messageID, jwt.GetUserID(c)); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "消息已标记为已读", nil)
}

// pagination 解析分页参数
func pagination(c *gin.Context) (page, pageSize int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
