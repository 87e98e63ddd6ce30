package handler

import (
	"strconv"

	"im-server/internal/repository"
	"im-server/internal/session"
	"im-server/pkg/imerr"
	"im-server/pkg/jwt"
	"im-server/pkg/response"

	"github.com/gin-gonic/gin"
)

// 订阅流的发送缓冲，慢消费者超出缓冲即断流
const subscribeBuffer = 256

// NotificationHandler 通知接口
// Subscribe以服务端流的形式把通知推给长轮询客户端；
// WebSocket客户端走/ws，不需要该入口
type NotificationHandler struct {
	registry  *session.Registry
	notifRepo *repository.NotificationRepository
}

// NewNotificationHandler 创建NotificationHandler实例
func NewNotificationHandler(registry *session.Registry, notifRepo *repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{registry: registry, notifRepo: notifRepo}
}

// Subscribe 订阅通知（服务端流，SSE格式）
// 注册一个server_stream类型的会话，事件分发与直接投递都会写入该流
func (h *NotificationHandler) Subscribe(c *gin.Context) {
	userID := jwt.GetUserID(c)

	stream := session.NewChanStream(c.Request.RemoteAddr, subscribeBuffer)
	sess := h.registry.Accept(stream, session.TransportServerStream)
	if err := h.registry.Authorize(sess.ID(), userID); err != nil {
		response.Fail(c, imerr.Internal("注册订阅流失败"))
		return
	}
	defer h.registry.Remove(sess.ID())

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame, ok := <-stream.C:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(append(append([]byte("data: "), frame...), '\n', '\n')); err != nil {
				return
			}
			c.Writer.Flush()
			// 每写出一帧视为会话仍然活跃
			sess.Touch()
		}
	}
}

// List 列出未读的持久化通知
func (h *NotificationHandler) List(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}

	notifications, err := h.notifRepo.ListUnread(jwt.GetUserID(c), limit)
	if err != nil {
		response.Fail(c, imerr.Storage("查询通知失败", err))
		return
	}
	response.Success(c, notifications)
}

// MarkRead 标记通知已读
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	notifID, err := strconv.ParseUint(c.Param("notification_id"), 10, 64)
	if err != nil {
		response.Fail(c, imerr.Invalid("notification_id格式错误"))
		return
	}

	if _, err := h.notifRepo.MarkRead(notifID, jwt.GetUserID(c)); err != nil {
		response.Fail(c, imerr.Storage("标记通知失败", err))
		return
	}
	response.SuccessWithMessage(c, "通知已标记为已读", nil)
}
