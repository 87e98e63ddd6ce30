package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"im-server/config"
	"im-server/internal/delivery"
	"im-server/internal/event"
	"im-server/internal/offline"
	"im-server/internal/presence"
	"im-server/internal/protocol"
	"im-server/internal/repository"
	"im-server/internal/session"
	"im-server/pkg/eventbus"
	"im-server/pkg/imerr"
	"im-server/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 离线补推单批上限
const drainBatch = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// Publisher 事件发布能力
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Handler WebSocket接入层
// 升级连接→注册未认证会话→等待auth帧→认证后进入帧分发循环
type Handler struct {
	registry *session.Registry
	engine   *delivery.Engine
	presence *presence.Service
	offline  *offline.Store
	userRepo *repository.UserRepository
	jwtSvc   *jwt.JWTService
	producer Publisher
	cfg      config.WebSocketConfig
	log      *zap.Logger
}

// NewHandler 创建WebSocket接入层
func NewHandler(
	registry *session.Registry,
	engine *delivery.Engine,
	presenceSvc *presence.Service,
	offlineStore *offline.Store,
	userRepo *repository.UserRepository,
	jwtSvc *jwt.JWTService,
	producer Publisher,
	cfg config.WebSocketConfig,
	log *zap.Logger,
) *Handler {
	return &Handler{
		registry: registry,
		engine:   engine,
		presence: presenceSvc,
		offline:  offlineStore,
		userRepo: userRepo,
		jwtSvc:   jwtSvc,
		producer: producer,
		cfg:      cfg,
		log:      log,
	}
}

// Serve Gin路由处理函数，路径/ws
func (h *Handler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket升级失败", zap.Error(err))
		return
	}

	sess := h.registry.Accept(
		session.NewWSStream(c.Request.RemoteAddr, conn, h.cfg.WriteTimeout),
		session.TransportWebSocket,
	)

	// 欢迎帧携带会话ID
	if err := h.registry.Send(sess.ID(), protocol.Welcome(sess.ID())); err != nil {
		return
	}

	h.readLoop(conn, sess.ID())
}

// readLoop 会话读循环，退出时移除会话
// 认证前读超时为auth期限，认证后放宽到会话过期阈值（清扫器兜底）
func (h *Handler) readLoop(conn *websocket.Conn, sessionID string) {
	defer h.registry.Remove(sessionID)

	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.AuthTimeout))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		sess, ok := h.registry.Get(sessionID)
		if !ok {
			return
		}
		sess.Touch()

		frame, err := protocol.ParseClientFrame(payload)
		if err != nil {
			_ = h.registry.Send(sessionID, protocol.ErrorFrame(imerr.CodeWSBadFrame, "帧格式错误"))
			continue
		}

		if !sess.Authorized() {
			// 未认证会话只接受auth与ping
			switch frame.Type {
			case protocol.ClientAuth:
				if h.handleAuth(sessionID, frame) {
					_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ExpireAfter))
				}
			case protocol.ClientPing:
				_ = h.registry.Send(sessionID, protocol.Pong())
			default:
				_ = h.registry.Send(sessionID, protocol.ErrorFrame(imerr.CodeAuthRequired, "请先完成认证"))
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ExpireAfter))
		h.dispatch(sessionID, sess.UserID(), frame)
	}
}

// handleAuth 处理auth帧，返回是否认证成功
func (h *Handler) handleAuth(sessionID string, frame *protocol.ClientFrame) bool {
	claims, err := h.jwtSvc.ValidateToken(frame.Token)
	if err != nil {
		_ = h.registry.Send(sessionID, protocol.AuthResponse(false, 0, "token无效或已过期"))
		h.registry.Remove(sessionID)
		return false
	}

	userID := claims.UserID()
	if userID == 0 {
		_ = h.registry.Send(sessionID, protocol.AuthResponse(false, 0, "token无效"))
		h.registry.Remove(sessionID)
		return false
	}

	// 与Remove竞争时以Remove为准，认证结果作废
	if err := h.registry.Authorize(sessionID, userID); err != nil {
		return false
	}

	_ = h.registry.Send(sessionID, protocol.AuthResponse(true, userID, "认证成功"))

	// 补推离线积压
	h.drainOffline(sessionID, userID)
	return true
}

// dispatch 已认证会话的帧分发
func (h *Handler) dispatch(sessionID string, userID uint64, frame *protocol.ClientFrame) {
	switch frame.Type {
	case protocol.ClientPing:
		h.presence.Refresh(userID)
		_ = h.registry.Send(sessionID, protocol.Pong())

	case protocol.ClientChatMessage:
		h.handleChat(sessionID, userID, frame)

	case protocol.ClientGroupMessage:
		h.handleGroupChat(sessionID, userID, frame)

	case protocol.ClientReadReceipt:
		if err := h.engine.MarkRead(frame.MessageID, userID); err != nil {
			h.sendError(sessionID, err)
		}

	case protocol.ClientStatusUpdate:
		h.handleStatusUpdate(sessionID, userID, frame)

	case protocol.ClientBroadcast:
		h.handleBroadcast(sessionID, userID, frame)

	default:
		_ = h.registry.Send(sessionID, protocol.ErrorFrame(imerr.CodeWSBadFrame, "未知帧类型"))
	}
}

// handleChat 单聊消息帧
func (h *Handler) handleChat(sessionID string, userID uint64, frame *protocol.ClientFrame) {
	msg, err := h.engine.Submit(userID, delivery.Recipient{UserID: frame.ToUserID}, "", frame.Content, "")
	if err != nil {
		h.sendError(sessionID, err)
		return
	}
	_ = h.registry.Send(sessionID, protocol.MessageAck(msg.ID, msg.SendTime))
}

// handleGroupChat 群聊消息帧
func (h *Handler) handleGroupChat(sessionID string, userID uint64, frame *protocol.ClientFrame) {
	msg, err := h.engine.Submit(userID, delivery.Recipient{GroupID: frame.GroupID}, "", frame.Content, "")
	if err != nil {
		h.sendError(sessionID, err)
		return
	}
	_ = h.registry.Send(sessionID, protocol.MessageAck(msg.ID, msg.SendTime))
}

// handleStatusUpdate 用户状态声明帧（away/busy等）
func (h *Handler) handleStatusUpdate(sessionID string, userID uint64, frame *protocol.ClientFrame) {
	if frame.Status == "" {
		_ = h.registry.Send(sessionID, protocol.ErrorFrame(imerr.CodeInvalidParams, "缺少status字段"))
		return
	}
	if err := h.userRepo.UpdateStatus(userID, frame.Status); err != nil {
		h.sendError(sessionID, imerr.Storage("更新状态失败", err))
		return
	}
	h.presence.Refresh(userID)
}

// handleBroadcast 管理员广播帧
// 经事件总线走统一分发路径，而不是直接遍历会话
func (h *Handler) handleBroadcast(sessionID string, userID uint64, frame *protocol.ClientFrame) {
	u, err := h.userRepo.GetByID(userID)
	if err != nil || u.Role != "admin" {
		_ = h.registry.Send(sessionID, protocol.ErrorFrame(imerr.CodePermissionDenied, "需要管理员权限"))
		return
	}

	env, err := event.New(event.TypeSystemBroadcast, event.SystemBroadcast{
		FromUserID: userID,
		Content:    frame.Content,
	})
	if err != nil {
		h.sendError(sessionID, imerr.Internal("构造广播事件失败"))
		return
	}
	data, err := env.Encode()
	if err != nil {
		h.sendError(sessionID, imerr.Internal("序列化广播事件失败"))
		return
	}
	if err := h.producer.Publish(context.Background(), eventbus.TopicSystemEvents, strconv.FormatUint(userID, 10), data); err != nil {
		h.sendError(sessionID, imerr.EventBus("发布广播失败", err))
	}
}

// drainOffline 认证完成后补推离线积压（消息+通知）
func (h *Handler) drainOffline(sessionID string, userID uint64) {
	ctx := context.Background()

	messages, err := h.offline.DrainMessages(ctx, userID, drainBatch)
	if err != nil {
		h.log.Warn("离线消息出队失败", zap.Uint64("user_id", userID), zap.Error(err))
	}
	for _, env := range messages {
		// 路由信息取信封字段，消息内容取载荷的公共字段
		var body struct {
			Kind    string `json:"kind"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			h.log.Warn("离线信封载荷解析失败", zap.Error(err))
			continue
		}
		var frame []byte
		if env.GroupID != 0 {
			frame = protocol.GroupMessage(env.MessageID, env.FromUserID, env.GroupID, body.Kind, body.Content, env.SendTime)
		} else {
			frame = protocol.ChatMessage(env.MessageID, env.FromUserID, userID, body.Kind, body.Content, env.SendTime)
		}
		if err := h.registry.Send(sessionID, frame); err != nil {
			return
		}
	}

	notifications, err := h.offline.DrainNotifications(ctx, userID, drainBatch)
	if err != nil {
		h.log.Warn("离线通知出队失败", zap.Uint64("user_id", userID), zap.Error(err))
	}
	for _, env := range notifications {
		if err := h.registry.Send(sessionID, protocol.Notification(env.EventType, env.Payload)); err != nil {
			return
		}
	}
}

// sendError 业务错误转错误帧
func (h *Handler) sendError(sessionID string, err error) {
	var e *imerr.Error
	if !errors.As(err, &e) {
		e = imerr.Wrap(imerr.CodeInternal, "内部错误", err)
	}
	_ = h.registry.Send(sessionID, protocol.ErrorFrame(e.Code, e.Message))
}
