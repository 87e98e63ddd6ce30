package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"im-server/config"
	"im-server/internal/event"
	"im-server/internal/model"
	"im-server/internal/offline"
	"im-server/internal/protocol"
	"im-server/internal/repository"
	"im-server/pkg/eventbus"
	"im-server/pkg/imerr"
	"im-server/pkg/kv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sessions 会话写能力（会话注册表实现）
type Sessions interface {
	SendToUser(userID uint64, frame []byte) int
	HasSessions(userID uint64) bool
}

// Publisher 事件发布能力
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Relations 关系查询能力（关系服务实现）
type Relations interface {
	IsGroupMember(groupID, userID uint64) (bool, error)
	GroupMemberIDs(groupID uint64) ([]uint64, error)
}

// Recipient 消息接收方：单聊为用户ID，群聊为群ID（二选一）
type Recipient struct {
	UserID  uint64
	GroupID uint64
}

// Engine 投递引擎
// 消息入口管线：校验→落库→缓存→发布事件→推送或离线入队
// 落库失败终止调用；落库之后任何一步失败都不回滚，消息视为已发送
type Engine struct {
	msgRepo   *repository.MessageRepository
	userRepo  *repository.UserRepository
	relations Relations
	sessions  Sessions
	offline   *offline.Store
	producer  Publisher
	rdb       *redis.Client
	cfg       config.MessageConfig
	log       *zap.Logger
}

// NewEngine 创建投递引擎
func NewEngine(
	msgRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	relations Relations,
	sessions Sessions,
	offlineStore *offline.Store,
	producer Publisher,
	cfg config.MessageConfig,
	log *zap.Logger,
) *Engine {
	return &Engine{
		msgRepo:   msgRepo,
		userRepo:  userRepo,
		relations: relations,
		sessions:  sessions,
		offline:   offlineStore,
		producer:  producer,
		rdb:       kv.Client(),
		cfg:       cfg,
		log:       log,
	}
}

// Submit 提交一条消息
// 返回落库后的消息（含存储层分配的ID与服务端毫秒时间戳）
func (e *Engine) Submit(senderID uint64, to Recipient, kind, content, extra string) (*model.Message, error) {
	// 1. 校验
	if senderID == 0 {
		return nil, imerr.Unauthenticated("发送者未认证")
	}
	if len(content) > e.cfg.MaxPayloadBytes {
		return nil, imerr.New(imerr.CodeMessageTooLarge, "消息长度超过限制")
	}
	if kind == "" {
		kind = model.KindText
	}
	if !model.ValidKind(kind) {
		return nil, imerr.New(imerr.CodeMessageBadKind, "不支持的消息类型")
	}

	var msg *model.Message
	switch {
	case to.UserID != 0:
		if to.UserID == senderID {
			return nil, imerr.New(imerr.CodeMessageSelfSend, "不能给自己发消息")
		}
		exists, err := e.userRepo.Exists(to.UserID)
		if err != nil {
			return nil, imerr.Storage("查询接收者失败", err)
		}
		if !exists {
			return nil, imerr.New(imerr.CodeUserNotFound, "接收者不存在")
		}
		msg = &model.Message{
			SenderID:   senderID,
			ReceiverID: to.UserID,
			Kind:       kind,
			Content:    content,
			Extra:      extra,
		}
	case to.GroupID != 0:
		member, err := e.relations.IsGroupMember(to.GroupID, senderID)
		if err != nil {
			return nil, imerr.Storage("查询群成员失败", err)
		}
		if !member {
			return nil, imerr.New(imerr.CodeGroupNotMember, "不是群成员")
		}
		gid := to.GroupID
		msg = &model.Message{
			SenderID: senderID,
			GroupID:  &gid,
			Kind:     kind,
			Content:  content,
			Extra:    extra,
		}
	default:
		return nil, imerr.Invalid("缺少接收者")
	}

	// 2. 落库，存储层分配消息ID，服务端填充毫秒时间戳
	msg.SendTime = time.Now().UnixMilli()
	if err := e.msgRepo.Create(msg); err != nil {
		return nil, imerr.Storage("消息落库失败", err)
	}

	// 3. 缓存最近消息，失败只记日志
	e.cacheMessage(msg)

	// 4. 发布message_sent事件，失败只记日志
	e.publishMessageSent(msg)

	// 5. 实时推送或离线入队
	if msg.GroupID != nil {
		e.deliverGroup(msg)
	} else {
		e.deliverPersonal(msg)
	}

	return msg, nil
}

// MarkRead 处理已读回执
// 谓词更新保证幂等：只有接收者本人能翻转，已翻转的再次调用无副作用
// 实际翻转时向原发送者的会话推送read_receipt_ack
func (e *Engine) MarkRead(messageID, readerID uint64) error {
	msg, err := e.msgRepo.GetByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return imerr.New(imerr.CodeMessageNotFound, "消息不存在")
		}
		return imerr.Storage("查询消息失败", err)
	}
	if msg.ReceiverID != readerID {
		return imerr.New(imerr.CodeMessageNotReceiver, "只能标记发给自己的消息")
	}

	affected, err := e.msgRepo.MarkAsRead(messageID, readerID)
	if err != nil {
		return imerr.Storage("标记已读失败", err)
	}
	if affected == 0 {
		// 已经是已读，幂等返回
		return nil
	}

	e.sessions.SendToUser(msg.SenderID, protocol.ReadReceiptAck(messageID, readerID))
	return nil
}

// GetPrivateHistory 获取单聊历史
// 第一页优先读会话缓存，未命中时直接查询数据库，不回填缓存
func (e *Engine) GetPrivateHistory(userID, otherUserID uint64, page, pageSize int) ([]*model.Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	if page == 1 && pageSize <= e.cfg.CacheSize {
		if cached, ok := e.cachedHistory(kv.PersonalChatKey(PairKey(userID, otherUserID)), pageSize); ok {
			return cached, nil
		}
	}

	messages, err := e.msgRepo.GetPrivateMessages(userID, otherUserID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, imerr.Storage("查询消息历史失败", err)
	}
	return messages, nil
}

// GetGroupHistory 获取群聊历史
func (e *Engine) GetGroupHistory(groupID uint64, userID uint64, page, pageSize int) ([]*model.Message, error) {
	member, err := e.relations.IsGroupMember(groupID, userID)
	if err != nil {
		return nil, imerr.Storage("查询群成员失败", err)
	}
	if !member {
		return nil, imerr.New(imerr.CodeGroupNotMember, "不是群成员")
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	if page == 1 && pageSize <= e.cfg.CacheSize {
		if cached, ok := e.cachedHistory(kv.GroupChatKey(groupID), pageSize); ok {
			return cached, nil
		}
	}

	messages, err := e.msgRepo.GetGroupMessages(groupID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, imerr.Storage("查询群消息历史失败", err)
	}
	return messages, nil
}

// deliverPersonal 单聊投递：在线写会话，离线入队
func (e *Engine) deliverPersonal(msg *model.Message) {
	frame := protocol.ChatMessage(msg.ID, msg.SenderID, msg.ReceiverID, msg.Kind, msg.Content, msg.SendTime)

	if delivered := e.sessions.SendToUser(msg.ReceiverID, frame); delivered > 0 {
		// 投递回执推给发送者的全部会话
		e.sessions.SendToUser(msg.SenderID, protocol.MessageAcknowledgement(msg.ID, msg.ReceiverID))
		return
	}

	e.enqueueOffline(msg.ReceiverID, msg)
}

// deliverGroup 群聊投递：逐成员尽力投递，发送者除外
// 单个成员失败不影响其他成员
func (e *Engine) deliverGroup(msg *model.Message) {
	groupID := *msg.GroupID
	members, err := e.relations.GroupMemberIDs(groupID)
	if err != nil {
		e.log.Error("获取群成员失败，等待消费端补投",
			zap.Uint64("group_id", groupID),
			zap.Error(err),
		)
		return
	}

	frame := protocol.GroupMessage(msg.ID, msg.SenderID, groupID, msg.Kind, msg.Content, msg.SendTime)
	for _, member := range members {
		if member == msg.SenderID {
			continue
		}
		if delivered := e.sessions.SendToUser(member, frame); delivered == 0 {
			e.enqueueOffline(member, msg)
		}
	}
}

// enqueueOffline 离线信封入队，失败只记日志（消费端兜底）
// 先占用(消息ID,接收者)幂等键，消费侧兜底用同一把键判重
func (e *Engine) enqueueOffline(userID uint64, msg *model.Message) {
	if e.rdb != nil {
		key := kv.FanoutDedupKey(fmt.Sprintf("msg:%d", msg.ID), userID)
		ok, err := e.rdb.SetNX(context.Background(), key, 1, 10*time.Minute).Result()
		if err == nil && !ok {
			return
		}
	}

	payload, err := json.Marshal(cachedMessage(msg))
	if err != nil {
		e.log.Error("序列化离线信封失败", zap.Error(err))
		return
	}
	env := &offline.Envelope{
		Kind:       offline.KindMessage,
		MessageID:  msg.ID,
		FromUserID: msg.SenderID,
		Payload:    payload,
		SendTime:   msg.SendTime,
	}
	if msg.GroupID != nil {
		env.GroupID = *msg.GroupID
	}
	if err := e.offline.EnqueueMessage(context.Background(), userID, env); err != nil {
		e.log.Error("离线消息入队失败",
			zap.Uint64("user_id", userID),
			zap.Uint64("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

// CachedMessage 会话缓存中的消息结构
type CachedMessage struct {
	ID         uint64 `json:"id"`
	SenderID   uint64 `json:"sender_id"`
	ReceiverID uint64 `json:"receiver_id,omitempty"`
	GroupID    uint64 `json:"group_id,omitempty"`
	Kind       string `json:"kind"`
	Content    string `json:"content"`
	IsRead     bool   `json:"is_read"`
	SendTime   int64  `json:"send_time"`
	Extra      string `json:"extra,omitempty"`
}

// cachedMessage 模型转缓存结构
func cachedMessage(msg *model.Message) *CachedMessage {
	c := &CachedMessage{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Kind:       msg.Kind,
		Content:    msg.Content,
		IsRead:     msg.IsRead,
		SendTime:   msg.SendTime,
		Extra:      msg.Extra,
	}
	if msg.GroupID != nil {
		c.GroupID = *msg.GroupID
	}
	return c
}

// cacheMessage 新消息推入会话缓存头部并裁剪
// 缓存故障不阻断投递
func (e *Engine) cacheMessage(msg *model.Message) {
	if e.rdb == nil {
		return
	}

	var key string
	if msg.GroupID != nil {
		key = kv.GroupChatKey(*msg.GroupID)
	} else {
		key = kv.PersonalChatKey(PairKey(msg.SenderID, msg.ReceiverID))
	}

	data, err := json.Marshal(cachedMessage(msg))
	if err != nil {
		e.log.Warn("序列化缓存消息失败", zap.Error(err))
		return
	}

	ctx := context.Background()
	pipe := e.rdb.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(e.cfg.CacheSize-1))
	pipe.Expire(ctx, key, e.cfg.CacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		e.log.Warn("更新会话缓存失败", zap.String("key", key), zap.Error(err))
	}
}

// cachedHistory 读取会话缓存，未命中或故障返回false
func (e *Engine) cachedHistory(key string, limit int) ([]*model.Message, bool) {
	if e.rdb == nil {
		return nil, false
	}

	results, err := e.rdb.LRange(context.Background(), key, 0, int64(limit-1)).Result()
	if err != nil || len(results) == 0 {
		return nil, false
	}

	messages := make([]*model.Message, 0, len(results))
	for _, raw := range results {
		var c CachedMessage
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			continue
		}
		m := &model.Message{
			ID:         c.ID,
			SenderID:   c.SenderID,
			ReceiverID: c.ReceiverID,
			Kind:       c.Kind,
			Content:    c.Content,
			IsRead:     c.IsRead,
			SendTime:   c.SendTime,
			Extra:      c.Extra,
		}
		if c.GroupID != 0 {
			gid := c.GroupID
			m.GroupID = &gid
		}
		messages = append(messages, m)
	}
	return messages, true
}

// publishMessageSent 发布消息事件
// 单聊发往messages-personal（key为接收者），群聊发往messages-group（key为群ID）
func (e *Engine) publishMessageSent(msg *model.Message) {
	payload := event.MessageSent{
		MessageID:  msg.ID,
		FromUserID: msg.SenderID,
		ToUserID:   msg.ReceiverID,
		Kind:       msg.Kind,
		Content:    msg.Content,
		SendTime:   msg.SendTime,
		Extra:      msg.Extra,
	}
	topic := eventbus.TopicMessagesPersonal
	key := strconv.FormatUint(msg.ReceiverID, 10)
	if msg.GroupID != nil {
		payload.GroupID = *msg.GroupID
		topic = eventbus.TopicMessagesGroup
		key = strconv.FormatUint(*msg.GroupID, 10)
	}

	env, err := event.New(event.TypeMessageSent, payload)
	if err != nil {
		e.log.Error("构造消息事件失败", zap.Error(err))
		return
	}
	data, err := env.Encode()
	if err != nil {
		e.log.Error("序列化消息事件失败", zap.Error(err))
		return
	}
	if err := e.producer.Publish(context.Background(), topic, key, data); err != nil {
		// 事件总线故障不阻断投递，直连路径已完成推送
		e.log.Error("发布消息事件失败",
			zap.Uint64("message_id", msg.ID),
			zap.Error(err),
		)
	}
}
