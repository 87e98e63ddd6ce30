package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"im-server/internal/event"
	"im-server/internal/model"
	"im-server/internal/offline"
	"im-server/internal/protocol"
	"im-server/internal/repository"
	"im-server/pkg/eventbus"
	"im-server/pkg/kv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 幂等键生命周期：窗口内重复消费的事件不会二次入队
const dedupTTL = 10 * time.Minute

// Sessions 会话写能力（会话注册表实现）
type Sessions interface {
	SendToUser(userID uint64, frame []byte) int
	HasSessions(userID uint64) bool
	Broadcast(frame []byte) int
}

// Relations 关系查询能力（关系服务实现）
type Relations interface {
	FriendIDs(userID uint64) ([]uint64, error)
	GroupMemberIDs(groupID uint64) ([]uint64, error)
	UserGroupIDs(userID uint64) ([]uint64, error)
}

// Router 事件分发路由
// 消费总线事件，计算接收者集合，对在线会话直写、
// 对离线用户按幂等键去重后写入离线通知队列
// 事件至少投递一次，所有处理路径对(事件ID,接收者)幂等
type Router struct {
	sessions  Sessions
	relations Relations
	offline   *offline.Store
	notifRepo *repository.NotificationRepository
	rdb       *redis.Client
	log       *zap.Logger
}

// NewRouter 创建分发路由
func NewRouter(
	sessions Sessions,
	relations Relations,
	offlineStore *offline.Store,
	notifRepo *repository.NotificationRepository,
	log *zap.Logger,
) *Router {
	return &Router{
		sessions:  sessions,
		relations: relations,
		offline:   offlineStore,
		notifRepo: notifRepo,
		rdb:       kv.Client(),
		log:       log,
	}
}

// Topics 路由订阅的主题集合
func (r *Router) Topics() []string {
	return []string{
		eventbus.TopicRelationshipEvents,
		eventbus.TopicFileEvents,
		eventbus.TopicSystemEvents,
		eventbus.TopicMessagesPersonal,
		eventbus.TopicMessagesGroup,
	}
}

// Handle 消费一条总线事件
// 返回true提交offset；解析失败的坏事件直接提交跳过，避免卡死分区
func (r *Router) Handle(topic string, partition int, offset int64, key, value []byte) bool {
	env, err := event.Decode(value)
	if err != nil {
		r.log.Warn("事件解析失败，跳过",
			zap.String("topic", topic),
			zap.Int64("offset", offset),
			zap.Error(err),
		)
		return true
	}

	switch topic {
	case eventbus.TopicMessagesPersonal, eventbus.TopicMessagesGroup:
		r.handleMessage(env)
	case eventbus.TopicRelationshipEvents:
		r.handleRelationship(env)
	case eventbus.TopicFileEvents:
		r.handleFile(env)
	case eventbus.TopicSystemEvents:
		r.handleSystem(env)
	default:
		r.log.Warn("未知主题事件", zap.String("topic", topic))
	}
	return true
}

// handleMessage 消息事件兜底
// 直连路径在Submit内同步完成推送；消费侧只为没有会话的
// 接收者补写离线队列，按(消息ID,接收者)幂等
func (r *Router) handleMessage(env *event.Envelope) {
	var payload event.MessageSent
	if err := decodePayload(env, &payload); err != nil {
		r.log.Warn("消息事件载荷解析失败", zap.Error(err))
		return
	}

	var targets []uint64
	if payload.GroupID != 0 {
		members, err := r.relations.GroupMemberIDs(payload.GroupID)
		if err != nil {
			r.log.Error("消息兜底获取群成员失败", zap.Uint64("group_id", payload.GroupID), zap.Error(err))
			return
		}
		for _, m := range members {
			if m != payload.FromUserID {
				targets = append(targets, m)
			}
		}
	} else {
		targets = []uint64{payload.ToUserID}
	}

	// 幂等键按(消息ID,接收者)取，与直连路径的离线入队共用，
	// 避免Submit已入队的信封被消费侧重复补投
	dedupKey := fmt.Sprintf("msg:%d", payload.MessageID)
	for _, target := range targets {
		if r.sessions.HasSessions(target) {
			continue
		}
		if !r.claim(dedupKey, target) {
			continue
		}
		envl := &offline.Envelope{
			Kind:       offline.KindMessage,
			MessageID:  payload.MessageID,
			EventID:    env.EventID,
			FromUserID: payload.FromUserID,
			GroupID:    payload.GroupID,
			Payload:    env.Payload,
			SendTime:   payload.SendTime,
		}
		if err := r.offline.EnqueueMessage(context.Background(), target, envl); err != nil {
			r.log.Error("消息兜底入队失败", zap.Uint64("user_id", target), zap.Error(err))
		}
	}
}

// handleRelationship 好友关系事件分发
func (r *Router) handleRelationship(env *event.Envelope) {
	var payload event.Relationship
	if err := decodePayload(env, &payload); err != nil {
		r.log.Warn("关系事件载荷解析失败", zap.Error(err))
		return
	}

	var recipients []uint64
	switch env.EventType {
	case event.TypeFriendRequestSent:
		recipients = []uint64{payload.ToUserID}
	case event.TypeFriendRequestAccept, event.TypeFriendRequestReject:
		recipients = []uint64{payload.FromUserID}
	case event.TypeFriendDeleted:
		// 双方都收到删除通知
		recipients = []uint64{payload.FromUserID, payload.ToUserID}
	default:
		r.log.Warn("未知关系事件", zap.String("event_type", env.EventType))
		return
	}

	frame := protocol.Notification(env.EventType, env.Payload)
	for _, recipient := range dedup(recipients) {
		r.deliverNotification(env, recipient, frame)
	}
}

// handleFile 文件传输事件分发
func (r *Router) handleFile(env *event.Envelope) {
	var payload event.FileTransfer
	if err := decodePayload(env, &payload); err != nil {
		r.log.Warn("文件事件载荷解析失败", zap.Error(err))
		return
	}

	var recipients []uint64
	switch env.EventType {
	case event.TypeFileTransferRequest:
		recipients = []uint64{payload.ToUserID}
	case event.TypeFileTransferAccepted, event.TypeFileTransferRejected:
		recipients = []uint64{payload.FromUserID}
	default:
		r.log.Warn("未知文件事件", zap.String("event_type", env.EventType))
		return
	}

	frame := protocol.Notification(env.EventType, env.Payload)
	for _, recipient := range recipients {
		r.deliverNotification(env, recipient, frame)
	}
}

// handleSystem 系统事件分发：在线状态变化与全员广播
func (r *Router) handleSystem(env *event.Envelope) {
	switch env.EventType {
	case event.TypePresenceChange:
		r.handlePresence(env)
	case event.TypeSystemBroadcast:
		var payload event.SystemBroadcast
		if err := decodePayload(env, &payload); err != nil {
			r.log.Warn("广播事件载荷解析失败", zap.Error(err))
			return
		}
		delivered := r.sessions.Broadcast(protocol.SystemBroadcast(payload.Content))
		r.log.Info("系统广播完成",
			zap.String("event_id", env.EventID),
			zap.Int("delivered", delivered),
		)
	default:
		r.log.Warn("未知系统事件", zap.String("event_type", env.EventType))
	}
}

// handlePresence 在线状态变化分发
// 接收者集合 = 好友 ∪ 各共同群的成员 \ 本人，跨集合去重
// 好友收到user_status帧，仅为群友的收到group_user_status帧
// 在线状态是瞬时信息，离线用户不补通知
func (r *Router) handlePresence(env *event.Envelope) {
	var payload event.PresenceChange
	if err := decodePayload(env, &payload); err != nil {
		r.log.Warn("presence事件载荷解析失败", zap.Error(err))
		return
	}

	recipients := r.PresenceRecipients(payload.UserID)

	friendFrame := protocol.UserStatus(payload.UserID, payload.Status)
	for _, rec := range recipients.Friends {
		r.sessions.SendToUser(rec, friendFrame)
	}
	for groupID, members := range recipients.GroupOnly {
		frame := protocol.GroupUserStatus(groupID, payload.UserID, payload.Status)
		for _, rec := range members {
			r.sessions.SendToUser(rec, frame)
		}
	}
}

// Recipients 在线状态变化的接收者集合
// Friends为用户的好友；GroupOnly为仅通过群关系关联的成员（已去除好友与本人）
type Recipients struct {
	Friends   []uint64
	GroupOnly map[uint64][]uint64
}

// PresenceRecipients 计算presence_change的接收者集合并去重
func (r *Router) PresenceRecipients(userID uint64) Recipients {
	out := Recipients{GroupOnly: make(map[uint64][]uint64)}

	friends, err := r.relations.FriendIDs(userID)
	if err != nil {
		r.log.Error("获取好友列表失败", zap.Uint64("user_id", userID), zap.Error(err))
	}
	seen := make(map[uint64]struct{}, len(friends)+1)
	seen[userID] = struct{}{}
	for _, f := range friends {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out.Friends = append(out.Friends, f)
	}

	groups, err := r.relations.UserGroupIDs(userID)
	if err != nil {
		r.log.Error("获取用户群列表失败", zap.Uint64("user_id", userID), zap.Error(err))
		return out
	}
	for _, groupID := range groups {
		members, err := r.relations.GroupMemberIDs(groupID)
		if err != nil {
			r.log.Error("获取群成员失败", zap.Uint64("group_id", groupID), zap.Error(err))
			continue
		}
		for _, m := range members {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out.GroupOnly[groupID] = append(out.GroupOnly[groupID], m)
		}
	}
	return out
}

// deliverNotification 向单个接收者投递通知
// 持久化通知行；有会话直写，无会话按幂等键入离线通知队列
func (r *Router) deliverNotification(env *event.Envelope, recipient uint64, frame []byte) {
	if r.notifRepo != nil {
		if !r.claim("persist:"+env.EventID, recipient) {
			// 本窗口已处理过该事件，跳过重复持久化与投递
			return
		}
		if err := r.notifRepo.Create(&model.Notification{
			UserID:    recipient,
			EventType: env.EventType,
			Payload:   string(env.Payload),
		}); err != nil {
			r.log.Error("持久化通知失败", zap.Uint64("user_id", recipient), zap.Error(err))
		}
	}

	if r.sessions.SendToUser(recipient, frame) > 0 {
		return
	}

	envl := &offline.Envelope{
		Kind:      offline.KindNotification,
		EventID:   env.EventID,
		EventType: env.EventType,
		Payload:   env.Payload,
		SendTime:  env.Timestamp * 1000,
	}
	if err := r.offline.EnqueueNotification(context.Background(), recipient, envl); err != nil {
		r.log.Error("离线通知入队失败", zap.Uint64("user_id", recipient), zap.Error(err))
	}
}

// claim 占用幂等键
// 返回true表示首次处理；Redis不可用时放行（宁可重复不可丢失）
func (r *Router) claim(eventID string, userID uint64) bool {
	if r.rdb == nil {
		return true
	}
	ok, err := r.rdb.SetNX(context.Background(), kv.FanoutDedupKey(eventID, userID), 1, dedupTTL).Result()
	if err != nil {
		r.log.Warn("幂等键占用失败", zap.Error(err))
		return true
	}
	return ok
}

// dedup 去除重复接收者，保持原有顺序
func dedup(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// decodePayload 解析事件载荷
func decodePayload(env *event.Envelope, v interface{}) error {
	return json.Unmarshal(env.Payload, v)
}
