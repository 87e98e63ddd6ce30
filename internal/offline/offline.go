package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"im-server/config"
	"im-server/pkg/kv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope 离线信封，消息与通知共用
// SendTime保留原始发送时间，客户端可据此重排
type Envelope struct {
	Kind       string          `json:"kind"` // message/notification
	MessageID  uint64          `json:"message_id,omitempty"`
	EventID    string          `json:"event_id,omitempty"`
	EventType  string          `json:"event_type,omitempty"`
	FromUserID uint64          `json:"from_user_id,omitempty"`
	GroupID    uint64          `json:"group_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	SendTime   int64           `json:"send_time"`
}

// 信封类别
const (
	KindMessage      = "message"
	KindNotification = "notification"
)

// Store 离线队列
// 每用户两条Redis列表：消息队列与通知队列，严格FIFO
// 入队设置TTL并限制长度（超限时淘汰最旧的）
type Store struct {
	rdb *redis.Client
	cfg config.OfflineConfig
	log *zap.Logger
}

// NewStore 创建离线队列
func NewStore(cfg config.OfflineConfig, log *zap.Logger) *Store {
	return &Store{rdb: kv.Client(), cfg: cfg, log: log}
}

// EnqueueMessage 追加离线消息
func (s *Store) EnqueueMessage(ctx context.Context, userID uint64, env *Envelope) error {
	return s.enqueue(ctx, kv.OfflineMessagesKey(userID), env, s.cfg.MessageTTL)
}

// EnqueueNotification 追加离线通知
func (s *Store) EnqueueNotification(ctx context.Context, userID uint64, env *Envelope) error {
	return s.enqueue(ctx, kv.NotificationsKey(userID), env, s.cfg.NotificationTTL)
}

// DrainMessages 从队首弹出至多max条离线消息
func (s *Store) DrainMessages(ctx context.Context, userID uint64, max int) ([]*Envelope, error) {
	return s.drain(ctx, kv.OfflineMessagesKey(userID), max)
}

// DrainNotifications 从队首弹出至多max条离线通知
func (s *Store) DrainNotifications(ctx context.Context, userID uint64, max int) ([]*Envelope, error) {
	return s.drain(ctx, kv.NotificationsKey(userID), max)
}

// PeekMessages 只读获取队首的离线消息，不出队
func (s *Store) PeekMessages(ctx context.Context, userID uint64, max int) ([]*Envelope, error) {
	return s.peek(ctx, kv.OfflineMessagesKey(userID), max)
}

// MessageCount 离线消息数量
func (s *Store) MessageCount(ctx context.Context, userID uint64) (int64, error) {
	if s.rdb == nil {
		return 0, fmt.Errorf("redis客户端未初始化")
	}
	return s.rdb.LLen(ctx, kv.OfflineMessagesKey(userID)).Result()
}

// enqueue 尾部追加、刷新TTL、裁剪队列长度
func (s *Store) enqueue(ctx context.Context, key string, env *Envelope, ttl time.Duration) error {
	if s.rdb == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("序列化离线信封失败: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, ttl)
	// 保留尾部max条，超限时淘汰队首（最旧）
	pipe.LTrim(ctx, key, int64(-s.cfg.MaxQueue), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("离线入队失败: %w", err)
	}
	return nil
}

// drain 从队首弹出
func (s *Store) drain(ctx context.Context, key string, max int) ([]*Envelope, error) {
	if s.rdb == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}
	if max <= 0 {
		max = 100
	}

	results, err := s.rdb.LPopCount(ctx, key, max).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("离线出队失败: %w", err)
	}
	return s.decodeAll(results), nil
}

// peek 只读取不弹出
func (s *Store) peek(ctx context.Context, key string, max int) ([]*Envelope, error) {
	if s.rdb == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}
	if max <= 0 {
		max = 100
	}

	results, err := s.rdb.LRange(ctx, key, 0, int64(max-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取离线队列失败: %w", err)
	}
	return s.decodeAll(results), nil
}

// decodeAll 反序列化信封列表，坏数据跳过
func (s *Store) decodeAll(results []string) []*Envelope {
	out := make([]*Envelope, 0, len(results))
	for _, raw := range results {
		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			s.log.Warn("离线信封解析失败，跳过", zap.Error(err))
			continue
		}
		out = append(out, &env)
	}
	return out
}
