package presence

import (
	"context"
	"strconv"
	"sync"
	"time"

	"im-server/config"
	"im-server/internal/event"
	"im-server/internal/repository"
	"im-server/pkg/eventbus"
	"im-server/pkg/kv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 在线状态取值
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// LiveChecker 由会话注册表实现，报告用户是否有活跃会话
type LiveChecker interface {
	HasSessions(userID uint64) bool
}

// Publisher 事件发布能力（事件总线生产者实现）
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Service 在线状态服务
// 每个用户在KV中维护两份状态：带TTL的在线标记、下线时写入的last_seen
// 上下线转换经过抖动抑制后发布presence_change事件
type Service struct {
	rdb      *redis.Client
	live     LiveChecker
	producer Publisher
	userRepo *repository.UserRepository
	cfg      config.PresenceConfig
	log      *zap.Logger

	// 抖动抑制：窗口内的重复转换合并为一次发布
	mu    sync.Mutex
	flaps map[uint64]*flapState
}

// flapState 单用户的抑制窗口状态
type flapState struct {
	lastPublished string // 最近一次实际发布的状态
	desired       string // 窗口内最新的期望状态
	timer         *time.Timer
}

// NewService 创建在线状态服务
func NewService(live LiveChecker, producer Publisher, userRepo *repository.UserRepository, cfg config.PresenceConfig, log *zap.Logger) *Service {
	return &Service{
		rdb:      kv.Client(),
		live:     live,
		producer: producer,
		userRepo: userRepo,
		cfg:      cfg,
		log:      log,
	}
}

// BindLive 绑定会话注册表
// 注册表构造时需要presence作为回调，存在先后依赖，启动时二段装配
func (s *Service) BindLive(live LiveChecker) {
	s.live = live
}

// SessionUp 会话上线回调（用户首个会话认证成功时由注册表调用）
func (s *Service) SessionUp(userID uint64, sessionID string) {
	ctx := context.Background()

	// 记录会话归属并设置在线标记
	if s.rdb != nil {
		if err := s.rdb.SAdd(ctx, kv.SessionsKey(userID), sessionID).Err(); err != nil {
			s.log.Warn("记录会话集合失败", zap.Uint64("user_id", userID), zap.Error(err))
		}
		if err := s.rdb.Set(ctx, kv.OnlineKey(userID), time.Now().Unix(), s.cfg.MarkerTTL).Err(); err != nil {
			s.log.Warn("设置在线标记失败", zap.Uint64("user_id", userID), zap.Error(err))
		}
	}

	// 更新数据库用户状态
	if s.userRepo != nil {
		_ = s.userRepo.UpdateStatus(userID, StatusOnline)
	}

	s.transition(userID, StatusOnline)
}

// SessionDown 会话下线回调
// last为true表示这是用户最后一个会话：写last_seen并让在线标记过期
func (s *Service) SessionDown(userID uint64, sessionID string, last bool) {
	ctx := context.Background()

	if s.rdb != nil {
		if err := s.rdb.SRem(ctx, kv.SessionsKey(userID), sessionID).Err(); err != nil {
			s.log.Warn("移除会话集合失败", zap.Uint64("user_id", userID), zap.Error(err))
		}
	}

	if !last {
		return
	}

	now := time.Now()
	if s.rdb != nil {
		if err := s.rdb.Set(ctx, kv.LastSeenKey(userID), now.Unix(), 0).Err(); err != nil {
			s.log.Warn("写入last_seen失败", zap.Uint64("user_id", userID), zap.Error(err))
		}
		// 删除在线标记，不等TTL自然过期
		_ = s.rdb.Del(ctx, kv.OnlineKey(userID)).Err()
	}

	if s.userRepo != nil {
		_ = s.userRepo.UpdateStatus(userID, StatusOffline)
		_ = s.userRepo.UpdateLastSeen(userID, now)
	}

	s.transition(userID, StatusOffline)
}

// Refresh 心跳刷新在线标记TTL
func (s *Service) Refresh(userID uint64) {
	if s.rdb == nil {
		return
	}
	ctx := context.Background()
	if err := s.rdb.Expire(ctx, kv.OnlineKey(userID), s.cfg.MarkerTTL).Err(); err != nil {
		s.log.Warn("刷新在线标记失败", zap.Uint64("user_id", userID), zap.Error(err))
	}
}

// IsOnline 判断用户是否在线
// 有活跃会话即在线；跨节点场景回退到KV在线标记
func (s *Service) IsOnline(userID uint64) bool {
	if s.live != nil && s.live.HasSessions(userID) {
		return true
	}
	if s.rdb == nil {
		return false
	}
	n, err := s.rdb.Exists(context.Background(), kv.OnlineKey(userID)).Result()
	if err != nil {
		s.log.Warn("查询在线标记失败", zap.Uint64("user_id", userID), zap.Error(err))
		return false
	}
	return n > 0
}

// LastSeen 获取用户最近在线时间戳（unix秒），无记录时返回0
func (s *Service) LastSeen(userID uint64) int64 {
	if s.rdb == nil {
		return 0
	}
	v, err := s.rdb.Get(context.Background(), kv.LastSeenKey(userID)).Result()
	if err != nil {
		return 0
	}
	ts, _ := strconv.ParseInt(v, 10, 64)
	return ts
}

// transition 状态转换入口，经过抖动抑制窗口后发布事件
// 窗口内首个转换立即发布并开窗；窗口内的后续转换只记录期望状态，
// 窗口结束时若期望状态与已发布状态不同再补发一次
func (s *Service) transition(userID uint64, status string) {
	s.mu.Lock()
	st, ok := s.flaps[userID]
	if s.flaps == nil {
		s.flaps = make(map[uint64]*flapState)
	}
	if !ok || st.timer == nil {
		// 无活动窗口：立即发布并开窗
		st = &flapState{lastPublished: status, desired: status}
		s.flaps[userID] = st
		st.timer = time.AfterFunc(s.cfg.Debounce, func() { s.settle(userID) })
		s.mu.Unlock()
		s.publish(userID, status)
		return
	}
	// 窗口内：合并转换
	st.desired = status
	s.mu.Unlock()
}

// settle 窗口结束，必要时补发最终状态
func (s *Service) settle(userID uint64) {
	s.mu.Lock()
	st, ok := s.flaps[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	needPublish := st.desired != st.lastPublished
	final := st.desired
	delete(s.flaps, userID)
	s.mu.Unlock()

	if needPublish {
		s.publish(userID, final)
	}
}

// publish 发布presence_change事件
func (s *Service) publish(userID uint64, status string) {
	if s.producer == nil {
		return
	}
	env, err := event.New(event.TypePresenceChange, event.PresenceChange{
		UserID: userID,
		Status: status,
	})
	if err != nil {
		s.log.Error("构造presence事件失败", zap.Error(err))
		return
	}
	data, err := env.Encode()
	if err != nil {
		s.log.Error("序列化presence事件失败", zap.Error(err))
		return
	}
	key := strconv.FormatUint(userID, 10)
	if err := s.producer.Publish(context.Background(), eventbus.TopicSystemEvents, key, data); err != nil {
		// 事件总线故障不阻断上下线流程
		s.log.Error("发布presence事件失败", zap.Uint64("user_id", userID), zap.Error(err))
	}

	s.log.Info("在线状态变化",
		zap.Uint64("user_id", userID),
		zap.String("status", status),
	)
}
