package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"im-server/config"
	"im-server/internal/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionGone 会话不存在或已关闭
var ErrSessionGone = errors.New("session gone")

// PresenceNotifier 上下线回调
// 用户首个会话认证成功时触发上线，最后一个会话移除时触发下线
// 回调在注册表锁之外执行，实现方可以安全地做IO
type PresenceNotifier interface {
	SessionUp(userID uint64, sessionID string)
	SessionDown(userID uint64, sessionID string, last bool)
}

// Registry 会话注册表
// 持有全部活跃会话，按会话ID与用户ID双向索引
// 读（查找、推送）远多于写（注册、移除），使用读写锁
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byUser map[uint64]map[string]*Session

	notifier PresenceNotifier
	cfg      config.WebSocketConfig
	log      *zap.Logger
}

// NewRegistry 创建会话注册表
func NewRegistry(cfg config.WebSocketConfig, notifier PresenceNotifier, log *zap.Logger) *Registry {
	return &Registry{
		byID:     make(map[string]*Session),
		byUser:   make(map[uint64]map[string]*Session),
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// Accept 注册一个新会话，初始为未认证状态
// 须在传输握手完成后调用，返回会话实体
func (r *Registry) Accept(stream Stream, transport Transport) *Session {
	s := newSession(uuid.NewString(), transport, stream)

	r.mu.Lock()
	r.byID[s.ID()] = s
	r.mu.Unlock()

	r.log.Debug("会话注册",
		zap.String("session_id", s.ID()),
		zap.String("transport", string(transport)),
	)
	return s
}

// Authorize 将已验证的用户绑定到会话
// 会话须仍在注册表中，否则认证结果作废（与Remove竞争时以Remove为准）
func (r *Registry) Authorize(sessionID string, userID uint64) error {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return ErrSessionGone
	}
	s.userID.Store(userID)
	s.state.Store(int32(StateAuthorized))
	s.Touch()

	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]*Session)
	}
	r.byUser[userID][sessionID] = s
	first := len(r.byUser[userID]) == 1
	r.mu.Unlock()

	r.log.Info("会话认证成功",
		zap.String("session_id", sessionID),
		zap.Uint64("user_id", userID),
		zap.Bool("first_session", first),
	)

	if first && r.notifier != nil {
		r.notifier.SessionUp(userID, sessionID)
	}
	return nil
}

// Send 向指定会话写一帧，会话不存在时返回ErrSessionGone
// 写失败视为传输终止，移除会话
func (r *Registry) Send(sessionID string, frame []byte) error {
	r.mu.RLock()
	s, ok := r.byID[sessionID]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionGone
	}
	if err := s.Write(frame); err != nil {
		r.log.Warn("会话写失败，移除会话",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		r.Remove(sessionID)
		return err
	}
	return nil
}

// SendToUser 向用户的全部会话写一帧，返回成功写入的会话数
func (r *Registry) SendToUser(userID uint64, frame []byte) int {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byUser[userID]))
	for _, s := range r.byUser[userID] {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range sessions {
		if err := s.Write(frame); err != nil {
			r.Remove(s.ID())
			continue
		}
		delivered++
	}
	return delivered
}

// Broadcast 向全部已认证会话写一帧，返回成功写入的会话数
func (r *Registry) Broadcast(frame []byte) int {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		if s.Authorized() {
			sessions = append(sessions, s)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range sessions {
		if err := s.Write(frame); err != nil {
			r.Remove(s.ID())
			continue
		}
		delivered++
	}
	return delivered
}

// Get 查找会话
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[sessionID]
	return s, ok
}

// HasSessions 用户是否有活跃会话
func (r *Registry) HasSessions(userID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// SessionCount 活跃会话总数
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// OnlineUserCount 有活跃会话的用户数
func (r *Registry) OnlineUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Remove 移除并关闭会话
// 是会话唯一的销毁点；返回后不再有帧写入该会话
// 若为用户最后一个会话，触发下线回调
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, sessionID)

	userID := s.UserID()
	last := false
	if userID != 0 {
		if m := r.byUser[userID]; m != nil {
			delete(m, sessionID)
			if len(m) == 0 {
				delete(r.byUser, userID)
				last = true
			}
		}
	}
	r.mu.Unlock()

	// 锁外关闭流与执行回调
	s.shutdown()

	r.log.Debug("会话移除",
		zap.String("session_id", sessionID),
		zap.Uint64("user_id", userID),
		zap.Bool("last_session", last),
	)

	if userID != 0 && r.notifier != nil {
		r.notifier.SessionDown(userID, sessionID, last)
	}
}

// Sweep 清扫一轮：过期会话移除，僵尸会话发探测帧
// 僵尸探测写失败时立刻移除
func (r *Registry) Sweep(now time.Time) (expired, probed int) {
	r.mu.RLock()
	var toRemove []string
	var toProbe []*Session
	for id, s := range r.byID {
		idle := s.IdleSince(now)
		switch {
		case idle > r.cfg.ExpireAfter:
			toRemove = append(toRemove, id)
		case idle > r.cfg.ZombieAfter:
			toProbe = append(toProbe, s)
		}
	}
	r.mu.RUnlock()

	for _, id := range toRemove {
		r.Remove(id)
		expired++
	}

	probe := protocol.ServerPing()
	for _, s := range toProbe {
		if err := s.Write(probe); err != nil {
			r.Remove(s.ID())
			expired++
			continue
		}
		probed++
	}

	if expired > 0 || probed > 0 {
		r.log.Info("会话清扫完成",
			zap.Int("expired", expired),
			zap.Int("probed", probed),
		)
	}
	return expired, probed
}

// Run 周期清扫循环，直到ctx取消
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Shutdown 关闭全部会话（服务停机时调用）
func (r *Registry) Shutdown() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(id)
	}
}
