package admin

import (
	"sync"
	"time"

	"im-server/pkg/db"
	"im-server/pkg/imerr"
	"im-server/pkg/kv"
)

// ComponentStatus 单个组件的健康状态
type ComponentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"` // up/down
	Error  string `json:"error,omitempty"`
}

// SystemStatus 系统状态汇总
type SystemStatus struct {
	UptimeSeconds int64             `json:"uptime_seconds"`
	Sessions      int               `json:"sessions"`
	OnlineUsers   int               `json:"online_users"`
	Components    []ComponentStatus `json:"components"`
}

// SessionStats 由会话注册表实现
type SessionStats interface {
	SessionCount() int
	OnlineUserCount() int
}

// Service 管理服务：系统状态查询与子服务重启
type Service struct {
	startedAt time.Time
	sessions  SessionStats

	mu       sync.Mutex
	restarts map[string]func() error
}

// NewService 创建管理服务
func NewService(sessions SessionStats) *Service {
	return &Service{
		startedAt: time.Now(),
		sessions:  sessions,
		restarts:  make(map[string]func() error),
	}
}

// RegisterRestart 注册子服务重启钩子（sweeper/consumer等）
func (s *Service) RegisterRestart(name string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts[name] = fn
}

// Restart 重启指定子服务
func (s *Service) Restart(name string) error {
	s.mu.Lock()
	fn, ok := s.restarts[name]
	s.mu.Unlock()
	if !ok {
		return imerr.NotFound("子服务不存在: " + name)
	}
	if err := fn(); err != nil {
		return imerr.Wrap(imerr.CodeInternal, "重启子服务失败", err)
	}
	return nil
}

// Subservices 列出可重启的子服务名称
func (s *Service) Subservices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.restarts))
	for name := range s.restarts {
		names = append(names, name)
	}
	return names
}

// Status 汇总系统状态
func (s *Service) Status() *SystemStatus {
	status := &SystemStatus{
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.sessions != nil {
		status.Sessions = s.sessions.SessionCount()
		status.OnlineUsers = s.sessions.OnlineUserCount()
	}

	status.Components = append(status.Components, componentStatus("database", db.HealthCheck()))
	status.Components = append(status.Components, componentStatus("redis", kv.HealthCheck()))
	return status
}

func componentStatus(name string, err error) ComponentStatus {
	if err != nil {
		return ComponentStatus{Name: name, Status: "down", Error: err.Error()}
	}
	return ComponentStatus{Name: name, Status: "up"}
}
