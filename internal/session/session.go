package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// State 会话状态
type State int32

const (
	StateHandshaking State = iota // 传输握手中
	StateUnauth                   // 已建立，未认证
	StateAuthorized               // 已认证
	StateClosing                  // 关闭中
	StateClosed                   // 已关闭
)

// Transport 传输类型
type Transport string

const (
	TransportWebSocket    Transport = "websocket"
	TransportServerStream Transport = "server_stream"
	TransportBidiStream   Transport = "bidi_stream"
)

// Session 会话实体，由Registry独占持有
// 其他组件只通过会话ID与用户ID寻址，不保存长期引用
type Session struct {
	id        string
	transport Transport
	createdAt time.Time
	stream    Stream

	userID     atomic.Uint64 // 认证前为0
	state      atomic.Int32
	lastActive atomic.Int64 // unix秒

	// writeMu串行化出站写并保护closed判定
	// Remove返回后closed恒为true，保证不再有帧写入
	writeMu sync.Mutex
	closed  bool
}

func newSession(id string, transport Transport, stream Stream) *Session {
	s := &Session{
		id:        id,
		transport: transport,
		createdAt: time.Now(),
		stream:    stream,
	}
	s.state.Store(int32(StateUnauth))
	s.lastActive.Store(time.Now().Unix())
	return s
}

// ID 会话ID
func (s *Session) ID() string { return s.id }

// UserID 关联用户ID，未认证时为0
func (s *Session) UserID() uint64 { return s.userID.Load() }

// State 当前状态
func (s *Session) State() State { return State(s.state.Load()) }

// Transport 传输类型
func (s *Session) Transport() Transport { return s.transport }

// CreatedAt 创建时间
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Authorized 是否已认证
func (s *Session) Authorized() bool { return s.State() == StateAuthorized }

// Touch 刷新活跃时间，任何入站帧都应调用
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().Unix())
}

// LastActive 最近活跃时间
func (s *Session) LastActive() time.Time {
	return time.Unix(s.lastActive.Load(), 0)
}

// IdleSince 距最近活跃的时长
func (s *Session) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastActive())
}

// Write 向会话写出一帧
// 会话已进入关闭流程时返回错误，写错误视为传输终止
func (s *Session) Write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrSessionGone
	}
	return s.stream.Write(frame)
}

// shutdown 标记关闭并断开底层流，只能由Registry调用
func (s *Session) shutdown() {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return
	}
	s.closed = true
	s.state.Store(int32(StateClosing))
	s.writeMu.Unlock()

	_ = s.stream.Close()
	s.state.Store(int32(StateClosed))
}
