package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Stream 会话的出站写通道能力集
// 两种实现：WebSocket连接（wsStream）与内存通道流（ChanStream，服务端流订阅推送与测试共用）
type Stream interface {
	// Write 写出一帧，失败视为传输终止
	Write(frame []byte) error
	// Close 关闭底层传输
	Close() error
	// ID 传输层标识（用于日志）
	ID() string
}

// wsStream gorilla连接上的流实现
// 写锁保证同一会话同一时刻至多一个出站写，保持帧序
type wsStream struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// NewWSStream 包装一个已完成升级的WebSocket连接
func NewWSStream(id string, conn *websocket.Conn, writeTimeout time.Duration) Stream {
	return &wsStream{id: id, conn: conn, writeTimeout: writeTimeout}
}

func (s *wsStream) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

func (s *wsStream) ID() string { return s.id }

// ChanStream 通道承载的流实现
// 服务端流式订阅与测试使用；缓冲满时按慢消费者丢弃处理
type ChanStream struct {
	id     string
	C      chan []byte
	mu     sync.Mutex
	closed bool
}

// NewChanStream 创建通道流
func NewChanStream(id string, buffer int) *ChanStream {
	return &ChanStream{id: id, C: make(chan []byte, buffer)}
}

func (s *ChanStream) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream %s 已关闭", s.id)
	}
	select {
	case s.C <- frame:
		return nil
	default:
		return fmt.Errorf("stream %s 缓冲已满", s.id)
	}
}

func (s *ChanStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.C)
	}
	return nil
}

func (s *ChanStream) ID() string { return s.id }
