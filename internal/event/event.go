package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// 事件类型，与总线主题对应
const (
	TypeMessageSent          = "message_sent"
	TypeFriendRequestSent    = "friend_request_sent"
	TypeFriendRequestAccept  = "friend_request_accepted"
	TypeFriendRequestReject  = "friend_request_rejected"
	TypeFriendDeleted        = "friend_deleted"
	TypePresenceChange       = "presence_change"
	TypeSystemBroadcast      = "system_broadcast"
	TypeFileTransferRequest  = "file_transfer_request"
	TypeFileTransferAccepted = "file_transfer_accepted"
	TypeFileTransferRejected = "file_transfer_rejected"
)

// Envelope 事件信封，所有总线载荷的公共结构
// EventID用于消费侧幂等去重
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// MessageSent 消息落库后的事件载荷
type MessageSent struct {
	MessageID  uint64 `json:"id"`
	FromUserID uint64 `json:"from_user_id"`
	ToUserID   uint64 `json:"to_user_id,omitempty"`
	GroupID    uint64 `json:"group_id,omitempty"`
	Kind       string `json:"kind"`
	Content    string `json:"content"`
	SendTime   int64  `json:"send_time"`
	Extra      string `json:"extra,omitempty"`
}

// Relationship 好友关系事件载荷
type Relationship struct {
	RequestID  uint64 `json:"request_id,omitempty"`
	FromUserID uint64 `json:"from_user_id"`
	ToUserID   uint64 `json:"to_user_id"`
	Message    string `json:"message,omitempty"`
}

// PresenceChange 在线状态变化事件载荷
type PresenceChange struct {
	UserID uint64 `json:"user_id"`
	Status string `json:"status"` // online/offline
}

// SystemBroadcast 系统广播事件载荷
type SystemBroadcast struct {
	FromUserID uint64 `json:"from_user_id"`
	Content    string `json:"content"`
}

// FileTransfer 文件传输事件载荷
type FileTransfer struct {
	RequestID  uint64 `json:"request_id"`
	FromUserID uint64 `json:"from_user_id"`
	ToUserID   uint64 `json:"to_user_id"`
	FileID     uint64 `json:"file_id,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
}

// New 封装事件载荷，生成事件ID与时间戳
func New(eventType string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().Unix(),
		Payload:   raw,
	}, nil
}

// Encode 序列化事件信封
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode 反序列化事件信封
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
