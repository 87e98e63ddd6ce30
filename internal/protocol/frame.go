package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"im-server/pkg/imerr"
)

// 客户端帧类型
const (
	ClientAuth         = "auth"
	ClientPing         = "ping"
	ClientChatMessage  = "chat_message"
	ClientGroupMessage = "group_message"
	ClientStatusUpdate = "status_update"
	ClientReadReceipt  = "read_receipt"
	ClientBroadcast    = "broadcast"
)

// 服务端帧类型
const (
	ServerWelcome         = "welcome"
	ServerAuthResponse    = "auth_response"
	ServerPong            = "pong"
	ServerChatMessage     = "chat_message"
	ServerGroupMessage    = "group_message"
	ServerUserStatus      = "user_status"
	ServerGroupUserStatus = "group_user_status"
	ServerSystemBroadcast = "system_broadcast"
	ServerMessageAck      = "message_ack"
	ServerMessageAckRecv  = "message_acknowledgement"
	ServerReadReceiptAck  = "read_receipt_ack"
	ServerError           = "error"
)

// ClientFrame 入站帧，所有可能字段的并集
// Type为必填，其余按帧类型取用
type ClientFrame struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	ToUserID  uint64 `json:"to_user_id,omitempty"`
	GroupID   uint64 `json:"group_id,omitempty"`
	Content   string `json:"content,omitempty"`
	MessageID uint64 `json:"message_id,omitempty"`
	SenderID  uint64 `json:"sender_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ParseClientFrame 解析入站帧
func ParseClientFrame(data []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析帧失败: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("帧缺少type字段")
	}
	return &f, nil
}

// now 统一的帧时间戳（秒）
func now() int64 { return time.Now().Unix() }

// marshal 序列化出站帧；出站结构均可序列化，失败属编程错误
func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("序列化帧失败: %v", err))
	}
	return data
}

// Welcome 连接建立帧
func Welcome(sessionID string) []byte {
	return marshal(map[string]interface{}{
		"type":       ServerWelcome,
		"session_id": sessionID,
		"message":    "请在10秒内发送auth帧完成认证",
		"timestamp":  now(),
	})
}

// AuthResponse 认证结果帧
func AuthResponse(success bool, userID uint64, message string) []byte {
	return marshal(map[string]interface{}{
		"type":      ServerAuthResponse,
		"success":   success,
		"user_id":   userID,
		"message":   message,
		"timestamp": now(),
	})
}

// Pong 心跳应答帧
func Pong() []byte {
	return marshal(map[string]interface{}{
		"type":      ServerPong,
		"timestamp": now(),
	})
}

// ServerPing 服务端主动探活帧（僵尸会话探测）
func ServerPing() []byte {
	return marshal(map[string]interface{}{
		"type":      "ping",
		"timestamp": now(),
	})
}

// ChatMessage 单聊消息推送帧
func ChatMessage(messageID, fromUserID, toUserID uint64, kind, content string, sendTime int64) []byte {
	return marshal(map[string]interface{}{
		"type":         ServerChatMessage,
		"message_id":   messageID,
		"from_user_id": fromUserID,
		"to_user_id":   toUserID,
		"kind":         kind,
		"content":      content,
		"send_time":    sendTime,
		"timestamp":    now(),
	})
}

// GroupMessage 群聊消息推送帧
func GroupMessage(messageID, fromUserID, groupID uint64, kind, content string, sendTime int64) []byte {
	return marshal(map[string]interface{}{
		"type":         ServerGroupMessage,
		"message_id":   messageID,
		"from_user_id": fromUserID,
		"group_id":     groupID,
		"kind":         kind,
		"content":      content,
		"send_time":    sendTime,
		"timestamp":    now(),
	})
}

// UserStatus 好友上下线通知帧
func UserStatus(userID uint64, status string) []byte {
	return marshal(map[string]interface{}{
		"type":      ServerUserStatus,
		"user_id":   userID,
		"status":    status,
		"timestamp": now(),
	})
}

// GroupUserStatus 群成员上下线通知帧
func GroupUserStatus(groupID, userID uint64, status string) []byte {
	return marshal(map[string]interface{}{
		"type":      ServerGroupUserStatus,
		"group_id":  groupID,
		"user_id":   userID,
		"status":    status,
		"timestamp": now(),
	})
}

// SystemBroadcast 系统广播帧
func SystemBroadcast(content string) []byte {
	return marshal(map[string]interface{}{
		"type":      ServerSystemBroadcast,
		"content":   content,
		"timestamp": now(),
	})
}

// MessageAck 发送回执帧（服务端已受理）
func MessageAck(messageID uint64, sendTime int64) []byte {
	return marshal(map[string]interface{}{
		"type":       ServerMessageAck,
		"message_id": messageID,
		"send_time":  sendTime,
		"status":     "sent",
		"timestamp":  now(),
	})
}

// MessageAcknowledgement 投递回执帧（已写入接收方会话）
func MessageAcknowledgement(messageID, toUserID uint64) []byte {
	return marshal(map[string]interface{}{
		"type":       ServerMessageAckRecv,
		"message_id": messageID,
		"to_user_id": toUserID,
		"status":     "delivered",
		"timestamp":  now(),
	})
}

// ReadReceiptAck 已读回执帧（推给原发送者）
func ReadReceiptAck(messageID, readerID uint64) []byte {
	return marshal(map[string]interface{}{
		"type":       ServerReadReceiptAck,
		"message_id": messageID,
		"reader_id":  readerID,
		"status":     "read",
		"timestamp":  now(),
	})
}

// ErrorFrame 错误帧
func ErrorFrame(code imerr.Code, message string) []byte {
	return marshal(map[string]interface{}{
		"type":      ServerError,
		"code":      code,
		"message":   message,
		"timestamp": now(),
	})
}

// Notification 通用通知帧（好友/文件事件转发给客户端）
func Notification(eventType string, payload json.RawMessage) []byte {
	return marshal(map[string]interface{}{
		"type":      eventType,
		"payload":   payload,
		"timestamp": now(),
	})
}
