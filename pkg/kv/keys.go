package kv

import "fmt"

// Redis键模式定义，集中在一处避免各组件拼错

// OnlineKey 用户在线标记（带TTL）
func OnlineKey(userID uint64) string {
	return fmt.Sprintf("user:%d:online", userID)
}

// LastSeenKey 用户最近在线时间戳
func LastSeenKey(userID uint64) string {
	return fmt.Sprintf("user:%d:last_seen", userID)
}

// SessionsKey 用户会话集合
func SessionsKey(userID uint64) string {
	return fmt.Sprintf("user:%d:sessions", userID)
}

// FriendsKey 用户好友ID集合缓存
func FriendsKey(userID uint64) string {
	return fmt.Sprintf("user:%d:friends", userID)
}

// GroupsKey 用户所属群ID集合缓存
func GroupsKey(userID uint64) string {
	return fmt.Sprintf("user:%d:groups", userID)
}

// NotificationsKey 用户离线通知队列
func NotificationsKey(userID uint64) string {
	return fmt.Sprintf("user:%d:notifications", userID)
}

// OfflineMessagesKey 用户离线消息队列
func OfflineMessagesKey(userID uint64) string {
	return fmt.Sprintf("user:%d:offline_messages", userID)
}

// PersonalChatKey 单聊会话消息缓存（pair为对称会话键）
func PersonalChatKey(pair uint64) string {
	return fmt.Sprintf("chat:personal:%d:messages", pair)
}

// GroupChatKey 群聊会话消息缓存
func GroupChatKey(groupID uint64) string {
	return fmt.Sprintf("chat:group:%d:messages", groupID)
}

// GroupMembersKey 群成员集合缓存
func GroupMembersKey(groupID uint64) string {
	return fmt.Sprintf("group:%d:members", groupID)
}

// VerificationCodeKey 邮箱验证码
func VerificationCodeKey(email string) string {
	return fmt.Sprintf("verification_code:%s", email)
}

// EmailVerifyRateKey 验证码发送频率限制
func EmailVerifyRateKey(email string) string {
	return fmt.Sprintf("email_verify_rate:%s", email)
}

// FanoutDedupKey 事件分发幂等键（事件ID+接收者）
func FanoutDedupKey(eventID string, userID uint64) string {
	return fmt.Sprintf("fanout:dedup:%s:%d", eventID, userID)
}
