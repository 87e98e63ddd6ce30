package eventbus

// 事件总线主题，按逻辑流划分
// 分区键为接收者ID（群聊为群ID），使同一接收者的事件集中到单个消费者
const (
	TopicMessagesPersonal   = "messages-personal"   // 单聊消息
	TopicMessagesGroup      = "messages-group"      // 群聊消息
	TopicOfflineMessages    = "offline-messages"    // 离线消息入队
	TopicRelationshipEvents = "relationship-events" // 好友关系事件
	TopicSystemEvents       = "system-events"       // 系统事件（上下线、广播）
	TopicFileEvents         = "file-events"         // 文件传输事件
)

// AllTopics 返回全部主题
func AllTopics() []string {
	return []string{
		TopicMessagesPersonal,
		TopicMessagesGroup,
		TopicOfflineMessages,
		TopicRelationshipEvents,
		TopicSystemEvents,
		TopicFileEvents,
	}
}
