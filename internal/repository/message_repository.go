package repository

import (
	"im-server/internal/model"

	"gorm.io/gorm"
)

// MessageRepository 消息数据仓储
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建MessageRepository实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建消息，ID由存储层分配
func (r *MessageRepository) Create(message *model.Message) error {
	return r.db.Create(message).Error
}

// GetByID 根据ID获取消息
func (r *MessageRepository) GetByID(id uint64) (*model.Message, error) {
	var message model.Message
	if err := r.db.First(&message, id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// GetPrivateMessages 获取两个用户之间的私聊消息（双向，新的在前）
func (r *MessageRepository) GetPrivateMessages(userID, otherUserID uint64, limit, offset int) ([]*model.Message, error) {
	var messages []*model.Message

	err := r.db.Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		userID, otherUserID, otherUserID, userID,
	).
		Where("group_id IS NULL").
		Order("send_time DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error

	return messages, err
}

// GetGroupMessages 获取群聊消息（新的在前）
func (r *MessageRepository) GetGroupMessages(groupID uint64, limit, offset int) ([]*model.Message, error) {
	var messages []*model.Message

	err := r.db.Where("group_id = ?", groupID).
		Order("send_time DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error

	return messages, err
}

// GetUnreadMessages 获取用户未读消息（旧的在前，便于按序补推）
func (r *MessageRepository) GetUnreadMessages(userID uint64) ([]*model.Message, error) {
	var messages []*model.Message

	err := r.db.Where("receiver_id = ? AND is_read = ?", userID, false).
		Order("send_time ASC").
		Find(&messages).Error

	return messages, err
}

// MarkAsRead 标记消息为已读
// 谓词要求当前用户是接收者且消息未读，返回实际翻转的行数
// 重复调用影响行数为0，保证read回执的幂等
func (r *MessageRepository) MarkAsRead(messageID, readerID uint64) (int64, error) {
	res := r.db.Model(&model.Message{}).
		Where("id = ? AND receiver_id = ? AND is_read = ?", messageID, readerID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// GetUnreadCount 获取用户未读消息数量
func (r *MessageRepository) GetUnreadCount(userID uint64) (int64, error) {
	var count int64
	err := r.db.Model(&model.Message{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// DeleteMessage 删除消息（软删除），只能删除自己发送的消息
func (r *MessageRepository) DeleteMessage(messageID, userID uint64) (int64, error) {
	res := r.db.Where("id = ? AND sender_id = ?", messageID, userID).
		Delete(&model.Message{})
	return res.RowsAffected, res.Error
}
