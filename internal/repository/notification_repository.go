package repository

import (
	"im-server/internal/model"

	"gorm.io/gorm"
)

// NotificationRepository 通知仓储
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建NotificationRepository实例
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create 写入持久化通知
func (r *NotificationRepository) Create(n *model.Notification) error {
	return r.db.Create(n).Error
}

// ListUnread 列出用户未读通知
func (r *NotificationRepository) ListUnread(userID uint64, limit int) ([]*model.Notification, error) {
	var out []*model.Notification
	err := r.db.Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkRead 标记通知为已读
func (r *NotificationRepository) MarkRead(id, userID uint64) (int64, error) {
	res := r.db.Model(&model.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", id, userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// CreateAnnouncement 写入系统公告
func (r *NotificationRepository) CreateAnnouncement(a *model.SystemAnnouncement) error {
	return r.db.Create(a).Error
}
