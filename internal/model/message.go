package model

import (
	"time"

	"gorm.io/gorm"
)

// 消息类型
const (
	KindText     = "text"
	KindImage    = "image"
	KindFileMeta = "file_meta"
	KindSystem   = "system"
)

// ValidKind 判断消息类型是否合法
func ValidKind(kind string) bool {
	switch kind {
	case KindText, KindImage, KindFileMeta, KindSystem:
		return true
	}
	return false
}

// Message 消息模型
// 单聊消息ReceiverID非零且GroupID为空，群聊消息GroupID非空
// SendTime为服务端毫秒时间戳，落库后不再变更
// IsRead只允许false→true单向翻转
type Message struct {
	ID         uint64         `gorm:"primaryKey"`
	SenderID   uint64         `gorm:"not null;index;comment:发送者ID"`
	ReceiverID uint64         `gorm:"index;comment:接收者ID(单聊)"`
	GroupID    *uint64        `gorm:"index;comment:群ID(群聊)"`
	Kind       string         `gorm:"type:varchar(32);not null;default:'text';comment:消息类型"`
	Content    string         `gorm:"type:text;not null;comment:消息内容"`
	SendTime   int64          `gorm:"not null;index;comment:发送时间(毫秒)"`
	IsRead     bool           `gorm:"default:false;comment:是否已读"`
	Extra      string         `gorm:"type:text;comment:扩展字段(JSON)"`
	CreatedAt  time.Time      `gorm:"comment:创建时间"`
	UpdatedAt  time.Time      `gorm:"comment:更新时间"`
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (Message) TableName() string { return "message" }

// Notification 持久化通知
type Notification struct {
	ID        uint64         `gorm:"primaryKey"`
	UserID    uint64         `gorm:"not null;index;comment:接收用户ID"`
	EventType string         `gorm:"type:varchar(64);not null;comment:事件类型"`
	Payload   string         `gorm:"type:text;comment:通知内容(JSON)"`
	IsRead    bool           `gorm:"default:false;comment:是否已读"`
	CreatedAt time.Time      `gorm:"comment:创建时间"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Notification) TableName() string { return "notification" }

// SystemAnnouncement 系统公告
type SystemAnnouncement struct {
	ID        uint64    `gorm:"primaryKey"`
	Title     string    `gorm:"type:varchar(255);not null;comment:标题"`
	Content   string    `gorm:"type:text;not null;comment:正文"`
	CreatedBy uint64    `gorm:"not null;comment:发布人ID"`
	CreatedAt time.Time `gorm:"comment:发布时间"`
}

func (SystemAnnouncement) TableName() string { return "system_announcement" }
