package model

import (
	"time"

	"gorm.io/gorm"
)

// User 用户模型
// 索引与唯一约束：用户名唯一、邮箱唯一
// 密码仅存储哈希（PasswordHash），不存储明文
// Approved 为管理员审批标记，未审批用户不能登录
type User struct {
	ID           uint64         `gorm:"primaryKey"`
	Username     string         `gorm:"type:varchar(64);not null;uniqueIndex;comment:用户名"`
	Email        string         `gorm:"type:varchar(128);uniqueIndex;comment:邮箱"`
	PasswordHash string         `gorm:"type:varchar(255);not null;comment:密码哈希"`
	Nickname     string         `gorm:"type:varchar(64);comment:昵称"`
	Avatar       string         `gorm:"type:varchar(255);comment:头像URL"`
	Role         string         `gorm:"type:varchar(32);default:'user';comment:角色"`
	Approved     bool           `gorm:"default:true;comment:是否通过审批"`
	Status       string         `gorm:"type:varchar(32);default:'offline';comment:状态"`
	LastSeen     time.Time      `gorm:"comment:最近在线时间"`
	CreatedAt    time.Time      `gorm:"comment:创建时间"`
	UpdatedAt    time.Time      `gorm:"comment:更新时间"`
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (User) TableName() string { return "user" }

// UserSettings 用户个性化设置
type UserSettings struct {
	ID               uint64    `gorm:"primaryKey"`
	UserID           uint64    `gorm:"not null;uniqueIndex;comment:用户ID"`
	NotifyOnMessage  bool      `gorm:"default:true;comment:新消息通知"`
	NotifyOnPresence bool      `gorm:"default:true;comment:好友上下线通知"`
	Theme            string    `gorm:"type:varchar(32);default:'light';comment:主题"`
	Language         string    `gorm:"type:varchar(16);default:'zh-CN';comment:语言"`
	CreatedAt        time.Time `gorm:"comment:创建时间"`
	UpdatedAt        time.Time `gorm:"comment:更新时间"`
}

func (UserSettings) TableName() string { return "user_settings" }

// LoginLog 登录日志
type LoginLog struct {
	ID        uint64    `gorm:"primaryKey"`
	UserID    uint64    `gorm:"not null;index;comment:用户ID"`
	IP        string    `gorm:"type:varchar(64);comment:登录IP"`
	Device    string    `gorm:"type:varchar(255);comment:设备标识"`
	Success   bool      `gorm:"comment:是否成功"`
	CreatedAt time.Time `gorm:"comment:登录时间"`
}

func (LoginLog) TableName() string { return "login_log" }

// ApprovalLog 审批日志
type ApprovalLog struct {
	ID         uint64    `gorm:"primaryKey"`
	UserID     uint64    `gorm:"not null;index;comment:被审批用户ID"`
	ApproverID uint64    `gorm:"not null;comment:审批人ID"`
	Approved   bool      `gorm:"comment:审批结果"`
	Reason     string    `gorm:"type:varchar(255);comment:审批说明"`
	CreatedAt  time.Time `gorm:"comment:审批时间"`
}

func (ApprovalLog) TableName() string { return "approval_log" }
