package model

import (
	"time"

	"gorm.io/gorm"
)

// 好友请求状态
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// FriendRelation 好友关系（有向）
// 好友关系对称：接受请求时在一个事务内写入(u,f)与(f,u)两行
type FriendRelation struct {
	ID        uint64         `gorm:"primaryKey"`
	UserID    uint64         `gorm:"not null;uniqueIndex:ux_user_friend,priority:1;comment:用户ID"`
	FriendID  uint64         `gorm:"not null;uniqueIndex:ux_user_friend,priority:2;comment:好友ID"`
	CreatedAt time.Time      `gorm:"comment:创建时间"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (FriendRelation) TableName() string { return "friend_relation" }

// FriendRequest 好友请求
// 状态机：pending → accepted | rejected，单向一次性
// (from,to)在pending状态下唯一
type FriendRequest struct {
	ID         uint64         `gorm:"primaryKey"`
	FromUserID uint64         `gorm:"not null;index;comment:发起方ID"`
	ToUserID   uint64         `gorm:"not null;index;comment:接收方ID"`
	Message    string         `gorm:"type:varchar(255);comment:验证消息"`
	State      string         `gorm:"type:varchar(32);not null;default:'pending';comment:请求状态"`
	CreatedAt  time.Time      `gorm:"comment:创建时间"`
	UpdatedAt  time.Time      `gorm:"comment:更新时间"`
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (FriendRequest) TableName() string { return "friend_request" }

// Group 群组
type Group struct {
	ID        uint64         `gorm:"primaryKey"`
	Name      string         `gorm:"type:varchar(128);not null;comment:群名称"`
	OwnerID   uint64         `gorm:"not null;comment:群主ID"`
	CreatedAt time.Time      `gorm:"comment:创建时间"`
	UpdatedAt time.Time      `gorm:"comment:更新时间"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Group) TableName() string { return "group" }

// GroupMember 群成员
type GroupMember struct {
	ID        uint64         `gorm:"primaryKey"`
	GroupID   uint64         `gorm:"not null;uniqueIndex:ux_group_user,priority:1;comment:群ID"`
	UserID    uint64         `gorm:"not null;uniqueIndex:ux_group_user,priority:2;comment:成员ID"`
	Role      string         `gorm:"type:varchar(32);default:'member';comment:群内角色"`
	CreatedAt time.Time      `gorm:"comment:加入时间"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (GroupMember) TableName() string { return "group_member" }
