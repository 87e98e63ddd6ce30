package model

import (
	"time"

	"gorm.io/gorm"
)

// 文件上传状态
const (
	FileUploading = "uploading"
	FileComplete  = "complete"
	FileFailed    = "failed"
)

// File 文件元数据
// 分片字节传输由传输层负责，这里只记录元数据与上传状态
type File struct {
	ID         uint64         `gorm:"primaryKey"`
	OwnerID    uint64         `gorm:"not null;index;comment:上传者ID"`
	Name       string         `gorm:"type:varchar(255);not null;comment:文件名"`
	Size       int64          `gorm:"not null;comment:文件大小(字节)"`
	MimeType   string         `gorm:"type:varchar(128);comment:MIME类型"`
	Checksum   string         `gorm:"type:varchar(64);comment:内容校验和"`
	State      string         `gorm:"type:varchar(32);not null;default:'uploading';comment:上传状态"`
	ChunkCount int            `gorm:"comment:分片总数"`
	ChunkDone  int            `gorm:"comment:已完成分片数"`
	CreatedAt  time.Time      `gorm:"comment:创建时间"`
	UpdatedAt  time.Time      `gorm:"comment:更新时间"`
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (File) TableName() string { return "file" }

// FileTransferRequest 文件传输请求
// 状态机与好友请求相同：pending → accepted | rejected，一次性
type FileTransferRequest struct {
	ID         uint64         `gorm:"primaryKey"`
	FromUserID uint64         `gorm:"not null;index;comment:发起方ID"`
	ToUserID   uint64         `gorm:"not null;index;comment:接收方ID"`
	FileID     uint64         `gorm:"not null;comment:文件ID"`
	State      string         `gorm:"type:varchar(32);not null;default:'pending';comment:请求状态"`
	CreatedAt  time.Time      `gorm:"comment:创建时间"`
	UpdatedAt  time.Time      `gorm:"comment:更新时间"`
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (FileTransferRequest) TableName() string { return "file_transfer_request" }
