package repository

import (
	"errors"
	"time"

	"im-server/internal/model"

	"gorm.io/gorm"
)

// UserRepository 用户数据仓储
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建UserRepository实例
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 创建用户
func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// GetByID 根据ID获取用户
func (r *UserRepository) GetByID(id uint64) (*model.User, error) {
	var u model.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByUsernameOrEmail 根据用户名或邮箱获取用户
func (r *UserRepository) GetByUsernameOrEmail(identifier string) (*model.User, error) {
	var u model.User
	if err := r.db.Where("username = ? OR email = ?", identifier, identifier).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// Exists 判断用户是否存在
func (r *UserRepository) Exists(id uint64) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// ExistsByUsernameOrEmail 判断用户名或邮箱是否已被占用
func (r *UserRepository) ExistsByUsernameOrEmail(username, email string) (bool, error) {
	var count int64
	q := r.db.Model(&model.User{}).Where("username = ?", username)
	if email != "" {
		q = q.Or("email = ?", email)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateStatus 更新用户状态
func (r *UserRepository) UpdateStatus(id uint64, status string) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Update("status", status).Error
}

// UpdateLastSeen 更新最近在线时间
func (r *UserRepository) UpdateLastSeen(id uint64, t time.Time) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Update("last_seen", t).Error
}

// UpdateInfo 更新用户资料（昵称/头像）
func (r *UserRepository) UpdateInfo(id uint64, updates map[string]interface{}) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(updates).Error
}

// Approve 审批用户并写入审批日志（单事务）
func (r *UserRepository) Approve(userID, approverID uint64, approved bool, reason string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.User{}).Where("id = ?", userID).Update("approved", approved)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(&model.ApprovalLog{
			UserID:     userID,
			ApproverID: approverID,
			Approved:   approved,
			Reason:     reason,
		}).Error
	})
}

// GetSettings 获取用户设置，不存在时返回默认值
func (r *UserRepository) GetSettings(userID uint64) (*model.UserSettings, error) {
	var s model.UserSettings
	err := r.db.Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.UserSettings{
			UserID:           userID,
			NotifyOnMessage:  true,
			NotifyOnPresence: true,
			Theme:            "light",
			Language:         "zh-CN",
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSettings 保存用户设置（upsert）
func (r *UserRepository) SaveSettings(s *model.UserSettings) error {
	var existing model.UserSettings
	err := r.db.Where("user_id = ?", s.UserID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(s).Error
	}
	if err != nil {
		return err
	}
	s.ID = existing.ID
	return r.db.Save(s).Error
}

// CreateLoginLog 写入登录日志
func (r *UserRepository) CreateLoginLog(log *model.LoginLog) error {
	return r.db.Create(log).Error
}
