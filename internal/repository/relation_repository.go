package repository

import (
	"im-server/internal/model"

	"gorm.io/gorm"
)

// RelationRepository 好友与群组关系仓储
type RelationRepository struct {
	db *gorm.DB
}

// NewRelationRepository 创建RelationRepository实例
func NewRelationRepository(db *gorm.DB) *RelationRepository {
	return &RelationRepository{db: db}
}

// HasPendingRequest 判断(from,to)是否已有待处理请求
func (r *RelationRepository) HasPendingRequest(fromID, toID uint64) (bool, error) {
	var count int64
	err := r.db.Model(&model.FriendRequest{}).
		Where("from_user_id = ? AND to_user_id = ? AND state = ?", fromID, toID, model.RequestPending).
		Count(&count).Error
	return count > 0, err
}

// CreateRequest 创建好友请求
func (r *RelationRepository) CreateRequest(req *model.FriendRequest) error {
	return r.db.Create(req).Error
}

// GetRequestByID 根据ID获取好友请求
func (r *RelationRepository) GetRequestByID(id uint64) (*model.FriendRequest, error) {
	var req model.FriendRequest
	if err := r.db.First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// ListPendingRequests 列出用户收到的待处理请求
func (r *RelationRepository) ListPendingRequests(userID uint64) ([]*model.FriendRequest, error) {
	var reqs []*model.FriendRequest
	err := r.db.Where("to_user_id = ? AND state = ?", userID, model.RequestPending).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

// AcceptRequest 接受好友请求
// 单事务内：请求状态pending→accepted + 写入两条有向好友关系
// 状态谓词保证一次性：非pending状态下影响行数为0
func (r *RelationRepository) AcceptRequest(requestID uint64) (*model.FriendRequest, error) {
	var req model.FriendRequest
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&req, requestID).Error; err != nil {
			return err
		}
		res := tx.Model(&model.FriendRequest{}).
			Where("id = ? AND state = ?", requestID, model.RequestPending).
			Update("state", model.RequestAccepted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrInvalidTransaction
		}
		pair := []*model.FriendRelation{
			{UserID: req.FromUserID, FriendID: req.ToUserID},
			{UserID: req.ToUserID, FriendID: req.FromUserID},
		}
		return tx.Create(&pair).Error
	})
	if err != nil {
		return nil, err
	}
	req.State = model.RequestAccepted
	return &req, nil
}

// RejectRequest 拒绝好友请求，同样受pending谓词保护
func (r *RelationRepository) RejectRequest(requestID uint64) (*model.FriendRequest, int64, error) {
	var req model.FriendRequest
	if err := r.db.First(&req, requestID).Error; err != nil {
		return nil, 0, err
	}
	res := r.db.Model(&model.FriendRequest{}).
		Where("id = ? AND state = ?", requestID, model.RequestPending).
		Update("state", model.RequestRejected)
	if res.Error != nil {
		return nil, 0, res.Error
	}
	req.State = model.RequestRejected
	return &req, res.RowsAffected, nil
}

// ListFriendIDs 列出用户全部好友ID
func (r *RelationRepository) ListFriendIDs(userID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.Model(&model.FriendRelation{}).
		Where("user_id = ?", userID).
		Pluck("friend_id", &ids).Error
	return ids, err
}

// AreFriends 判断两个用户是否为好友
func (r *RelationRepository) AreFriends(userID, friendID uint64) (bool, error) {
	var count int64
	err := r.db.Model(&model.FriendRelation{}).
		Where("user_id = ? AND friend_id = ?", userID, friendID).
		Count(&count).Error
	return count > 0, err
}

// DeleteFriend 删除好友关系，两条有向行在单事务内删除
func (r *RelationRepository) DeleteFriend(userID, friendID uint64) (int64, error) {
	var affected int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where(
			"(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)",
			userID, friendID, friendID, userID,
		).Delete(&model.FriendRelation{})
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

// ListGroupMemberIDs 列出群成员ID
func (r *RelationRepository) ListGroupMemberIDs(groupID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.Model(&model.GroupMember{}).
		Where("group_id = ?", groupID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListUserGroupIDs 列出用户所属群ID
func (r *RelationRepository) ListUserGroupIDs(userID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.Model(&model.GroupMember{}).
		Where("user_id = ?", userID).
		Pluck("group_id", &ids).Error
	return ids, err
}

// IsGroupMember 判断用户是否在群内
func (r *RelationRepository) IsGroupMember(groupID, userID uint64) (bool, error) {
	var count int64
	err := r.db.Model(&model.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

// GroupExists 判断群是否存在
func (r *RelationRepository) GroupExists(groupID uint64) (bool, error) {
	var count int64
	err := r.db.Model(&model.Group{}).Where("id = ?", groupID).Count(&count).Error
	return count > 0, err
}
