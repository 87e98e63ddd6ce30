package relation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"im-server/internal/event"
	"im-server/internal/model"
	"im-server/internal/repository"
	"im-server/pkg/eventbus"
	"im-server/pkg/imerr"
	"im-server/pkg/kv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 关系集合缓存TTL
const cacheTTL = time.Hour

// Publisher 事件发布能力
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Service 好友与群组关系服务
// 关系事实以数据库为准，KV中的好友/群成员集合仅为缓存：
// 未命中时回源数据库并重建，变更时直接失效
type Service struct {
	repo     *repository.RelationRepository
	userRepo *repository.UserRepository
	rdb      *redis.Client
	producer Publisher
	log      *zap.Logger
}

// NewService 创建关系服务
func NewService(repo *repository.RelationRepository, userRepo *repository.UserRepository, producer Publisher, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		userRepo: userRepo,
		rdb:      kv.Client(),
		producer: producer,
		log:      log,
	}
}

// SendFriendRequest 发起好友请求
// 同一(from,to)在pending状态下唯一；已是好友或自己加自己直接拒绝
func (s *Service) SendFriendRequest(fromID, toID uint64, message string) (*model.FriendRequest, error) {
	if fromID == toID {
		return nil, imerr.New(imerr.CodeFriendReqSelf, "不能添加自己为好友")
	}

	exists, err := s.userRepo.Exists(toID)
	if err != nil {
		return nil, imerr.Storage("查询用户失败", err)
	}
	if !exists {
		return nil, imerr.New(imerr.CodeUserNotFound, "用户不存在")
	}

	already, err := s.repo.AreFriends(fromID, toID)
	if err != nil {
		return nil, imerr.Storage("查询好友关系失败", err)
	}
	if already {
		return nil, imerr.New(imerr.CodeFriendAlreadyExists, "已经是好友")
	}

	pending, err := s.repo.HasPendingRequest(fromID, toID)
	if err != nil {
		return nil, imerr.Storage("查询好友请求失败", err)
	}
	if pending {
		return nil, imerr.New(imerr.CodeFriendReqDuplicate, "已有待处理的好友请求")
	}

	req := &model.FriendRequest{
		FromUserID: fromID,
		ToUserID:   toID,
		Message:    message,
		State:      model.RequestPending,
	}
	if err := s.repo.CreateRequest(req); err != nil {
		return nil, imerr.Storage("创建好友请求失败", err)
	}

	// 事件发布失败不回滚请求创建
	s.publishRelationship(event.TypeFriendRequestSent, req, toID)
	return req, nil
}

// HandleFriendRequest 处理好友请求（接受或拒绝）
// 状态机单向一次性：非pending状态再次处理返回conflict
func (s *Service) HandleFriendRequest(requestID, userID uint64, accept bool) (*model.FriendRequest, error) {
	req, err := s.repo.GetRequestByID(requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imerr.New(imerr.CodeFriendReqNotFound, "好友请求不存在")
		}
		return nil, imerr.Storage("查询好友请求失败", err)
	}
	if req.ToUserID != userID {
		return nil, imerr.PermissionDenied("只能处理发给自己的好友请求")
	}
	if req.State != model.RequestPending {
		return nil, imerr.New(imerr.CodeFriendReqNotPending, "请求已处理")
	}

	if accept {
		req, err = s.repo.AcceptRequest(requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrInvalidTransaction) {
				return nil, imerr.New(imerr.CodeFriendReqNotPending, "请求已处理")
			}
			return nil, imerr.Storage("接受好友请求失败", err)
		}
		// 双方好友集合缓存失效
		s.invalidateFriends(req.FromUserID)
		s.invalidateFriends(req.ToUserID)
		s.publishRelationship(event.TypeFriendRequestAccept, req, req.FromUserID)
		return req, nil
	}

	var affected int64
	req, affected, err = s.repo.RejectRequest(requestID)
	if err != nil {
		return nil, imerr.Storage("拒绝好友请求失败", err)
	}
	if affected == 0 {
		return nil, imerr.New(imerr.CodeFriendReqNotPending, "请求已处理")
	}
	s.publishRelationship(event.TypeFriendRequestReject, req, req.FromUserID)
	return req, nil
}

// ListPendingRequests 列出收到的待处理请求
func (s *Service) ListPendingRequests(userID uint64) ([]*model.FriendRequest, error) {
	reqs, err := s.repo.ListPendingRequests(userID)
	if err != nil {
		return nil, imerr.Storage("查询好友请求失败", err)
	}
	return reqs, nil
}

// DeleteFriend 删除好友
// 两条有向行同事务删除，双方都会收到friend_deleted通知
func (s *Service) DeleteFriend(userID, friendID uint64) error {
	affected, err := s.repo.DeleteFriend(userID, friendID)
	if err != nil {
		return imerr.Storage("删除好友失败", err)
	}
	if affected == 0 {
		return imerr.New(imerr.CodeFriendNotFound, "好友关系不存在")
	}

	s.invalidateFriends(userID)
	s.invalidateFriends(friendID)

	req := &model.FriendRequest{FromUserID: userID, ToUserID: friendID}
	s.publishRelationship(event.TypeFriendDeleted, req, userID)
	return nil
}

// FriendIDs 获取好友ID集合，优先缓存
func (s *Service) FriendIDs(userID uint64) ([]uint64, error) {
	key := kv.FriendsKey(userID)
	if ids, ok := s.cachedSet(key); ok {
		return ids, nil
	}

	ids, err := s.repo.ListFriendIDs(userID)
	if err != nil {
		return nil, imerr.Storage("查询好友列表失败", err)
	}
	s.populateSet(key, ids)
	return ids, nil
}

// GroupMemberIDs 获取群成员ID集合，优先缓存
func (s *Service) GroupMemberIDs(groupID uint64) ([]uint64, error) {
	key := kv.GroupMembersKey(groupID)
	if ids, ok := s.cachedSet(key); ok {
		return ids, nil
	}

	ids, err := s.repo.ListGroupMemberIDs(groupID)
	if err != nil {
		return nil, imerr.Storage("查询群成员失败", err)
	}
	s.populateSet(key, ids)
	return ids, nil
}

// UserGroupIDs 获取用户所属群ID集合，优先缓存
func (s *Service) UserGroupIDs(userID uint64) ([]uint64, error) {
	key := kv.GroupsKey(userID)
	if ids, ok := s.cachedSet(key); ok {
		return ids, nil
	}

	ids, err := s.repo.ListUserGroupIDs(userID)
	if err != nil {
		return nil, imerr.Storage("查询用户群列表失败", err)
	}
	s.populateSet(key, ids)
	return ids, nil
}

// GroupExists 判断群是否存在
func (s *Service) GroupExists(groupID uint64) (bool, error) {
	return s.repo.GroupExists(groupID)
}

// IsGroupMember 判断用户是否在群内
func (s *Service) IsGroupMember(groupID, userID uint64) (bool, error) {
	return s.repo.IsGroupMember(groupID, userID)
}

// cachedSet 读取缓存的ID集合，未命中返回false
func (s *Service) cachedSet(key string) ([]uint64, bool) {
	if s.rdb == nil {
		return nil, false
	}
	ctx := context.Background()
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil || len(members) == 0 {
		return nil, false
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		// 空集合占位符，表示缓存命中但集合为空
		if m == "-" {
			continue
		}
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, true
}

// populateSet 重建缓存集合
// 空集合写入占位符，避免缓存穿透
func (s *Service) populateSet(key string, ids []uint64) {
	if s.rdb == nil {
		return
	}
	ctx := context.Background()
	members := make([]interface{}, 0, len(ids)+1)
	for _, id := range ids {
		members = append(members, strconv.FormatUint(id, 10))
	}
	if len(members) == 0 {
		members = append(members, "-")
	}
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, cacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("重建关系缓存失败", zap.String("key", key), zap.Error(err))
	}
}

// invalidateFriends 好友集合缓存失效
func (s *Service) invalidateFriends(userID uint64) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(context.Background(), kv.FriendsKey(userID)).Err(); err != nil {
		s.log.Warn("失效好友缓存失败", zap.Uint64("user_id", userID), zap.Error(err))
	}
}

// publishRelationship 发布好友关系事件
func (s *Service) publishRelationship(eventType string, req *model.FriendRequest, recipientID uint64) {
	env, err := event.New(eventType, event.Relationship{
		RequestID:  req.ID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Message:    req.Message,
	})
	if err != nil {
		s.log.Error("构造关系事件失败", zap.Error(err))
		return
	}
	data, err := env.Encode()
	if err != nil {
		s.log.Error("序列化关系事件失败", zap.Error(err))
		return
	}
	key := strconv.FormatUint(recipientID, 10)
	if err := s.producer.Publish(context.Background(), eventbus.TopicRelationshipEvents, key, data); err != nil {
		s.log.Error("发布关系事件失败",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
