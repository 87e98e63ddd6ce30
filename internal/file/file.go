package file

import (
	"context"
	"errors"
	"strconv"

	"im-server/internal/event"
	"im-server/internal/model"
	"im-server/internal/repository"
	"im-server/pkg/eventbus"
	"im-server/pkg/imerr"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher 事件发布能力
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Service 文件服务
// 负责文件元数据与传输请求状态机；分片字节搬运由传输层完成，
// 这里只推进上传进度与请求状态
type Service struct {
	repo     *repository.FileRepository
	userRepo *repository.UserRepository
	producer Publisher
	log      *zap.Logger
}

// NewService 创建文件服务
func NewService(repo *repository.FileRepository, userRepo *repository.UserRepository, producer Publisher, log *zap.Logger) *Service {
	return &Service{repo: repo, userRepo: userRepo, producer: producer, log: log}
}

// InitUpload 登记一次上传：创建文件元数据行
func (s *Service) InitUpload(ownerID uint64, name string, size int64, mimeType string, chunkCount int) (*model.File, error) {
	if name == "" || size <= 0 {
		return nil, imerr.Invalid("文件名和大小不能为空")
	}
	f := &model.File{
		OwnerID:    ownerID,
		Name:       name,
		Size:       size,
		MimeType:   mimeType,
		State:      model.FileUploading,
		ChunkCount: chunkCount,
	}
	if err := s.repo.CreateFile(f); err != nil {
		return nil, imerr.Storage("创建文件记录失败", err)
	}
	return f, nil
}

// AdvanceChunk 上传完成一个分片，全部完成后状态置complete
func (s *Service) AdvanceChunk(fileID, ownerID uint64) (*model.File, error) {
	f, err := s.getFile(fileID)
	if err != nil {
		return nil, err
	}
	if f.OwnerID != ownerID {
		return nil, imerr.PermissionDenied("只能上传自己的文件")
	}
	if f.State != model.FileUploading {
		return nil, imerr.Conflict("文件不在上传状态")
	}
	if err := s.repo.AdvanceChunk(fileID); err != nil {
		return nil, imerr.Storage("更新分片进度失败", err)
	}
	return s.getFile(fileID)
}

// InitDownload 登记一次下载：校验文件可用并返回元数据
func (s *Service) InitDownload(fileID uint64) (*model.File, error) {
	f, err := s.getFile(fileID)
	if err != nil {
		return nil, err
	}
	if f.State != model.FileComplete {
		return nil, imerr.Conflict("文件尚未就绪")
	}
	return f, nil
}

// SendTransferRequest 发起文件传输请求
func (s *Service) SendTransferRequest(fromID, toID, fileID uint64) (*model.FileTransferRequest, error) {
	if fromID == toID {
		return nil, imerr.Invalid("不能给自己发送文件")
	}
	exists, err := s.userRepo.Exists(toID)
	if err != nil {
		return nil, imerr.Storage("查询接收者失败", err)
	}
	if !exists {
		return nil, imerr.New(imerr.CodeUserNotFound, "接收者不存在")
	}

	f, err := s.getFile(fileID)
	if err != nil {
		return nil, err
	}
	if f.OwnerID != fromID {
		return nil, imerr.PermissionDenied("只能发送自己的文件")
	}

	req := &model.FileTransferRequest{
		FromUserID: fromID,
		ToUserID:   toID,
		FileID:     fileID,
		State:      model.RequestPending,
	}
	if err := s.repo.CreateTransferRequest(req); err != nil {
		return nil, imerr.Storage("创建传输请求失败", err)
	}

	s.publishTransfer(event.TypeFileTransferRequest, req, f, req.ToUserID)
	return req, nil
}

// HandleTransferRequest 处理文件传输请求
// 状态机一次性：pending → accepted|rejected，重复处理返回conflict
func (s *Service) HandleTransferRequest(requestID, userID uint64, accept bool) (*model.FileTransferRequest, error) {
	req, err := s.repo.GetTransferRequest(requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imerr.New(imerr.CodeFileReqNotFound, "传输请求不存在")
		}
		return nil, imerr.Storage("查询传输请求失败", err)
	}
	if req.ToUserID != userID {
		return nil, imerr.PermissionDenied("只能处理发给自己的传输请求")
	}

	state := model.RequestAccepted
	eventType := event.TypeFileTransferAccepted
	if !accept {
		state = model.RequestRejected
		eventType = event.TypeFileTransferRejected
	}

	affected, err := s.repo.ResolveTransferRequest(requestID, state)
	if err != nil {
		return nil, imerr.Storage("更新传输请求失败", err)
	}
	if affected == 0 {
		return nil, imerr.New(imerr.CodeFileReqNotPending, "传输请求已处理")
	}
	req.State = state

	f, _ := s.getFile(req.FileID)
	s.publishTransfer(eventType, req, f, req.FromUserID)
	return req, nil
}

// getFile 查询文件元数据
func (s *Service) getFile(fileID uint64) (*model.File, error) {
	f, err := s.repo.GetFile(fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, imerr.New(imerr.CodeFileNotFound, "文件不存在")
		}
		return nil, imerr.Storage("查询文件失败", err)
	}
	return f, nil
}

// publishTransfer 发布文件传输事件
func (s *Service) publishTransfer(eventType string, req *model.FileTransferRequest, f *model.File, recipientID uint64) {
	payload := event.FileTransfer{
		RequestID:  req.ID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		FileID:     req.FileID,
	}
	if f != nil {
		payload.FileName = f.Name
		payload.FileSize = f.Size
	}

	env, err := event.New(eventType, payload)
	if err != nil {
		s.log.Error("构造文件事件失败", zap.Error(err))
		return
	}
	data, err := env.Encode()
	if err != nil {
		s.log.Error("序列化文件事件失败", zap.Error(err))
		return
	}
	key := strconv.FormatUint(recipientID, 10)
	if err := s.producer.Publish(context.Background(), eventbus.TopicFileEvents, key, data); err != nil {
		s.log.Error("发布文件事件失败", zap.String("event_type", eventType), zap.Error(err))
	}
}
