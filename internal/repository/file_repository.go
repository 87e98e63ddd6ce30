package repository

import (
	"im-server/internal/model"

	"gorm.io/gorm"
)

// FileRepository 文件与传输请求仓储
type FileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建FileRepository实例
func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

// CreateFile 创建文件元数据
func (r *FileRepository) CreateFile(f *model.File) error {
	return r.db.Create(f).Error
}

// GetFile 根据ID获取文件元数据
func (r *FileRepository) GetFile(id uint64) (*model.File, error) {
	var f model.File
	if err := r.db.First(&f, id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// AdvanceChunk 推进分片进度，全部完成时置为complete
func (r *FileRepository) AdvanceChunk(fileID uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var f model.File
		if err := tx.First(&f, fileID).Error; err != nil {
			return err
		}
		f.ChunkDone++
		if f.ChunkCount > 0 && f.ChunkDone >= f.ChunkCount {
			f.State = model.FileComplete
		}
		return tx.Save(&f).Error
	})
}

// UpdateFileState 更新文件状态
func (r *FileRepository) UpdateFileState(fileID uint64, state string) error {
	return r.db.Model(&model.File{}).Where("id = ?", fileID).Update("state", state).Error
}

// CreateTransferRequest 创建传输请求
func (r *FileRepository) CreateTransferRequest(req *model.FileTransferRequest) error {
	return r.db.Create(req).Error
}

// GetTransferRequest 根据ID获取传输请求
func (r *FileRepository) GetTransferRequest(id uint64) (*model.FileTransferRequest, error) {
	var req model.FileTransferRequest
	if err := r.db.First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// ResolveTransferRequest 推进传输请求状态机
// pending谓词保证一次性：已处理的请求影响行数为0
func (r *FileRepository) ResolveTransferRequest(id uint64, state string) (int64, error) {
	res := r.db.Model(&model.FileTransferRequest{}).
		Where("id = ? AND state = ?", id, model.RequestPending).
		Update("state", state)
	return res.RowsAffected, res.Error
}
