package handler

import (
	"strconv"

	"im-server/internal/file"
	"im-server/pkg/imerr"
	"im-server/pkg/jwt"
	"im-server/pkg/response"

	"github.com/gin-gonic/gin"
)

// FileHandler 文件接口
type FileHandler struct {
	service *file.Service
}

// NewFileHandler 创建FileHandler实例
func NewFileHandler(s *file.Service) *FileHandler {
	return &FileHandler{service: s}
}

// InitUpload 登记上传
func (h *FileHandler) InitUpload(c *gin.Context) {
	type req struct {
		Name       string `json:"name" binding:"required"`
		Size       int64  `json:"size" binding:"required"`
		MimeType   string `json:"mime_type"`
		ChunkCount int    `json:"chunk_count"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	f, err := h.service.InitUpload(jwt.GetUserID(c), r.Name, r.Size, r.MimeType, r.ChunkCount)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "上传已登记", gin.H{
		"file_id": f.ID,
		"state":   f.State,
	})
}

// UploadChunk 上报一个分片完成
// 分片字节经传输通道送达，这里只推进进度
func (h *FileHandler) UploadChunk(c *gin.Context) {
	fileID, err := strconv.ParseUint(c.Param("file_id"), 10, 64)
	if err != nil {
		response.Fail(c, imerr.Invalid("file_id格式错误"))
		return
	}

	f, err := h.service.AdvanceChunk(fileID, jwt.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"file_id":     f.ID,
		"state":       f.State,
		"chunk_done":  f.ChunkDone,
		"chunk_count": f.ChunkCount,
	})
}

// InitDownload 登记下载
func (h *FileHandler) InitDownload(c *gin.Context) {
	fileID, err := strconv.ParseUint(c.Param("file_id"), 10, 64)
	if err != nil {
		response.Fail(c, imerr.Invalid("file_id格式错误"))
		return
	}

	f, err := h.service.InitDownload(fileID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"file_id":     f.ID,
		"name":        f.Name,
		"size":        f.Size,
		"mime_type":   f.MimeType,
		"chunk_count": f.ChunkCount,
	})
}

// SendTransferRequest 发起文件传输请求
func (h *FileHandler) SendTransferRequest(c *gin.Context) {
	type req struct {
		ToUserID uint64 `json:"to_user_id" binding:"required"`
		FileID   uint64 `json:"file_id" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	request, err := h.service.SendTransferRequest(jwt.GetUserID(c), r.ToUserID, r.FileID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "传输请求已发送", gin.H{
		"request_id": request.ID,
		"state":      request.State,
	})
}

// HandleTransferRequest 处理文件传输请求
func (h *FileHandler) HandleTransferRequest(c *gin.Context) {
	requestID, err := strconv.ParseUint(c.Param("request_id"), 10, 64)
	if err != nil {
		response.Fail(c, imerr.Invalid("request_id格式错误"))
		return
	}

	type req struct {
		Accept bool `json:"accept"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.Fail(c, imerr.Invalid(err.Error()))
		return
	}

	request, err := h.service.HandleTransferRequest(requestID, jwt.GetUserID(c), r.Accept)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "请求处理完成", gin.H{
		"request_id": request.ID,
		"state":      request.State,
	})
}
