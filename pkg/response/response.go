package response

import (
	"errors"
	"net/http"

	"im-server/pkg/imerr"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    imerr.Code  `json:"code"`           // 业务错误码：0表示成功
	Message string      `json:"message"`        // 响应消息
	Data    interface{} `json:"data,omitempty"` // 响应数据
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    imerr.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    imerr.CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Fail 错误响应，HTTP状态码按错误域推导
func Fail(c *gin.Context, err error) {
	var e *imerr.Error
	if !errors.As(err, &e) {
		e = imerr.Wrap(imerr.CodeInternal, "内部错误", err)
	}
	c.JSON(httpStatus(e.Code), Response{
		Code:    e.Code,
		Message: e.Message,
	})
}

// httpStatus 业务错误码到HTTP状态码的映射
func httpStatus(code imerr.Code) int {
	switch {
	case code == imerr.CodeSuccess:
		return http.StatusOK
	case code == imerr.CodeNotFound,
		code == imerr.CodeUserNotFound,
		code == imerr.CodeFriendNotFound,
		code == imerr.CodeFriendReqNotFound,
		code == imerr.CodeGroupNotFound,
		code == imerr.CodeMessageNotFound,
		code == imerr.CodeFileNotFound,
		code == imerr.CodeFileReqNotFound:
		return http.StatusNotFound
	case code == imerr.CodeAlreadyExists,
		code == imerr.CodeUserAlreadyExists,
		code == imerr.CodeFriendAlreadyExists,
		code == imerr.CodeFriendReqDuplicate:
		return http.StatusConflict
	case code == imerr.CodeConflict,
		code == imerr.CodeFriendReqNotPending,
		code == imerr.CodeFileReqNotPending:
		return http.StatusConflict
	case code == imerr.CodePermissionDenied:
		return http.StatusForbidden
	case code >= 13000,
		code == imerr.CodeUserTokenExpired,
		code == imerr.CodeUserTokenInvalid,
		code == imerr.CodeUserAuthFailed,
		code == imerr.CodeUserPasswordWrong:
		return http.StatusUnauthorized
	case code == imerr.CodeInvalidParams,
		code == imerr.CodeMessageTooLarge,
		code == imerr.CodeMessageBadKind,
		code == imerr.CodeMessageSelfSend:
		return http.StatusBadRequest
	case code == imerr.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
