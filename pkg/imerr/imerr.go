package imerr

import (
	"errors"
	"fmt"
)

// Error 带业务错误码的错误类型
// 所有组件边界统一返回该类型，Cause保留底层错误用于日志
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is 按错误码判定相等
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New 创建错误
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap 包装底层错误
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf 提取错误码，非本类型错误按内部错误处理
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// 常用构造函数

func Invalid(msg string) *Error          { return New(CodeInvalidParams, msg) }
func NotFound(msg string) *Error         { return New(CodeNotFound, msg) }
func AlreadyExists(msg string) *Error    { return New(CodeAlreadyExists, msg) }
func Conflict(msg string) *Error         { return New(CodeConflict, msg) }
func Unauthenticated(msg string) *Error  { return New(CodeUnauthenticated, msg) }
func PermissionDenied(msg string) *Error { return New(CodePermissionDenied, msg) }
func Internal(msg string) *Error         { return New(CodeInternal, msg) }

func Storage(msg string, cause error) *Error  { return Wrap(CodeStorageError, msg, cause) }
func Cache(msg string, cause error) *Error    { return Wrap(CodeCacheError, msg, cause) }
func EventBus(msg string, cause error) *Error { return Wrap(CodeEventBusError, msg, cause) }
func Transport(msg string, cause error) *Error {
	return Wrap(CodeTransportError, msg, cause)
}
