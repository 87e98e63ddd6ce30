package imerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf_ExtractsCodeThroughWrapping(t *testing.T) {
	base := New(CodeFriendReqNotPending, "请求已处理")
	wrapped := fmt.Errorf("handle request: %w", base)

	assert.Equal(t, CodeFriendReqNotPending, CodeOf(wrapped))
}

func TestCodeOf_UnknownErrorMapsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeSuccess, CodeOf(nil))
}

func TestError_UnwrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Storage("消息落库失败", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestError_IsMatchesByCode(t *testing.T) {
	assert.ErrorIs(t, Conflict("a"), Conflict("b"))
	assert.NotErrorIs(t, Conflict("a"), NotFound("a"))
}

func TestCodes_GroupedByDomain(t *testing.T) {
	// 错误码按领域千位分段
	assert.True(t, CodeUserNotFound >= 2000 && CodeUserNotFound < 3000)
	assert.True(t, CodeFriendReqNotPending >= 3000 && CodeFriendReqNotPending < 4000)
	assert.True(t, CodeMessageTooLarge >= 5000 && CodeMessageTooLarge < 6000)
	assert.True(t, CodeStorageError >= 7000 && CodeStorageError < 8000)
	assert.True(t, CodeEventBusError >= 9000 && CodeEventBusError < 10000)
	assert.True(t, CodeUnauthenticated >= 13000)
	assert.EqualValues(t, 0, CodeSuccess)
}
