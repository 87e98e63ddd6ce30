package delivery

import (
	"strings"
	"testing"

	"im-server/config"
	"im-server/internal/model"
	"im-server/pkg/imerr"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// 落库前的校验不触碰任何外部依赖，直接用零值引擎验证
func validationEngine() *Engine {
	return &Engine{
		cfg: config.MessageConfig{MaxPayloadBytes: 64, CacheSize: 100},
		log: zap.NewNop(),
	}
}

func TestSubmit_RejectsUnauthenticatedSender(t *testing.T) {
	e := validationEngine()

	_, err := e.Submit(0, Recipient{UserID: 2}, model.KindText, "hi", "")

	assert.Equal(t, imerr.CodeUnauthenticated, imerr.CodeOf(err))
}

func TestSubmit_RejectsOversizedPayload(t *testing.T) {
	e := validationEngine()

	// 上限64字节，65字节被拒
	_, err := e.Submit(1, Recipient{UserID: 2}, model.KindText, strings.Repeat("a", 65), "")

	assert.Equal(t, imerr.CodeMessageTooLarge, imerr.CodeOf(err))
}

func TestSubmit_RejectsUnknownKind(t *testing.T) {
	e := validationEngine()

	_, err := e.Submit(1, Recipient{UserID: 2}, "sticker", "hi", "")

	assert.Equal(t, imerr.CodeMessageBadKind, imerr.CodeOf(err))
}

func TestSubmit_RejectsSelfSend(t *testing.T) {
	e := validationEngine()

	_, err := e.Submit(7, Recipient{UserID: 7}, model.KindText, "hi", "")

	assert.Equal(t, imerr.CodeMessageSelfSend, imerr.CodeOf(err))
}

func TestSubmit_RejectsMissingRecipient(t *testing.T) {
	e := validationEngine()

	_, err := e.Submit(1, Recipient{}, model.KindText, "hi", "")

	assert.Equal(t, imerr.CodeInvalidParams, imerr.CodeOf(err))
}

func TestCachedMessage_CarriesGroupID(t *testing.T) {
	gid := uint64(9)
	msg := &model.Message{
		ID:       1,
		SenderID: 2,
		GroupID:  &gid,
		Kind:     model.KindText,
		Content:  "hello",
		SendTime: 1700000000000,
	}

	c := cachedMessage(msg)

	assert.Equal(t, uint64(9), c.GroupID)
	assert.Equal(t, uint64(0), c.ReceiverID)
	assert.Equal(t, int64(1700000000000), c.SendTime)
}
