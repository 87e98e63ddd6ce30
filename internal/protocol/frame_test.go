package protocol

import (
	"encoding/json"
	"testing"

	"im-server/pkg/imerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, frame []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &m))
	return m
}

func TestParseClientFrame_ChatMessage(t *testing.T) {
	raw := []byte(`{"type":"chat_message","to_user_id":2,"content":"hi","timestamp":1700000000}`)

	f, err := ParseClientFrame(raw)

	require.NoError(t, err)
	assert.Equal(t, ClientChatMessage, f.Type)
	assert.Equal(t, uint64(2), f.ToUserID)
	assert.Equal(t, "hi", f.Content)
}

func TestParseClientFrame_MissingTypeRejected(t *testing.T) {
	_, err := ParseClientFrame([]byte(`{"content":"hi"}`))
	assert.Error(t, err)
}

func TestParseClientFrame_BadJSONRejected(t *testing.T) {
	_, err := ParseClientFrame([]byte(`{`))
	assert.Error(t, err)
}

func TestServerFrames_CarryTypeAndTimestamp(t *testing.T) {
	frames := map[string][]byte{
		ServerWelcome:         Welcome("s-1"),
		ServerAuthResponse:    AuthResponse(true, 1, "ok"),
		ServerPong:            Pong(),
		ServerChatMessage:     ChatMessage(1, 2, 3, "text", "hi", 1700000000000),
		ServerGroupMessage:    GroupMessage(1, 2, 10, "text", "hi", 1700000000000),
		ServerUserStatus:      UserStatus(1, "online"),
		ServerGroupUserStatus: GroupUserStatus(10, 1, "online"),
		ServerSystemBroadcast: SystemBroadcast("notice"),
		ServerMessageAck:      MessageAck(1, 1700000000000),
		ServerMessageAckRecv:  MessageAcknowledgement(1, 3),
		ServerReadReceiptAck:  ReadReceiptAck(1, 3),
		ServerError:           ErrorFrame(imerr.CodeAuthRequired, "auth first"),
	}

	for wantType, frame := range frames {
		m := decode(t, frame)
		assert.Equal(t, wantType, m["type"])
		assert.Contains(t, m, "timestamp", "帧%s缺少timestamp", wantType)
	}
}

func TestChatMessage_FieldsRoundTrip(t *testing.T) {
	m := decode(t, ChatMessage(7, 1, 2, "text", "hello", 1700000000123))

	assert.EqualValues(t, 7, m["message_id"])
	assert.EqualValues(t, 1, m["from_user_id"])
	assert.EqualValues(t, 2, m["to_user_id"])
	assert.Equal(t, "hello", m["content"])
	assert.EqualValues(t, 1700000000123, m["send_time"])
}

func TestErrorFrame_CarriesNumericCode(t *testing.T) {
	m := decode(t, ErrorFrame(imerr.CodeAuthRequired, "please auth"))

	assert.EqualValues(t, int(imerr.CodeAuthRequired), m["code"])
	assert.Equal(t, "please auth", m["message"])
}
