package fanout

import (
	"encoding/json"
	"sync"
	"testing"

	"im-server/internal/event"
	"im-server/internal/protocol"
	"im-server/pkg/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSessions 记录写入的帧
type fakeSessions struct {
	mu         sync.Mutex
	online     map[uint64]bool
	sent       map[uint64][][]byte
	broadcasts [][]byte
}

func newFakeSessions(online ...uint64) *fakeSessions {
	f := &fakeSessions{
		online: make(map[uint64]bool),
		sent:   make(map[uint64][][]byte),
	}
	for _, id := range online {
		f.online[id] = true
	}
	return f
}

func (f *fakeSessions) SendToUser(userID uint64, frame []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[userID] {
		return 0
	}
	f.sent[userID] = append(f.sent[userID], frame)
	return 1
}

func (f *fakeSessions) HasSessions(userID uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

func (f *fakeSessions) Broadcast(frame []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, frame)
	return len(f.online)
}

// fakeRelations 固定的关系图
type fakeRelations struct {
	friends map[uint64][]uint64
	groups  map[uint64][]uint64 // user -> groups
	members map[uint64][]uint64 // group -> members
}

func (f *fakeRelations) FriendIDs(userID uint64) ([]uint64, error) {
	return f.friends[userID], nil
}

func (f *fakeRelations) UserGroupIDs(userID uint64) ([]uint64, error) {
	return f.groups[userID], nil
}

func (f *fakeRelations) GroupMemberIDs(groupID uint64) ([]uint64, error) {
	return f.members[groupID], nil
}

func newTestRouter(sessions Sessions, relations Relations) *Router {
	return &Router{
		sessions:  sessions,
		relations: relations,
		log:       zap.NewNop(),
	}
}

// encodeEvent 构造总线上的事件字节
func encodeEvent(t *testing.T, eventType string, payload interface{}) []byte {
	t.Helper()
	env, err := event.New(eventType, payload)
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	return data
}

// frameType 解析帧的type字段
func frameType(t *testing.T, frame []byte) string {
	t.Helper()
	var f struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(frame, &f))
	return f.Type
}

func TestHandle_BadEventIsSkippedAndCommitted(t *testing.T) {
	router := newTestRouter(newFakeSessions(), &fakeRelations{})

	commit := router.Handle(eventbus.TopicSystemEvents, 0, 1, nil, []byte("not-json"))

	assert.True(t, commit)
}

func TestFriendRequestSent_GoesToTarget(t *testing.T) {
	sessions := newFakeSessions(2)
	router := newTestRouter(sessions, &fakeRelations{})

	data := encodeEvent(t, event.TypeFriendRequestSent, event.Relationship{
		RequestID: 5, FromUserID: 1, ToUserID: 2,
	})
	router.Handle(eventbus.TopicRelationshipEvents, 0, 1, nil, data)

	require.Len(t, sessions.sent[2], 1)
	assert.Empty(t, sessions.sent[1])
	assert.Equal(t, event.TypeFriendRequestSent, frameType(t, sessions.sent[2][0]))
}

func TestFriendRequestAccepted_GoesBackToSender(t *testing.T) {
	sessions := newFakeSessions(1, 2)
	router := newTestRouter(sessions, &fakeRelations{})

	data := encodeEvent(t, event.TypeFriendRequestAccept, event.Relationship{
		RequestID: 5, FromUserID: 1, ToUserID: 2,
	})
	router.Handle(eventbus.TopicRelationshipEvents, 0, 1, nil, data)

	require.Len(t, sessions.sent[1], 1)
	assert.Empty(t, sessions.sent[2])
}

func TestFriendDeleted_NotifiesBothParties(t *testing.T) {
	sessions := newFakeSessions(1, 2)
	router := newTestRouter(sessions, &fakeRelations{})

	data := encodeEvent(t, event.TypeFriendDeleted, event.Relationship{
		FromUserID: 1, ToUserID: 2,
	})
	router.Handle(eventbus.TopicRelationshipEvents, 0, 1, nil, data)

	assert.Len(t, sessions.sent[1], 1)
	assert.Len(t, sessions.sent[2], 1)
}

func TestPresenceRecipients_DeduplicatesAcrossSets(t *testing.T) {
	// 用户1的好友{2,3}；所在群10的成员{1,3,4}：3同时是好友与群友，只算一次
	relations := &fakeRelations{
		friends: map[uint64][]uint64{1: {2, 3}},
		groups:  map[uint64][]uint64{1: {10}},
		members: map[uint64][]uint64{10: {1, 3, 4}},
	}
	router := newTestRouter(newFakeSessions(), relations)

	recipients := router.PresenceRecipients(1)

	assert.ElementsMatch(t, []uint64{2, 3}, recipients.Friends)
	assert.ElementsMatch(t, []uint64{4}, recipients.GroupOnly[10])
}

func TestPresenceChange_FriendGetsUserStatusGroupmateGetsGroupStatus(t *testing.T) {
	relations := &fakeRelations{
		friends: map[uint64][]uint64{1: {2}},
		groups:  map[uint64][]uint64{1: {10}},
		members: map[uint64][]uint64{10: {1, 4}},
	}
	sessions := newFakeSessions(2, 4)
	router := newTestRouter(sessions, relations)

	data := encodeEvent(t, event.TypePresenceChange, event.PresenceChange{
		UserID: 1, Status: "online",
	})
	router.Handle(eventbus.TopicSystemEvents, 0, 1, nil, data)

	require.Len(t, sessions.sent[2], 1)
	require.Len(t, sessions.sent[4], 1)
	assert.Equal(t, protocol.ServerUserStatus, frameType(t, sessions.sent[2][0]))
	assert.Equal(t, protocol.ServerGroupUserStatus, frameType(t, sessions.sent[4][0]))
	// 本人不收自己的状态通知
	assert.Empty(t, sessions.sent[1])
}

func TestSystemBroadcast_ReachesAllSessions(t *testing.T) {
	sessions := newFakeSessions(1, 2, 3)
	router := newTestRouter(sessions, &fakeRelations{})

	data := encodeEvent(t, event.TypeSystemBroadcast, event.SystemBroadcast{
		FromUserID: 99, Content: "maintenance at midnight",
	})
	router.Handle(eventbus.TopicSystemEvents, 0, 1, nil, data)

	require.Len(t, sessions.broadcasts, 1)
	assert.Equal(t, protocol.ServerSystemBroadcast, frameType(t, sessions.broadcasts[0]))
}

func TestGroupMessageEcho_SkipsOnlineRecipients(t *testing.T) {
	relations := &fakeRelations{
		members: map[uint64][]uint64{10: {1, 2, 3}},
	}
	sessions := newFakeSessions(2, 3)
	router := newTestRouter(sessions, relations)

	data := encodeEvent(t, event.TypeMessageSent, event.MessageSent{
		MessageID: 7, FromUserID: 1, GroupID: 10, Kind: "text", Content: "hi all", SendTime: 1,
	})
	router.Handle(eventbus.TopicMessagesGroup, 0, 1, nil, data)

	// 在线成员由直连路径负责，消费侧不重复推送
	assert.Empty(t, sessions.sent[2])
	assert.Empty(t, sessions.sent[3])
}

func TestDedup_PreservesOrder(t *testing.T) {
	assert.Equal(t, []uint64{3, 1, 2}, dedup([]uint64{3, 1, 3, 2, 1}))
}
