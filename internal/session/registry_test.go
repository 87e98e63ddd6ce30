package session

import (
	"sync"
	"testing"
	"time"

	"im-server/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeNotifier 记录上下线回调
type fakeNotifier struct {
	mu    sync.Mutex
	ups   []uint64
	downs []struct {
		userID uint64
		last   bool
	}
}

func (f *fakeNotifier) SessionUp(userID uint64, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ups = append(f.ups, userID)
}

func (f *fakeNotifier) SessionDown(userID uint64, sessionID string, last bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downs = append(f.downs, struct {
		userID uint64
		last   bool
	}{userID, last})
}

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		AuthTimeout:   10 * time.Second,
		WriteTimeout:  time.Second,
		SweepInterval: time.Minute,
		ZombieAfter:   2 * time.Minute,
		ExpireAfter:   5 * time.Minute,
	}
}

func newTestRegistry(t *testing.T) (*Registry, *fakeNotifier) {
	t.Helper()
	notifier := &fakeNotifier{}
	return NewRegistry(testConfig(), notifier, zap.NewNop()), notifier
}

// drainFrames 读空流中已写入的帧
func drainFrames(stream *ChanStream) [][]byte {
	var out [][]byte
	for {
		select {
		case frame, ok := <-stream.C:
			if !ok {
				return out
			}
			out = append(out, frame)
		default:
			return out
		}
	}
}

func TestRegistry_AcceptStartsUnauthorized(t *testing.T) {
	registry, notifier := newTestRegistry(t)
	stream := NewChanStream("c1", 16)

	sess := registry.Accept(stream, TransportWebSocket)

	assert.NotEmpty(t, sess.ID())
	assert.Equal(t, StateUnauth, sess.State())
	assert.EqualValues(t, 0, sess.UserID())
	assert.Empty(t, notifier.ups)
	assert.Equal(t, 1, registry.SessionCount())
}

func TestRegistry_AuthorizeBindsUserAndFiresPresence(t *testing.T) {
	registry, notifier := newTestRegistry(t)
	sess := registry.Accept(NewChanStream("c1", 16), TransportWebSocket)

	require.NoError(t, registry.Authorize(sess.ID(), 42))

	assert.True(t, sess.Authorized())
	assert.EqualValues(t, 42, sess.UserID())
	assert.True(t, registry.HasSessions(42))
	assert.Equal(t, []uint64{42}, notifier.ups)
}

func TestRegistry_SecondSessionDoesNotFirePresenceAgain(t *testing.T) {
	registry, notifier := newTestRegistry(t)
	s1 := registry.Accept(NewChanStream("c1", 16), TransportWebSocket)
	s2 := registry.Accept(NewChanStream("c2", 16), TransportWebSocket)

	require.NoError(t, registry.Authorize(s1.ID(), 42))
	require.NoError(t, registry.Authorize(s2.ID(), 42))

	assert.Equal(t, []uint64{42}, notifier.ups)
}

func TestRegistry_AuthorizeAfterRemoveDropsResult(t *testing.T) {
	registry, notifier := newTestRegistry(t)
	sess := registry.Accept(NewChanStream("c1", 16), TransportWebSocket)

	registry.Remove(sess.ID())

	err := registry.Authorize(sess.ID(), 42)
	assert.ErrorIs(t, err, ErrSessionGone)
	assert.False(t, registry.HasSessions(42))
	assert.Empty(t, notifier.ups)
}

func TestRegistry_SendToUserReachesAllDevices(t *testing.T) {
	registry, _ := newTestRegistry(t)
	stream1 := NewChanStream("c1", 16)
	stream2 := NewChanStream("c2", 16)
	s1 := registry.Accept(stream1, TransportWebSocket)
	s2 := registry.Accept(stream2, TransportWebSocket)
	require.NoError(t, registry.Authorize(s1.ID(), 42))
	require.NoError(t, registry.Authorize(s2.ID(), 42))

	delivered := registry.SendToUser(42, []byte("hello"))

	assert.Equal(t, 2, delivered)
	assert.Len(t, drainFrames(stream1), 1)
	assert.Len(t, drainFrames(stream2), 1)
}

func TestRegistry_SendToUnknownSessionReturnsGone(t *testing.T) {
	registry, _ := newTestRegistry(t)

	err := registry.Send("no-such-session", []byte("x"))

	assert.ErrorIs(t, err, ErrSessionGone)
}

func TestRegistry_NoWriteAfterRemove(t *testing.T) {
	registry, _ := newTestRegistry(t)
	stream := NewChanStream("c1", 16)
	sess := registry.Accept(stream, TransportWebSocket)
	require.NoError(t, registry.Authorize(sess.ID(), 42))

	registry.Remove(sess.ID())
	before := len(drainFrames(stream))

	err := registry.Send(sess.ID(), []byte("late"))
	assert.ErrorIs(t, err, ErrSessionGone)
	assert.Equal(t, 0, registry.SendToUser(42, []byte("late")))
	assert.ErrorIs(t, sess.Write([]byte("late")), ErrSessionGone)
	assert.Equal(t, before, len(drainFrames(stream)))
}

func TestRegistry_LastSessionRemovalFlipsPresence(t *testing.T) {
	registry, notifier := newTestRegistry(t)
	s1 := registry.Accept(NewChanStream("c1", 16), TransportWebSocket)
	s2 := registry.Accept(NewChanStream("c2", 16), TransportWebSocket)
	require.NoError(t, registry.Authorize(s1.ID(), 42))
	require.NoError(t, registry.Authorize(s2.ID(), 42))

	registry.Remove(s1.ID())
	require.Len(t, notifier.downs, 1)
	assert.False(t, notifier.downs[0].last)
	assert.True(t, registry.HasSessions(42))

	registry.Remove(s2.ID())
	require.Len(t, notifier.downs, 2)
	assert.True(t, notifier.downs[1].last)
	assert.False(t, registry.HasSessions(42))
}

func TestRegistry_BroadcastSkipsUnauthorized(t *testing.T) {
	registry, _ := newTestRegistry(t)
	authStream := NewChanStream("c1", 16)
	unauthStream := NewChanStream("c2", 16)
	s1 := registry.Accept(authStream, TransportWebSocket)
	registry.Accept(unauthStream, TransportWebSocket)
	require.NoError(t, registry.Authorize(s1.ID(), 42))

	delivered := registry.Broadcast([]byte("announce"))

	assert.Equal(t, 1, delivered)
	assert.Len(t, drainFrames(authStream), 1)
	assert.Empty(t, drainFrames(unauthStream))
}

func TestRegistry_SweepRemovesExpiredSessions(t *testing.T) {
	registry, _ := newTestRegistry(t)
	sess := registry.Accept(NewChanStream("c1", 16), TransportWebSocket)
	require.NoError(t, registry.Authorize(sess.ID(), 42))

	// 超过过期阈值（5分钟）
	expired, _ := registry.Sweep(time.Now().Add(6 * time.Minute))

	assert.Equal(t, 1, expired)
	assert.Equal(t, 0, registry.SessionCount())
}

func TestRegistry_SweepProbesZombieSessions(t *testing.T) {
	registry, _ := newTestRegistry(t)
	stream := NewChanStream("c1", 16)
	sess := registry.Accept(stream, TransportWebSocket)
	require.NoError(t, registry.Authorize(sess.ID(), 42))

	// 介于僵尸阈值（2分钟）与过期阈值（5分钟）之间
	expired, probed := registry.Sweep(time.Now().Add(3 * time.Minute))

	assert.Equal(t, 0, expired)
	assert.Equal(t, 1, probed)
	assert.Equal(t, 1, registry.SessionCount())
	// 收到探活帧
	assert.Len(t, drainFrames(stream), 1)
}

func TestRegistry_ZombieProbeWriteFailureEvicts(t *testing.T) {
	registry, notifier := newTestRegistry(t)
	stream := NewChanStream("c1", 16)
	sess := registry.Accept(stream, TransportWebSocket)
	require.NoError(t, registry.Authorize(sess.ID(), 42))

	// 半开连接：底层流已不可写
	require.NoError(t, stream.Close())

	expired, probed := registry.Sweep(time.Now().Add(3 * time.Minute))

	assert.Equal(t, 1, expired)
	assert.Equal(t, 0, probed)
	assert.Equal(t, 0, registry.SessionCount())
	// 最后一个会话被清除，在线状态翻转
	require.Len(t, notifier.downs, 1)
	assert.True(t, notifier.downs[0].last)
}

func TestRegistry_ShutdownRemovesEverything(t *testing.T) {
	registry, _ := newTestRegistry(t)
	s1 := registry.Accept(NewChanStream("c1", 16), TransportWebSocket)
	registry.Accept(NewChanStream("c2", 16), TransportWebSocket)
	require.NoError(t, registry.Authorize(s1.ID(), 42))

	registry.Shutdown()

	assert.Equal(t, 0, registry.SessionCount())
	assert.Equal(t, 0, registry.OnlineUserCount())
}
