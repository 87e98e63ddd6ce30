package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"im-server/config"
	"im-server/internal/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePublisher 记录发布的presence事件
type fakePublisher struct {
	mu     sync.Mutex
	events []event.PresenceChange
}

func (f *fakePublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	env, err := event.Decode(payload)
	if err != nil {
		return err
	}
	var p event.PresenceChange
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, p)
	return nil
}

func (f *fakePublisher) snapshot() []event.PresenceChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event.PresenceChange, len(f.events))
	copy(out, f.events)
	return out
}

// fakeLive 固定的活跃会话表
type fakeLive struct {
	online map[uint64]bool
}

func (f *fakeLive) HasSessions(userID uint64) bool { return f.online[userID] }

func newTestService(pub *fakePublisher, debounce time.Duration) *Service {
	return NewService(nil, pub, nil, config.PresenceConfig{
		MarkerTTL: 2 * time.Minute,
		Debounce:  debounce,
	}, zap.NewNop())
}

func TestTransition_FirstChangePublishesImmediately(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub, 50*time.Millisecond)

	svc.SessionUp(1, "s1")

	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].UserID)
	assert.Equal(t, StatusOnline, events[0].Status)
}

func TestTransition_FlapWithinWindowIsCoalesced(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub, 80*time.Millisecond)

	// 窗口内 online → offline → online：只有首个online被发布
	svc.SessionUp(1, "s1")
	svc.SessionDown(1, "s1", true)
	svc.SessionUp(1, "s2")

	time.Sleep(150 * time.Millisecond)

	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, StatusOnline, events[0].Status)
}

func TestTransition_SettledOppositeStateIsPublishedAfterWindow(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub, 60*time.Millisecond)

	svc.SessionUp(1, "s1")
	// 窗口内转为下线并保持
	svc.SessionDown(1, "s1", true)

	time.Sleep(120 * time.Millisecond)

	events := pub.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, StatusOnline, events[0].Status)
	assert.Equal(t, StatusOffline, events[1].Status)
}

func TestTransition_SeparateWindowsPublishSeparately(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub, 30*time.Millisecond)

	svc.SessionUp(1, "s1")
	time.Sleep(60 * time.Millisecond)
	svc.SessionDown(1, "s1", true)
	time.Sleep(60 * time.Millisecond)

	events := pub.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, StatusOnline, events[0].Status)
	assert.Equal(t, StatusOffline, events[1].Status)
}

func TestSessionDown_NotLastDoesNotPublish(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub, 30*time.Millisecond)

	svc.SessionUp(1, "s1")
	// N台设备断开N-1台，用户仍在线
	svc.SessionDown(1, "s2", false)

	time.Sleep(60 * time.Millisecond)

	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, StatusOnline, events[0].Status)
}

func TestIsOnline_ChecksLiveSessions(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub, 30*time.Millisecond)
	svc.BindLive(&fakeLive{online: map[uint64]bool{1: true}})

	assert.True(t, svc.IsOnline(1))
	assert.False(t, svc.IsOnline(2))
}
