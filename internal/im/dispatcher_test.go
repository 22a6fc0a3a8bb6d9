package im

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PublishFansOutToAllConnections(t *testing.T) {
	reg := NewRegistry()
	phone := &fakeHandle{userID: 2}
	laptop := &fakeHandle{userID: 2}
	reg.Register(2, phone)
	reg.Register(2, laptop)

	NewDispatcher(reg).Publish("newMessage", "payload", 2)

	require.Len(t, phone.received(), 1)
	require.Len(t, laptop.received(), 1)
	assert.Equal(t, "newMessage", phone.received()[0].Event)
}

func TestDispatcher_OfflineTargetIsNoop(t *testing.T) {
	reg := NewRegistry()
	online := &fakeHandle{userID: 1}
	reg.Register(1, online)

	d := NewDispatcher(reg)
	// 离线目标静默跳过，不影响在线目标
	d.Publish("newMessage", "payload", 99, 1)

	assert.Len(t, online.received(), 1)
}

func TestDispatcher_FailedPushDoesNotBlockOthers(t *testing.T) {
	reg := NewRegistry()
	broken := &fakeHandle{userID: 2, err: errors.New("slow consumer")}
	healthy := &fakeHandle{userID: 2}
	reg.Register(2, broken)
	reg.Register(2, healthy)

	NewDispatcher(reg).Publish("typing", "payload", 2)

	assert.Len(t, healthy.received(), 1)
}

func TestDispatcher_BroadcastReachesEveryOnlineUser(t *testing.T) {
	reg := NewRegistry()
	a := &fakeHandle{userID: 1}
	b := &fakeHandle{userID: 2}
	reg.Register(1, a)
	reg.Register(2, b)

	NewDispatcher(reg).Broadcast("getOnlineUsers", []uint64{1, 2})

	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
}

func TestDispatcher_PreservesCallOrder(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandle{userID: 1}
	reg.Register(1, h)

	d := NewDispatcher(reg)
	d.Publish("newMessage", "first", 1)
	d.Publish("newMessage", "second", 1)

	pushes := h.received()
	require.Len(t, pushes, 2)
	assert.Equal(t, "first", pushes[0].Data)
	assert.Equal(t, "second", pushes[1].Data)
}
