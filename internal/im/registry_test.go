package im

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedPush struct {
	Event string
	Data  any
}

type fakeHandle struct {
	mu     sync.Mutex
	userID uint64
	pushes []recordedPush
	err    error
}

func (h *fakeHandle) UserID() uint64 { return h.userID }

func (h *fakeHandle) Send(event string, data any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.pushes = append(h.pushes, recordedPush{Event: event, Data: data})
	return nil
}

func (h *fakeHandle) received() []recordedPush {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]recordedPush, len(h.pushes))
	copy(out, h.pushes)
	return out
}

func TestRegistry_RegisterResolve(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandle{userID: 1}

	assert.Empty(t, reg.Resolve(1))

	reg.Register(1, h)
	handles := reg.Resolve(1)
	require.Len(t, handles, 1)
	assert.Same(t, Handle(h), handles[0])
}

func TestRegistry_MultipleConnectionsPerUser(t *testing.T) {
	reg := NewRegistry()
	phone := &fakeHandle{userID: 1}
	laptop := &fakeHandle{userID: 1}

	reg.Register(1, phone)
	reg.Register(1, laptop)

	assert.Len(t, reg.Resolve(1), 2)
	assert.Equal(t, []uint64{1}, reg.OnlineIDs())

	// 摘掉一端后用户仍然在线
	reg.Unregister(1, phone)
	assert.Len(t, reg.Resolve(1), 1)
	assert.Equal(t, []uint64{1}, reg.OnlineIDs())

	reg.Unregister(1, laptop)
	assert.Empty(t, reg.Resolve(1))
	assert.Empty(t, reg.OnlineIDs())
}

func TestRegistry_OnlineIDsSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(30, &fakeHandle{userID: 30})
	reg.Register(7, &fakeHandle{userID: 7})
	reg.Register(100, &fakeHandle{userID: 100})

	assert.Equal(t, []uint64{7, 30, 100}, reg.OnlineIDs())
}

func TestRegistry_UnregisterUnknownHandle(t *testing.T) {
	reg := NewRegistry()
	known := &fakeHandle{userID: 1}
	reg.Register(1, known)

	reg.Unregister(1, &fakeHandle{userID: 1})
	reg.Unregister(2, &fakeHandle{userID: 2})

	assert.Len(t, reg.Resolve(1), 1)
}
