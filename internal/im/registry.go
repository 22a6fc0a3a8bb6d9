package im

import (
	"sort"
	"sync"
)

// Handle 一条活跃连接的推送句柄
type Handle interface {
	UserID() uint64
	Send(event string, data any) error
}

// Registry 在线表：用户 -> 活跃连接集合。
// 同一用户允许多端同时在线，扇出时需要覆盖全部句柄。
type Registry interface {
	Register(userID uint64, h Handle)
	Unregister(userID uint64, h Handle)
	Resolve(userID uint64) []Handle
	OnlineIDs() []uint64
}

type memoryRegistry struct {
	mu      sync.RWMutex
	handles map[uint64][]Handle
}

// NewRegistry 纯内存实现，进程重启后由存活连接重建
func NewRegistry() Registry {
	return &memoryRegistry{handles: make(map[uint64][]Handle)}
}

func (r *memoryRegistry) Register(userID uint64, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[userID] = append(r.handles[userID], h)
}

func (r *memoryRegistry) Unregister(userID uint64, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.handles[userID]
	for i, cur := range list {
		if cur == h {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.handles, userID)
	} else {
		r.handles[userID] = list
	}
}

func (r *memoryRegistry) Resolve(userID uint64) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.handles[userID]
	out := make([]Handle, len(list))
	copy(out, list)
	return out
}

func (r *memoryRegistry) OnlineIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint64, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
