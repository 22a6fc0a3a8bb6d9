package im

import (
	log "log/slog"
)

// Dispatcher 扇出分发器：向目标用户的全部在线连接推送事件。
// 纯尽力而为：离线目标静默跳过，推送失败只记日志，不重试不排队。
type Dispatcher interface {
	Publish(event string, data any, targets ...uint64)
	Broadcast(event string, data any)
}

type fanoutDispatcher struct {
	reg Registry
}

func NewDispatcher(reg Registry) Dispatcher {
	return &fanoutDispatcher{reg: reg}
}

// Publish 对单个发送方的多次调用保持调用序推送
func (d *fanoutDispatcher) Publish(event string, data any, targets ...uint64) {
	for _, target := range targets {
		for _, h := range d.reg.Resolve(target) {
			if err := h.Send(event, data); err != nil {
				log.Warn("realtime push failed", "event", event, "target", target, "err", err)
			}
		}
	}
}

// Broadcast 推送给全部在线用户，用于在线名单同步
func (d *fanoutDispatcher) Broadcast(event string, data any) {
	d.Publish(event, data, d.reg.OnlineIDs()...)
}
