package im

import (
	"github.com/goccy/go-json"
)

// Envelope 实时通道统一信封
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TypingInbound 客户端上报的输入状态
type TypingInbound struct {
	To       uint64 `json:"to"`
	IsTyping bool   `json:"isTyping"`
}

// TypingEvent 转发给目标用户的输入状态
type TypingEvent struct {
	UserID   uint64 `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// MarkSeenInbound 客户端上报的已读位置
type MarkSeenInbound struct {
	PeerID uint64 `json:"peerId"`
}

// MessagesSeenEvent 对方已读回执
type MessagesSeenEvent struct {
	UserID uint64 `json:"userId"`
}

// DeleteMessageEvent 消息删除事件，PartnerID 为该接收端视角的会话对手方
type DeleteMessageEvent struct {
	MessageID string `json:"messageId"`
	PartnerID uint64 `json:"partnerId"`
}
