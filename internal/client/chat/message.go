package chat

import (
	"time"

	"github.com/google/uuid"
)

// 消息类型
const (
	TypeText      = "text"
	TypeImage     = "image"
	TypeVideoCall = "video_call"
)

// TempIDPrefix 乐观消息本地 ID 的保留前缀，持久层的 ObjectID 不可能以此开头
const TempIDPrefix = "temp-"

func newLocalID() string {
	return uuid.NewString()
}

// Message 客户端侧消息。ID 与 LocalID 构成显式的两态：
// 未确认的乐观消息只有 LocalID，服务端确认后只保留 ID。
type Message struct {
	ID         string     `json:"_id,omitempty"`
	LocalID    string     `json:"localId,omitempty"`
	SenderID   uint64     `json:"senderId"`
	ReceiverID uint64     `json:"receiverId"`
	Text       string     `json:"text,omitempty"`  // 密文
	Plaintext  string     `json:"plaintext,omitempty"` // 仅存在于本地缓存，不上行
	Image      string     `json:"image,omitempty"`
	Type       string     `json:"type"`
	URL        string     `json:"url,omitempty"`
	Seen       bool       `json:"seen"`
	SeenAt     *time.Time `json:"seenAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`

	// 首条消息事件附带的发送者资料
	SenderName       string `json:"senderName,omitempty"`
	SenderProfilePic string `json:"senderProfilePic,omitempty"`
}

// Pending 是否仍是未被服务端确认的乐观消息
func (m *Message) Pending() bool {
	return m.ID == ""
}

// Key 去重与查找用的稳定键
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.LocalID
}

// PartnerOf 返回这条消息相对 selfID 的会话对手方
func (m *Message) PartnerOf(selfID uint64) uint64 {
	if m.SenderID == selfID {
		return m.ReceiverID
	}
	return m.SenderID
}

// ChatSummary 会话列表行模型
type ChatSummary struct {
	PartnerID     uint64    `json:"partnerId"`
	PartnerName   string    `json:"partnerName"`
	PartnerAvatar string    `json:"partnerAvatar"`
	LastMessage   string    `json:"lastMessage"` // 明文预览，解不开时为占位文案
	LastMsgType   string    `json:"lastMsgType"`
	LastSenderID  uint64    `json:"lastSenderId"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnseenCount   uint64    `json:"unseenCount"`

	// 陌生人首条消息合成的占位条目，待资料异步补全
	Stub bool `json:"stub,omitempty"`
}

// EncryptedPlaceholder 解密失败时的预览占位
const EncryptedPlaceholder = "加密消息"
