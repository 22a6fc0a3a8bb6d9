package mongo

import (
	"time"
)

// Message 私信消息模型
type Message struct {
	ID         string     `bson:"_id,omitempty" json:"_id"`            // 持久层分配的消息 ID
	SenderID   uint64     `bson:"sender_id" json:"senderId"`           // 发送者 UID
	ReceiverID uint64     `bson:"receiver_id" json:"receiverId"`       // 接收者 UID
	Text       string     `bson:"text,omitempty" json:"text,omitempty"`   // 密文，服务端不落明文
	Image      string     `bson:"image,omitempty" json:"image,omitempty"` // 图片 URL
	Type       string     `bson:"type" json:"type"`                    // text | image | video_call
	URL        string     `bson:"url,omitempty" json:"url,omitempty"`  // 通话链接等伴随 URL
	Seen       bool       `bson:"seen" json:"seen"`
	SeenAt     *time.Time `bson:"seen_at,omitempty" json:"seenAt,omitempty"`
	CreatedAt  time.Time  `bson:"created_at" json:"createdAt"`
}

// HasContent 文本 / 图片 / 通话链接至少一项存在才算有效消息
func (m *Message) HasContent() bool {
	return m.Text != "" || m.Image != "" || m.URL != ""
}

// ChatPartner 会话列表聚合结果：对手方 + 最后一条消息 + 未读数
type ChatPartner struct {
	PartnerID   uint64  `bson:"_id"`
	LastMessage Message `bson:"last_message"`
	UnseenCount uint64  `bson:"unseen_count"`
}
