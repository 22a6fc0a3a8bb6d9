package dto

import "time"

// SendMessageReq 发送消息请求体：text（密文）/ image / url 至少一项
type SendMessageReq struct {
	Text  string `json:"text"`
	Image string `json:"image"` // data URI 或既有 URL
	Type  string `json:"type"`  // text | image | video_call，缺省按内容推断
	URL   string `json:"url"`   // 通话链接
}

// MessageDTO 消息明细响应，同时也是 newMessage 事件载荷。
// SenderName / SenderProfilePic 仅在一段会话的第一条消息上携带，
// 便于接收端无需额外查询即可渲染新会话占位。
type MessageDTO struct {
	ID               string     `json:"_id"`
	SenderID         uint64     `json:"senderId"`
	ReceiverID       uint64     `json:"receiverId"`
	Text             string     `json:"text,omitempty"`
	Image            string     `json:"image,omitempty"`
	Type             string     `json:"type"`
	URL              string     `json:"url,omitempty"`
	Seen             bool       `json:"seen"`
	SeenAt           *time.Time `json:"seenAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	SenderName       string     `json:"senderName,omitempty"`
	SenderProfilePic string     `json:"senderProfilePic,omitempty"`
}

// ChatSummaryDTO 会话列表项响应
type ChatSummaryDTO struct {
	PartnerID      uint64    `json:"partnerId"`
	PartnerName    string    `json:"partnerName"`
	PartnerAvatar  string    `json:"partnerAvatar"`
	LastMsgText    string    `json:"lastMsgText,omitempty"` // 密文，明文由客户端解出
	LastMsgType    string    `json:"lastMsgType"`
	LastSenderID   uint64    `json:"lastSenderId"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	UnseenCount    uint64    `json:"unseenCount"`
}

// DeleteMessageRes 删除消息响应
type DeleteMessageRes struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}
