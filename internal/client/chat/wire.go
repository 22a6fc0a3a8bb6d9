package chat

import "time"

// SendMessageReq 发送消息请求体，text 必须已经是密文
type SendMessageReq struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
	Type  string `json:"type,omitempty"`
	URL   string `json:"url,omitempty"`
}

// SummaryRow 服务端会话列表行的线上形态，预览字段仍是密文
type SummaryRow struct {
	PartnerID     uint64    `json:"partnerId"`
	PartnerName   string    `json:"partnerName"`
	PartnerAvatar string    `json:"partnerAvatar"`
	LastMsgText   string    `json:"lastMsgText"`
	LastMsgType   string    `json:"lastMsgType"`
	LastSenderID  uint64    `json:"lastSenderId"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnseenCount   uint64    `json:"unseenCount"`
}

// Profile 用户基础资料，用于陌生人会话占位条目的补全
type Profile struct {
	UserID    uint64 `json:"userId"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
}
