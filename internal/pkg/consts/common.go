package consts

// 实时通道事件名
const (
	EventNewMessage    = "newMessage"
	EventDeleteMessage = "deleteMessage"
	EventTyping        = "typing"
	EventOnlineUsers   = "getOnlineUsers"
	EventMarkSeen      = "markSeen"
	EventMessagesSeen  = "messagesSeen"
)

// 消息类型
const (
	MessageTypeText      = "text"
	MessageTypeImage     = "image"
	MessageTypeVideoCall = "video_call"
)

const (
	MimePrefixImage = "image"
)
