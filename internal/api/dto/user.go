package dto

// UserSimpleDTO 用户基础信息，用于会话占位条目的异步补全
type UserSimpleDTO struct {
	UserID    uint64 `json:"userId"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
}
