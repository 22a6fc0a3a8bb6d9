package consts

const (
	TokenBlacklistKey = "auth:token:blacklist:"
	MediaTempKey      = "media:temp:chat"
	UserSimpleInfoKey = "user:simple:info:"
)

const (
	MediaCleanLock = "media:clean:lock"
)
