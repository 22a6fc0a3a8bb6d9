package cache

import (
	"Amoura/internal/client/chat"
	"fmt"

	"github.com/goccy/go-json"
)

// 会话缓存的版本化存储键。结构演进时提升版本号并配套迁移。
const (
	ConversationsKey = "chat-cache:v2"
)

// ChatCache 将会话缓存（对手方 -> 消息列表）序列化进本地 KV
type ChatCache struct {
	kv *Store
}

func NewChatCache(kv *Store) *ChatCache {
	return &ChatCache{kv: kv}
}

func (c *ChatCache) Load() (map[uint64][]*chat.Message, error) {
	raw, err := c.kv.Get(ConversationsKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return map[uint64][]*chat.Message{}, nil
	}

	var conversations map[uint64][]*chat.Message
	if err := json.Unmarshal(raw, &conversations); err != nil {
		return nil, fmt.Errorf("decode conversation cache: %w", err)
	}
	if conversations == nil {
		conversations = map[uint64][]*chat.Message{}
	}
	return conversations, nil
}

func (c *ChatCache) Save(conversations map[uint64][]*chat.Message) error {
	raw, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("encode conversation cache: %w", err)
	}
	return c.kv.Put(ConversationsKey, raw)
}
