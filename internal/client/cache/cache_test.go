package cache

import (
	"Amoura/internal/client/chat"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	kv := openTestStore(t)

	require.NoError(t, kv.Put("k1", []byte("v1")))

	got, err := kv.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestStore_GetMissingKey(t *testing.T) {
	kv := openTestStore(t)

	got, err := kv.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_PutOverwrites(t *testing.T) {
	kv := openTestStore(t)

	require.NoError(t, kv.Put("k1", []byte("old")))
	require.NoError(t, kv.Put("k1", []byte("new")))

	got, err := kv.Get("k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestStore_Delete(t *testing.T) {
	kv := openTestStore(t)

	require.NoError(t, kv.Put("k1", []byte("v1")))
	require.NoError(t, kv.Delete("k1"))

	got, err := kv.Get("k1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// 删除不存在的键不报错
	assert.NoError(t, kv.Delete("missing"))
}

func TestChatCache_RoundTrip(t *testing.T) {
	kv := openTestStore(t)
	cc := NewChatCache(kv)

	// 空库返回空映射而不是 nil
	loaded, err := cc.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Empty(t, loaded)

	now := time.Now().Truncate(time.Second)
	conversations := map[uint64][]*chat.Message{
		2: {
			{ID: "m1", SenderID: 2, ReceiverID: 1, Text: "cipher", Plaintext: "明文", Type: chat.TypeText, CreatedAt: now},
			{LocalID: chat.TempIDPrefix + "p1", SenderID: 1, ReceiverID: 2, Plaintext: "草稿", Type: chat.TypeText, CreatedAt: now},
		},
	}
	require.NoError(t, cc.Save(conversations))

	loaded, err = cc.Load()
	require.NoError(t, err)
	require.Len(t, loaded[2], 2)
	assert.Equal(t, "m1", loaded[2][0].ID)
	assert.Equal(t, "明文", loaded[2][0].Plaintext)
	assert.True(t, loaded[2][1].Pending())
}
