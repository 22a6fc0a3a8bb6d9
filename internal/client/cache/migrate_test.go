package cache

import (
	"Amoura/internal/client/chat"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"Amoura/internal/client/cipher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMigration struct {
	id   string
	runs int
	err  error
}

func (m *countingMigration) ID() string { return m.id }

func (m *countingMigration) Run(ctx context.Context) error {
	m.runs++
	return m.err
}

func TestRunner_RunsOnceThenShortCircuits(t *testing.T) {
	kv, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer kv.Close()

	m := &countingMigration{id: "test-once"}
	runner := NewRunner(kv, m)

	require.NoError(t, runner.Run(context.Background()))
	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, 1, m.runs)
}

func TestRunner_FailedMigrationNotMarkedDone(t *testing.T) {
	kv, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer kv.Close()

	m := &countingMigration{id: "test-fail", err: errors.New("boom")}
	runner := NewRunner(kv, m)

	require.Error(t, runner.Run(context.Background()))

	// 失败后标记不落盘，下次启动会重试
	m.err = nil
	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, 2, m.runs)
}

func TestPlaintextMigration_BackfillsAndPersists(t *testing.T) {
	kv, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer kv.Close()
	cc := NewChatCache(kv)

	now := time.Now().Truncate(time.Second)
	conversations := map[uint64][]*chat.Message{}
	for i := 0; i < 45; i++ {
		ciphertext, err := cipher.Encrypt("消息", "pw")
		require.NoError(t, err)
		conversations[2] = append(conversations[2], &chat.Message{
			ID: "m", Text: ciphertext, Type: chat.TypeText, CreatedAt: now,
		})
	}
	// 一条坏密文与一条已有明文的消息
	conversations[2] = append(conversations[2],
		&chat.Message{ID: "bad", Text: "corrupted-blob", Type: chat.TypeText, CreatedAt: now},
		&chat.Message{ID: "done", Text: "x", Plaintext: "已迁移过", Type: chat.TypeText, CreatedAt: now},
	)
	require.NoError(t, cc.Save(conversations))

	runner := NewRunner(kv, NewPlaintextMigration(cc, "pw"))
	require.NoError(t, runner.Run(context.Background()))

	loaded, err := cc.Load()
	require.NoError(t, err)
	decrypted := 0
	for _, m := range loaded[2] {
		if m.Plaintext == "消息" {
			decrypted++
		}
	}
	assert.Equal(t, 45, decrypted)

	for _, m := range loaded[2] {
		switch m.ID {
		case "bad":
			// 解不开的消息被跳过而不是中断迁移
			assert.Equal(t, "", m.Plaintext)
		case "done":
			assert.Equal(t, "已迁移过", m.Plaintext)
		}
	}
}

func TestPlaintextMigration_SecondRunSkipped(t *testing.T) {
	kv, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer kv.Close()
	cc := NewChatCache(kv)

	ciphertext, err := cipher.Encrypt("仅一次", "pw")
	require.NoError(t, err)
	require.NoError(t, cc.Save(map[uint64][]*chat.Message{
		3: {{ID: "m1", Text: ciphertext, Type: chat.TypeText, CreatedAt: time.Now()}},
	}))

	runner := NewRunner(kv, NewPlaintextMigration(cc, "pw"))
	require.NoError(t, runner.Run(context.Background()))

	// 完成标记已写入
	flag, err := kv.Get(migrationFlagPrefix + "plaintext-backfill-v2")
	require.NoError(t, err)
	assert.NotNil(t, flag)

	require.NoError(t, runner.Run(context.Background()))
	loaded, err := cc.Load()
	require.NoError(t, err)
	assert.Equal(t, "仅一次", loaded[3][0].Plaintext)
}
