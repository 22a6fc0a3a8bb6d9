package cache

import (
	"Amoura/internal/client/chat"
	"Amoura/internal/client/cipher"
	"context"
	log "log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const migrationFlagPrefix = "migration:done:"

// Migration 一次本地数据迁移：带稳定 ID，Run 必须可安全重放。
// 完成标记由 Runner 统一落盘，单条迁移只关心数据本身。
type Migration interface {
	ID() string
	Run(ctx context.Context) error
}

// Runner 顺序执行尚未完成的迁移，支持后续不断追加新迁移
type Runner struct {
	kv         *Store
	migrations []Migration
}

func NewRunner(kv *Store, migrations ...Migration) *Runner {
	return &Runner{kv: kv, migrations: migrations}
}

// Run 逐个执行：已完成的迁移由标记短路，绝不重放
func (r *Runner) Run(ctx context.Context) error {
	for _, m := range r.migrations {
		flagKey := migrationFlagPrefix + m.ID()

		done, err := r.kv.Get(flagKey)
		if err != nil {
			return err
		}
		if done != nil {
			continue
		}

		log.Info("running local cache migration", "id", m.ID())
		if err := m.Run(ctx); err != nil {
			return err
		}
		if err := r.kv.Put(flagKey, []byte("1")); err != nil {
			return err
		}
	}
	return nil
}

// PlaintextMigration 为历史缓存补写解密后的明文字段。
// 小批量并发解密，批间让出调度并落盘进度，崩溃后可从断点继续。
type PlaintextMigration struct {
	chatCache  *ChatCache
	passphrase string
	batchSize  int
}

func NewPlaintextMigration(chatCache *ChatCache, passphrase string) *PlaintextMigration {
	return &PlaintextMigration{
		chatCache:  chatCache,
		passphrase: passphrase,
		batchSize:  20,
	}
}

func (m *PlaintextMigration) ID() string { return "plaintext-backfill-v2" }

func (m *PlaintextMigration) Run(ctx context.Context) error {
	conversations, err := m.chatCache.Load()
	if err != nil {
		return err
	}

	// 收集缺少明文的消息；持有的是缓存内指针，原地补写
	var pending []*chat.Message
	for _, messages := range conversations {
		for _, msg := range messages {
			if msg.Text != "" && msg.Plaintext == "" {
				pending = append(pending, msg)
			}
		}
	}
	if len(pending) == 0 {
		return nil
	}

	for start := 0; start < len(pending); start += m.batchSize {
		end := start + m.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, msg := range batch {
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				plaintext := cipher.Decrypt(msg.Text, m.passphrase)
				if plaintext == "" {
					// 单条失败跳过，不拖垮整批
					log.Warn("migration decrypt failed, skipping message", "id", msg.Key())
					return nil
				}
				msg.Plaintext = plaintext
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// 每批之后落盘进度，崩溃后不回头重解已完成的批次
		if err := m.chatCache.Save(conversations); err != nil {
			return err
		}

		// 批间让出，避免长时间占住调用方
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}

	return nil
}
