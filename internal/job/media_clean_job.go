package job

import (
	"Amoura/internal/pkg/consts"
	"Amoura/internal/pkg/redis"
	"Amoura/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// MediaCleanupJob 清理已上传但最终未落库的聊天图片。
// 上传成功即登记，消息持久化成功后摘除；残留项超过 24 小时视为孤儿。
type MediaCleanupJob struct {
	media service.MediaStore
}

func NewMediaCleanupJob(media service.MediaStore) *MediaCleanupJob {
	return &MediaCleanupJob{media: media}
}

type mediaTempMeta struct {
	CreatedAt int64  `json:"created_at"`
	Mime      string `json:"mime"`
	Sender    string `json:"sender"`
}

func (s *MediaCleanupJob) Run() {
	ctx := context.Background()
	log.Info("start media cleanup job")

	// 多实例部署时只允许一个实例执行
	lockVal := uuid.New().String()
	locked, err := redis.TryLock(ctx, consts.MediaCleanLock, lockVal, 10*time.Minute, 1)
	if err != nil || !locked {
		return
	}
	defer redis.UnLock(ctx, consts.MediaCleanLock, lockVal)

	allMedia, err := redis.HGetAll(ctx, consts.MediaTempKey)
	if err != nil {
		log.Error("failed to get media temp hash", "err", err)
		return
	}

	now := time.Now().Unix()
	expiration := int64(24 * 60 * 60)
	count := 0

	for mediaURL, val := range allMedia {
		var meta mediaTempMeta
		if err := json.Unmarshal([]byte(val), &meta); err != nil {
			log.Warn("invalid media meta format", "mediaURL", mediaURL)
			continue
		}

		if now-meta.CreatedAt > expiration {
			if err = s.media.Remove(ctx, mediaURL); err != nil {
				log.Error("failed to delete orphaned image", "mediaURL", mediaURL, "err", err)
				continue
			}

			if err = redis.HDel(ctx, consts.MediaTempKey, mediaURL); err != nil {
				log.Error("failed to remove media record from redis", "mediaURL", mediaURL, "err", err)
			}

			count++
		}
	}

	if count > 0 {
		log.Info("media cleanup job finished", "cleaned_count", count)
	}
}
