package minio

import (
	"context"
	"fmt"
	"io"
)

// MediaStore 以对象存储实现消息图片托管
type MediaStore struct{}

func NewMediaStore() *MediaStore {
	return &MediaStore{}
}

// Upload 上传并返回公共访问 URL
func (s *MediaStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	key, err := UploadFile(ctx, objectName, reader, size, contentType)
	if err != nil {
		return "", err
	}
	return GetPublicURL(key), nil
}

// Remove 按公共 URL 删除对象；非本服务托管的 URL 直接忽略
func (s *MediaStore) Remove(ctx context.Context, objectURL string) error {
	objectName := ObjectNameFromURL(objectURL)
	if objectName == "" {
		return nil
	}
	if err := DeleteFile(ctx, objectName); err != nil {
		return fmt.Errorf("remove media object %q: %w", objectName, err)
	}
	return nil
}
