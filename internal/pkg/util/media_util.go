package util

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// DecodeDataURI 解析 data:image/...;base64,xxx 形式的内联图片
func DecodeDataURI(uri string) (data []byte, mimeType string, err error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", fmt.Errorf("not a data URI")
	}

	comma := strings.Index(uri, ",")
	if comma < 0 {
		return nil, "", fmt.Errorf("malformed data URI")
	}

	meta := uri[len("data:"):comma]
	if idx := strings.Index(meta, ";"); idx >= 0 {
		mimeType = meta[:idx]
	} else {
		mimeType = meta
	}

	data, err = base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return nil, "", fmt.Errorf("decode data URI payload: %w", err)
	}
	return data, mimeType, nil
}

// DownscaleImage 最长边超过 maxEdge 时等比缩放，统一转为 JPEG。
// 无法解码的输入原样返回，由存储层按原始字节落盘。
func DownscaleImage(data []byte, maxEdge int) ([]byte, string) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data, ""
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxEdge || bounds.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return data, ""
	}
	return buf.Bytes(), "image/jpeg"
}

// ImageExt 根据 MIME 推断扩展名
func ImageExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
