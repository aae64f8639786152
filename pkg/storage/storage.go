package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"accounthub/config"
)

// Storage 媒体文件存储接口
type Storage interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// New 根据 media.backend 创建存储实现
func New(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.Media.Backend {
	case "s3":
		return NewS3(ctx, &cfg.S3)
	case "local", "":
		return NewLocal(cfg.Media.Root, joinURL(cfg.Server.BaseURL, cfg.Media.URLPrefix))
	default:
		return nil, fmt.Errorf("不支持的存储后端: %s", cfg.Media.Backend)
	}
}

// cleanKey 规范化对象键，拒绝越级路径
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("无效的文件键: %q", key)
	}
	return k, nil
}

func joinURL(base, p string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Trim(p, "/")
}
