package avatar

import (
	"fmt"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
)

// KeyPrefix 头像在存储中的目录
const KeyPrefix = "profile_avatars"

// NewKey 生成头像存储键：profile_avatars/<user_id>_<ulid>.<ext>
// 每次上传使用新键，浏览器与 CDN 缓存不会命中旧头像
func NewKey(userID uint, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return path.Join(KeyPrefix, fmt.Sprintf("%d_%s.%s", userID, ulid.Make().String(), ext))
}
