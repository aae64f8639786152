// Package resettoken 生成与校验找回密码令牌。
//
// 令牌不落库：由用户 ID、密码哈希、邮箱、签发时间与服务端密钥经 HMAC-SHA256 派生。
// 密码一经修改，哈希变化，此前签发的令牌随即失效。
package resettoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// signatureLen 签名部分保留的十六进制字符数
const signatureLen = 32

// Subject 参与令牌派生的用户状态
type Subject struct {
	UserID       uint
	PasswordHash string
	Email        string
}

// Generator 找回密码令牌生成器
type Generator struct {
	secret  []byte
	timeout time.Duration
	now     func() time.Time
}

// NewGenerator 创建令牌生成器，timeout 为令牌有效期
func NewGenerator(secret string, timeout time.Duration) *Generator {
	return &Generator{
		secret:  []byte(secret),
		timeout: timeout,
		now:     time.Now,
	}
}

// Make 为用户签发令牌，格式为 "<base36 时间戳>-<签名>"
func (g *Generator) Make(s Subject) string {
	ts := g.now().Unix()
	return strconv.FormatInt(ts, 36) + "-" + g.sign(s, ts)
}

// Check 校验令牌是否与用户当前状态匹配且未过期
func (g *Generator) Check(s Subject, token string) bool {
	tsPart, sig, ok := strings.Cut(token, "-")
	if !ok || tsPart == "" || len(sig) != signatureLen {
		return false
	}

	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil {
		return false
	}

	if !hmac.Equal([]byte(sig), []byte(g.sign(s, ts))) {
		return false
	}

	age := g.now().Sub(time.Unix(ts, 0))
	if age < 0 || age > g.timeout {
		return false
	}
	return true
}

func (g *Generator) sign(s Subject, ts int64) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte("accounthub.resettoken"))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatUint(uint64(s.UserID), 10)))
	mac.Write([]byte{0})
	mac.Write([]byte(s.PasswordHash))
	mac.Write([]byte{0})
	mac.Write([]byte(strings.ToLower(s.Email)))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	return hex.EncodeToString(mac.Sum(nil))[:signatureLen]
}
