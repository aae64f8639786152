package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"accounthub/config"
	"accounthub/internal/model"
	"accounthub/pkg/jwt"
	"accounthub/pkg/redis"
	"accounthub/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ── fakes ──

type fakeUsers map[uint]*model.User

func (f fakeUsers) GetByID(_ context.Context, id uint) (*model.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

type fakeBlacklist struct {
	revoked map[string]bool
	err     error
}

func (f *fakeBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], f.err
}

func newJWT() *jwt.Manager {
	return jwt.NewManager(&config.AuthConfig{
		JWTSecret:       "middleware-test-secret-0123456789",
		AccessTokenTTL:  5 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var d response.Detail
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("响应不是合法 JSON: %v (%s)", err, w.Body.String())
	}
	return d.Detail
}

// ── JWTAuth ──

func TestJWTAuth(t *testing.T) {
	mgr := newJWT()
	users := fakeUsers{
		1: {ID: 1, Username: "staff", IsStaff: true, IsActive: true},
		2: {ID: 2, Username: "inactive", IsActive: false},
	}

	access, err := mgr.GenerateAccessToken(1, false)
	if err != nil {
		t.Fatalf("准备数据失败: %v", err)
	}
	refresh, err := mgr.GenerateRefreshToken(1, false)
	if err != nil {
		t.Fatalf("准备数据失败: %v", err)
	}
	inactive, err := mgr.GenerateAccessToken(2, false)
	if err != nil {
		t.Fatalf("准备数据失败: %v", err)
	}
	ghost, err := mgr.GenerateAccessToken(99, false)
	if err != nil {
		t.Fatalf("准备数据失败: %v", err)
	}
	claims, err := mgr.ParseToken(access)
	if err != nil {
		t.Fatalf("准备数据失败: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		blacklist  TokenBlacklist
		wantStatus int
		wantDetail string
	}{
		{"缺少认证头", "", nil, http.StatusUnauthorized, response.MsgNotAuthenticated},
		{"错误的认证方案", "Basic " + access, nil, http.StatusUnauthorized, response.MsgNotAuthenticated},
		{"无效 Token", "Bearer garbage", nil, http.StatusUnauthorized, response.MsgTokenNotValid},
		{"Refresh Token 不能访问", "Bearer " + refresh, nil, http.StatusUnauthorized, response.MsgTokenNotValid},
		{"用户不存在", "Bearer " + ghost, nil, http.StatusUnauthorized, response.MsgUserNotFound},
		{"用户已停用", "Bearer " + inactive, nil, http.StatusUnauthorized, response.MsgUserNotFound},
		{"已吊销", "Bearer " + access, &fakeBlacklist{revoked: map[string]bool{claims.ID: true}}, http.StatusUnauthorized, response.MsgTokenNotValid},
		{"黑名单不可用", "Bearer " + access, &fakeBlacklist{err: errors.New("redis down")}, http.StatusInternalServerError, response.MsgInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/p", JWTAuth(mgr, tt.blacklist, users, zap.NewNop()), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if got := w.Code; got != tt.wantStatus {
				t.Errorf("期望状态码 %d，实际 %d", tt.wantStatus, got)
			}
			if got := detail(t, w); got != tt.wantDetail {
				t.Errorf("期望 %q，实际 %q", tt.wantDetail, got)
			}
		})
	}
}

func TestJWTAuth_StaffFlagFromDatabase(t *testing.T) {
	mgr := newJWT()
	users := fakeUsers{1: {ID: 1, IsStaff: true, IsActive: true}}
	// Token 签发时非管理员，数据库中已提升为管理员
	token, err := mgr.GenerateAccessToken(1, false)
	if err != nil {
		t.Fatalf("准备数据失败: %v", err)
	}

	var gotID uint
	var gotStaff bool
	r := gin.New()
	r.GET("/p", JWTAuth(mgr, &fakeBlacklist{}, users, zap.NewNop()), StaffAuth(), func(c *gin.Context) {
		gotID = c.MustGet(ContextUserID).(uint)
		gotStaff = c.GetBool(ContextIsStaff)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Code; got != http.StatusOK {
		t.Errorf("期望状态码 %d，实际 %d", http.StatusOK, got)
	}
	if gotID != 1 {
		t.Errorf("期望 UserID=1，实际 %d", gotID)
	}
	if !gotStaff {
		t.Error("期望按数据库中的 IsStaff=true 放行")
	}
}

// ── StaffAuth ──

func TestStaffAuth(t *testing.T) {
	tests := []struct {
		name       string
		setup      gin.HandlerFunc
		wantStatus int
	}{
		{"未认证", func(c *gin.Context) { c.Next() }, http.StatusUnauthorized},
		{"普通用户", func(c *gin.Context) { c.Set(ContextUserID, uint(2)); c.Set(ContextIsStaff, false); c.Next() }, http.StatusForbidden},
		{"管理员", func(c *gin.Context) { c.Set(ContextUserID, uint(1)); c.Set(ContextIsStaff, true); c.Next() }, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/p", tt.setup, StaffAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p", nil))
			if got := w.Code; got != tt.wantStatus {
				t.Errorf("期望状态码 %d，实际 %d", tt.wantStatus, got)
			}
		})
	}
}

// ── RateLimit ──

func hit(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_LocalFallback(t *testing.T) {
	r := gin.New()
	r.POST("/login", RateLimit(nil, 3, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		if got := hit(r, "10.0.0.1"); got != http.StatusOK {
			t.Errorf("request %d: 期望状态码 %d，实际 %d", i+1, http.StatusOK, got)
		}
	}
	if got := hit(r, "10.0.0.1"); got != http.StatusTooManyRequests {
		t.Errorf("期望状态码 %d，实际 %d", http.StatusTooManyRequests, got)
	}
	// 不同 IP 独立计数
	if got := hit(r, "10.0.0.2"); got != http.StatusOK {
		t.Errorf("期望状态码 %d，实际 %d", http.StatusOK, got)
	}
}

func TestRateLimit_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := redis.NewClient(&config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	if err != nil {
		t.Fatalf("准备数据失败: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	r := gin.New()
	r.POST("/login", RateLimit(rdb, 2, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	if got := hit(r, "10.0.0.1"); got != http.StatusOK {
		t.Errorf("期望状态码 %d，实际 %d", http.StatusOK, got)
	}
	if got := hit(r, "10.0.0.1"); got != http.StatusOK {
		t.Errorf("期望状态码 %d，实际 %d", http.StatusOK, got)
	}

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Code; got != http.StatusTooManyRequests {
		t.Errorf("期望状态码 %d，实际 %d", http.StatusTooManyRequests, got)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("期望 %q，实际 %q", "60", got)
	}
	if got := detail(t, w); got != response.MsgThrottled {
		t.Errorf("期望 %q，实际 %q", response.MsgThrottled, got)
	}
}

type failingWindow struct{}

func (failingWindow) CheckRateLimit(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit_RedisErrorFallsBackToLocal(t *testing.T) {
	r := gin.New()
	r.POST("/login", RateLimit(failingWindow{}, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	if got := hit(r, "10.0.0.1"); got != http.StatusOK {
		t.Errorf("期望状态码 %d，实际 %d", http.StatusOK, got)
	}
	if got := hit(r, "10.0.0.1"); got != http.StatusTooManyRequests {
		t.Errorf("期望状态码 %d，实际 %d", http.StatusTooManyRequests, got)
	}
}

// ── BodyLimit ──

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/p", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusOK)
	})

	t.Run("未超限", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/p", strings.NewReader("small")))
		if got := w.Code; got != http.StatusOK {
			t.Errorf("期望状态码 %d，实际 %d", http.StatusOK, got)
		}
	})

	t.Run("Content-Length 超限", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/p", strings.NewReader(strings.Repeat("x", 64))))
		if got := w.Code; got != http.StatusRequestEntityTooLarge {
			t.Errorf("期望状态码 %d，实际 %d", http.StatusRequestEntityTooLarge, got)
		}
		if got := detail(t, w); got != response.MsgBodyTooLarge {
			t.Errorf("期望 %q，实际 %q", response.MsgBodyTooLarge, got)
		}
	})

	t.Run("未声明长度的超限请求体", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/p", strings.NewReader(strings.Repeat("x", 64)))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if got := w.Code; got != http.StatusRequestEntityTooLarge {
			t.Errorf("期望状态码 %d，实际 %d", http.StatusRequestEntityTooLarge, got)
		}
	})
}

// ── RequestID / CORS / SecurityHeaders ──

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/p", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	t.Run("沿用传入 ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
			t.Errorf("期望 %q，实际 %q", "abc-123", got)
		}
		if got := w.Body.String(); got != "abc-123" {
			t.Errorf("期望 %q，实际 %q", "abc-123", got)
		}
	})

	t.Run("过长时重新生成", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("a", 100))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if got := w.Header().Get("X-Request-ID"); len(got) != 36 {
			t.Errorf("期望长度 36，实际 %d", len(got))
		}
	})
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173/"}))
	r.GET("/p", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/p", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Code; got != http.StatusNoContent {
		t.Errorf("期望状态码 %d，实际 %d", http.StatusNoContent, got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("期望 %q，实际 %q", "http://localhost:5173", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Code; got != http.StatusOK {
		t.Errorf("期望状态码 %d，实际 %d", http.StatusOK, got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("期望为空，实际 %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/api/v1/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/media/a.png", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/x", nil))
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("期望 %q，实际 %q", "DENY", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("期望 %q，实际 %q", "nosniff", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/media/a.png", nil))
	if got := w.Header().Get("X-Frame-Options"); got != "" {
		t.Errorf("期望为空，实际 %q", got)
	}
	if got := w.Header().Get("Cross-Origin-Resource-Policy"); got != "cross-origin" {
		t.Errorf("期望 %q，实际 %q", "cross-origin", got)
	}
}
