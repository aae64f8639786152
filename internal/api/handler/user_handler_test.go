package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"accounthub/internal/dto"
	"accounthub/internal/service"
	pkgerrors "accounthub/pkg/errors"
)

const testMaxUpload = 1 << 10

func newUserRouter(mock *mockUserService, userID uint, isStaff bool) *gin.Engine {
	h := NewUserHandler(mock, testMaxUpload)
	r := gin.New()
	g := r.Group("", withAuth(userID, isStaff))
	g.GET("/users", h.ListUsers)
	g.POST("/users", h.CreateUser)
	g.POST("/users/import", h.ImportUsers)
	g.GET("/users/export", h.ExportUsers)
	g.GET("/users/:id", h.GetUser)
	g.PATCH("/users/:id", h.UpdateUser)
	g.DELETE("/users/:id", h.DeleteUser)
	g.PATCH("/users/:id/upload-avatar", h.UploadAvatar)
	r.POST("/init-users", h.InitUsers)
	return r
}

func TestUserHandler_ListUsers(t *testing.T) {
	mock := &mockUserService{listResult: []dto.ProfileResponse{{ID: 1}, {ID: 2}}}
	w := doJSON(newUserRouter(mock, 1, true), http.MethodGet, "/users", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("[")) {
		t.Errorf("expected JSON array, got %s", w.Body.String())
	}
}

func TestUserHandler_CreateUser_NestedValidation(t *testing.T) {
	mock := &mockUserService{}
	w := doJSON(newUserRouter(mock, 1, true), http.MethodPost, "/users",
		jsonBody(map[string]interface{}{"user": map[string]string{"username": ""}, "location": "x"}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	resp := parseMap(t, w)
	user, ok := resp["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected nested user errors, got %v", resp)
	}
	msgs, _ := user["username"].([]interface{})
	if len(msgs) != 1 || msgs[0] != "This field may not be blank." {
		t.Errorf("unexpected username errors: %v", user["username"])
	}
}

func TestUserHandler_CreateUser_BadBirthDate(t *testing.T) {
	mock := &mockUserService{}
	w := doJSON(newUserRouter(mock, 1, true), http.MethodPost, "/users",
		jsonBody(map[string]interface{}{"user": map[string]string{"username": "dave"}, "birth_date": "01/02/2000"}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if _, ok := parseMap(t, w)["birth_date"]; !ok {
		t.Errorf("expected birth_date error, got %s", w.Body.String())
	}
}

func TestUserHandler_CreateUser_Success(t *testing.T) {
	mock := &mockUserService{profile: &dto.ProfileResponse{ID: 9, User: dto.UserInfo{ID: 9, Username: "dave"}}}
	w := doJSON(newUserRouter(mock, 1, true), http.MethodPost, "/users",
		jsonBody(map[string]interface{}{"user": map[string]string{"username": "dave", "email": "dave@example.com"}}))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestUserHandler_GetUser_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{"非法 id", "/users/abc", nil, http.StatusNotFound, "User does not exist"},
		{"零 id", "/users/0", nil, http.StatusNotFound, "User does not exist"},
		{"无权限", "/users/2", service.ErrNoPermission, http.StatusForbidden, "You do not have permission to perform this action"},
		{"不存在", "/users/2", service.ErrUserNotFound, http.StatusNotFound, "User does not exist"},
		{"未知错误", "/users/2", errors.New("db down"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockUserService{err: tt.err}
			w := doJSON(newUserRouter(mock, 1, false), http.MethodGet, tt.path, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if got := parseDetail(t, w); got != tt.wantDetail {
				t.Errorf("expected %q, got %q", tt.wantDetail, got)
			}
		})
	}
}

func TestUserHandler_GetUser_PassesCaller(t *testing.T) {
	mock := &mockUserService{profile: &dto.ProfileResponse{ID: 4}}
	w := doJSON(newUserRouter(mock, 4, false), http.MethodGet, "/users/4", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.lastCaller != (service.Caller{ID: 4, IsStaff: false}) || mock.lastID != 4 {
		t.Errorf("unexpected caller=%+v id=%d", mock.lastCaller, mock.lastID)
	}
}

func TestUserHandler_UpdateUser(t *testing.T) {
	mock := &mockUserService{profile: &dto.ProfileResponse{ID: 4, Bio: "hello"}}
	w := doJSON(newUserRouter(mock, 4, false), http.MethodPatch, "/users/4",
		jsonBody(map[string]interface{}{"bio": "hello", "user": map[string]string{"first_name": "Eve"}}))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if mock.lastUpdate == nil || mock.lastUpdate.Bio == nil || *mock.lastUpdate.Bio != "hello" {
		t.Fatalf("bio not forwarded: %+v", mock.lastUpdate)
	}
	if mock.lastUpdate.User == nil || mock.lastUpdate.User.FirstName == nil || *mock.lastUpdate.User.FirstName != "Eve" {
		t.Errorf("first_name not forwarded: %+v", mock.lastUpdate.User)
	}
	if mock.lastUpdate.Location != nil {
		t.Errorf("absent location should stay nil")
	}
}

func TestUserHandler_UpdateUser_LocationTooLong(t *testing.T) {
	mock := &mockUserService{}
	w := doJSON(newUserRouter(mock, 4, false), http.MethodPatch, "/users/4",
		jsonBody(map[string]string{"location": "abcdefghijklmnopqrstuvwxyz0123456789"}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	msgs, _ := parseMap(t, w)["location"].([]interface{})
	if len(msgs) != 1 || msgs[0] != "Ensure this field has no more than 30 characters." {
		t.Errorf("unexpected location errors: %v", msgs)
	}
}

func TestUserHandler_UpdateUser_InvalidAvatar(t *testing.T) {
	mock := &mockUserService{err: pkgerrors.ErrInvalidImage}
	w := doJSON(newUserRouter(mock, 4, false), http.MethodPatch, "/users/4",
		jsonBody(map[string]string{"avatar": "data:image/png;base64,bm90LWFuLWltYWdl"}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	msgs, _ := parseMap(t, w)["avatar"].([]interface{})
	if len(msgs) != 1 || msgs[0] != msgInvalidImage {
		t.Errorf("unexpected avatar errors: %v", msgs)
	}
}

func TestUserHandler_DeleteUser(t *testing.T) {
	t.Run("成功", func(t *testing.T) {
		mock := &mockUserService{}
		w := doJSON(newUserRouter(mock, 1, true), http.MethodDelete, "/users/2", nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
		if mock.lastID != 2 {
			t.Errorf("expected id 2, got %d", mock.lastID)
		}
	})

	t.Run("删除自己", func(t *testing.T) {
		mock := &mockUserService{err: service.ErrUserSelfDelete}
		w := doJSON(newUserRouter(mock, 1, true), http.MethodDelete, "/users/1", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		if got := parseDetail(t, w); got != "You cannot delete yourself" {
			t.Errorf("unexpected detail %q", got)
		}
	})
}

func TestUserHandler_UploadAvatar(t *testing.T) {
	content := []byte("fake-png-bytes")

	t.Run("成功", func(t *testing.T) {
		mock := &mockUserService{avatarResult: &dto.AvatarResponse{Avatar: "http://testserver/media/profile_avatars/4_x.png"}}
		body, ct := multipartBody(t, "avatar", "a.png", content)
		req := httptest.NewRequest(http.MethodPatch, "/users/4/upload-avatar", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 4, false).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
		}
		if !bytes.Equal(mock.lastAvatar, content) {
			t.Errorf("avatar bytes not forwarded")
		}
	})

	t.Run("缺少文件", func(t *testing.T) {
		mock := &mockUserService{}
		body, ct := multipartBody(t, "", "", nil)
		req := httptest.NewRequest(http.MethodPatch, "/users/4/upload-avatar", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 4, false).ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		msgs, _ := parseMap(t, w)["avatar"].([]interface{})
		if len(msgs) != 1 || msgs[0] != msgNoFile {
			t.Errorf("unexpected avatar errors: %v", msgs)
		}
	})

	t.Run("文件过大", func(t *testing.T) {
		mock := &mockUserService{}
		body, ct := multipartBody(t, "avatar", "big.png", bytes.Repeat([]byte{1}, testMaxUpload+1))
		req := httptest.NewRequest(http.MethodPatch, "/users/4/upload-avatar", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 4, false).ServeHTTP(w, req)

		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", w.Code)
		}
		if mock.lastAvatar != nil {
			t.Errorf("service should not be called")
		}
	})

	t.Run("图片无效", func(t *testing.T) {
		mock := &mockUserService{err: pkgerrors.ErrInvalidImage}
		body, ct := multipartBody(t, "avatar", "a.png", content)
		req := httptest.NewRequest(http.MethodPatch, "/users/4/upload-avatar", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 4, false).ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestUserHandler_ImportUsers(t *testing.T) {
	content := []byte("fake-png-bytes")

	t.Run("成功", func(t *testing.T) {
		mock := &mockUserService{
			parseRows:    []service.ImportUserRow{{Row: 2, Username: "u1"}},
			importResult: &dto.ImportUserResponse{Total: 1, Success: 1},
		}
		body, ct := multipartBody(t, "file", "users.xlsx", []byte("xlsx"))
		req := httptest.NewRequest(http.MethodPost, "/users/import", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 1, true).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
		}
	})

	t.Run("解析失败返回固定提示", func(t *testing.T) {
		cases := []struct {
			name string
			err  error
			want string
		}{
			{"表头缺列", service.ErrImportBadHeader, msgImportBadHeader},
			{"无数据行", service.ErrImportNoData, msgImportNoData},
			{"行数超限", service.ErrImportTooManyRows, msgImportTooManyRows},
			{"文件损坏", fmt.Errorf("无法解析Excel文件: %w", errors.New("zip: not a valid zip file")), msgImportInvalidFile},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				mock := &mockUserService{parseErr: tc.err}
				body, ct := multipartBody(t, "file", "users.xlsx", []byte("xlsx"))
				req := httptest.NewRequest(http.MethodPost, "/users/import", body)
				req.Header.Set("Content-Type", ct)
				w := httptest.NewRecorder()
				newUserRouter(mock, 1, true).ServeHTTP(w, req)

				if w.Code != http.StatusBadRequest {
					t.Fatalf("expected 400, got %d", w.Code)
				}
				if got := parseDetail(t, w); got != tc.want {
					t.Errorf("expected detail %q, got %q", tc.want, got)
				}
			})
		}
	})

	t.Run("文件超过上限", func(t *testing.T) {
		mock := &mockUserService{parseRows: []service.ImportUserRow{{Row: 2, Username: "u1"}}}
		body, ct := multipartBody(t, "file", "big.xlsx", bytes.Repeat([]byte{1}, testMaxUpload+1))
		req := httptest.NewRequest(http.MethodPost, "/users/import", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 1, true).ServeHTTP(w, req)

		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d (%s)", w.Code, w.Body.String())
		}
	})

	t.Run("缺少文件", func(t *testing.T) {
		mock := &mockUserService{}
		body, ct := multipartBody(t, "", "", nil)
		req := httptest.NewRequest(http.MethodPatch, "/users/4/upload-avatar", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 4, false).ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		msgs, _ := parseMap(t, w)["avatar"].([]interface{})
		if len(msgs) != 1 || msgs[0] != msgNoFile {
			t.Errorf("unexpected avatar errors: %v", msgs)
		}
	})

	t.Run("文件过大", func(t *testing.T) {
		mock := &mockUserService{}
		body, ct := multipartBody(t, "avatar", "big.png", bytes.Repeat([]byte{1}, testMaxUpload+1))
		req := httptest.NewRequest(http.MethodPatch, "/users/4/upload-avatar", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 4, false).ServeHTTP(w, req)

		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", w.Code)
		}
		if mock.lastAvatar != nil {
			t.Errorf("service should not be called")
		}
	})

	t.Run("图片无效", func(t *testing.T) {
		mock := &mockUserService{err: pkgerrors.ErrInvalidImage}
		body, ct := multipartBody(t, "avatar", "a.png", content)
		req := httptest.NewRequest(http.MethodPatch, "/users/4/upload-avatar", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 4, false).ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestUserHandler_ImportUsers_Legacy(t *testing.T) {
	t.Run("成功", func(t *testing.T) {
		mock := &mockUserService{
			parseRows:    []service.ImportUserRow{{Row: 2, Username: "u1"}},
			importResult: &dto.ImportUserResponse{Total: 1, Success: 1},
		}
		body, ct := multipartBody(t, "file", "users.xlsx", []byte("xlsx"))
		req := httptest.NewRequest(http.MethodPost, "/users/import", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 1, true).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
		}
	})

	t.Run("解析失败", func(t *testing.T) {
		mock := &mockUserService{parseErr: service.ErrImportBadHeader}
		body, ct := multipartBody(t, "file", "users.xlsx", []byte("xlsx"))
		req := httptest.NewRequest(http.MethodPost, "/users/import", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(mock, 1, true).ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		if got := parseDetail(t, w); got != service.ErrImportBadHeader.Error() {
			t.Errorf("unexpected detail %q", got)
		}
	})

	t.Run("缺少文件", func(t *testing.T) {
		body, ct := multipartBody(t, "", "", nil)
		req := httptest.NewRequest(http.MethodPost, "/users/import", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		newUserRouter(&mockUserService{}, 1, true).ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestUserHandler_InitUsers(t *testing.T) {
	w := doJSON(newUserRouter(&mockUserService{}, 0, false), http.MethodPost, "/init-users", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := parseDetail(t, w); got != "Users initialized successfully" {
		t.Errorf("unexpected detail %q", got)
	}
}

func TestUserHandler_ExportUsers(t *testing.T) {
	mock := &mockUserService{exportData: []byte("xlsx-bytes")}
	w := doJSON(newUserRouter(mock, 1, true), http.MethodGet, "/users/export", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename*=UTF-8''users_20260101.xlsx" {
		t.Errorf("unexpected content disposition %q", cd)
	}
	if w.Body.String() != "xlsx-bytes" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}
