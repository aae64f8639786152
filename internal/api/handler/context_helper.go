package handler

import (
	"github.com/gin-gonic/gin"

	"accounthub/internal/api/middleware"
	"accounthub/internal/service"
	"accounthub/pkg/jwt"
	"accounthub/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(middleware.ContextUserID)
	if !exists {
		response.Unauthorized(c, response.MsgNotAuthenticated)
		return 0, false
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		response.Unauthorized(c, response.MsgNotAuthenticated)
		return 0, false
	}
	return id, true
}

// MustGetCaller 提取当前调用者（ID + 是否管理员），供服务层做权限判断
func MustGetCaller(c *gin.Context) (service.Caller, bool) {
	id, ok := MustGetUserID(c)
	if !ok {
		return service.Caller{}, false
	}
	return service.Caller{ID: id, IsStaff: c.GetBool(middleware.ContextIsStaff)}, true
}

// MustGetClaims 提取当前 Access Token 的声明
func MustGetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(middleware.ContextClaims)
	if !exists {
		response.Unauthorized(c, response.MsgNotAuthenticated)
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	if !ok || claims == nil {
		response.Unauthorized(c, response.MsgNotAuthenticated)
		return nil, false
	}
	return claims, true
}
