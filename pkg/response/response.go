package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Detail 错误/提示类响应结构，所有非结构化响应统一使用 detail 字段
type Detail struct {
	Detail string `json:"detail"`
}

// 常用提示文案（对外英文，保持与前端约定一致）
const (
	MsgNotAuthenticated = "Authentication credentials were not provided."
	MsgTokenNotValid    = "Given token not valid for any token type"
	MsgUserNotFound     = "User not found"
	MsgPermissionDenied = "You do not have permission to perform this action"
	MsgInternalError    = "Internal server error"
	MsgInvalidRequest   = "Invalid request body"
	MsgBodyTooLarge     = "Request body too large"
	MsgThrottled        = "Request was throttled. Please try again later."
)

// ── 成功响应 ──

// OK 200 成功响应，data 原样序列化
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created 201 创建成功
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent 204 无内容
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Message 带 detail 文案的响应
func Message(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, Detail{Detail: message})
}

// ── 错误响应 ──

// Error 通用错误响应
func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, Detail{Detail: message})
}

// Fields 字段级校验错误，形如 {"user":{"username":["This field may not be blank."]}}
func Fields(c *gin.Context, fields map[string]interface{}) {
	c.JSON(http.StatusBadRequest, fields)
}

// ── 常见快捷方式 ──

// BadRequest 400
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized 401
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// Forbidden 403
func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, MsgPermissionDenied)
}

// NotFound 404
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// Conflict 409
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

// InternalError 500
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, MsgInternalError)
}

// [自证通过] pkg/response/response.go
