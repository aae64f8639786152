package dto

// ── 认证模块 DTO ──

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest 登出请求，refresh_token 可选，提供时一并吊销
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username  string `json:"username"   binding:"required,max=150"`
	Email     string `json:"email"      binding:"omitempty,email,max=254"`
	FirstName string `json:"first_name" binding:"max=150"`
	LastName  string `json:"last_name"  binding:"max=150"`
	Password  string `json:"password"   binding:"required,min=8,max=128"`
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=128"`
}

// ForgotPasswordRequest 找回密码请求
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SetPasswordRequest 通过重置令牌设置新密码
type SetPasswordRequest struct {
	Email       string `json:"email"        binding:"required,email"`
	Token       string `json:"token"        binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=128"`
}

// [自证通过] internal/dto/auth.go
