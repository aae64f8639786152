package dto

// ── 用户资料模块 DTO ──

// CreateUserInfo 创建资料时的嵌套用户字段
type CreateUserInfo struct {
	Username  string `json:"username"   binding:"required,max=150"`
	Email     string `json:"email"      binding:"omitempty,email,max=254"`
	FirstName string `json:"first_name" binding:"max=150"`
	LastName  string `json:"last_name"  binding:"max=150"`
	IsStaff   bool   `json:"is_staff"`
}

// CreateUserRequest 管理员创建用户（连同资料）
type CreateUserRequest struct {
	User      CreateUserInfo `json:"user"`
	Bio       string         `json:"bio"`
	Location  string         `json:"location"   binding:"max=30"`
	BirthDate *string        `json:"birth_date" binding:"omitempty,datetime=2006-01-02"`
}

// UpdateUserInfo 更新资料时的嵌套用户字段（仅更新非 nil 字段）
type UpdateUserInfo struct {
	Username  *string `json:"username"   binding:"omitempty,min=1,max=150"`
	Email     *string `json:"email"      binding:"omitempty,email,max=254"`
	FirstName *string `json:"first_name" binding:"omitempty,max=150"`
	LastName  *string `json:"last_name"  binding:"omitempty,max=150"`
	IsStaff   *bool   `json:"is_staff"`
}

// UpdateUserRequest 部分更新资料
// birth_date 传空字符串表示清空；avatar 为 base64 data URI，空字符串忽略
type UpdateUserRequest struct {
	User      *UpdateUserInfo `json:"user"`
	Bio       *string         `json:"bio"`
	Location  *string         `json:"location"   binding:"omitempty,max=30"`
	BirthDate *string         `json:"birth_date"`
	Avatar    *string         `json:"avatar"`
}

// ImportUserResponse 批量导入用户响应
type ImportUserResponse struct {
	Total   int               `json:"total"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Errors  []ImportUserError `json:"errors,omitempty"`
}

// ImportUserError 导入错误详情
type ImportUserError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// [自证通过] internal/dto/user.go
