package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lokatani/scale-core/internal/middleware"
	"github.com/lokatani/scale-core/internal/models"
	"github.com/lokatani/scale-core/internal/pkg/apperrors"
	"github.com/lokatani/scale-core/internal/pkg/jwt"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service handles operator accounts and token verification. Only
// company addresses may register; accounts referenced by a valid token
// that do not exist yet are created lazily so externally provisioned
// identities keep working.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	emailDomain string
	now         func() time.Time
}

func NewService(db *gorm.DB, log *zap.Logger, emailDomain string) *Service {
	return &Service{db: db, log: log, emailDomain: emailDomain, now: time.Now}
}

func (s *Service) checkDomain(email string) error {
	if s.emailDomain == "" {
		return nil
	}
	if !strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(s.emailDomain)) {
		return apperrors.Newf(apperrors.KindValidation, "email must belong to %s", s.emailDomain)
	}
	return nil
}

func (s *Service) Register(ctx context.Context, dto RegisterDTO) (*models.UserModel, error) {
	email := strings.ToLower(strings.TrimSpace(dto.Email))
	if err := s.checkDomain(email); err != nil {
		return nil, err
	}

	var existing models.UserModel
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, apperrors.New(apperrors.KindValidation, "email is already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.KindInternal, "lookup user", err)
	}

	hash, salt, err := HashPassword(dto.Password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "hash password", err)
	}

	user := models.UserModel{
		Email:    email,
		Name:     dto.Name,
		Role:     models.RoleUser,
		Password: hash,
		Salt:     salt,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "create user", err)
	}
	s.log.Info("user registered", zap.String("user_id", user.ID), zap.String("email", email))
	return &user, nil
}

func (s *Service) Login(ctx context.Context, dto LoginDTO) (*models.UserModel, *TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(dto.Email))

	var user models.UserModel
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperrors.New(apperrors.KindAuth, "invalid email or password")
	}
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindInternal, "lookup user", err)
	}

	if !VerifyPassword(dto.Password, user.Password, user.Salt) {
		return nil, nil, apperrors.New(apperrors.KindAuth, "invalid email or password")
	}

	pair, err := s.issueTokens(&user)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	user.LastLoginTime = &now
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_time", now).Error; err != nil {
		s.log.Warn("stamp last login failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	return &user, pair, nil
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := jwt.Parse(refreshToken)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuth, "invalid refresh token", err)
	}
	if claims.TokenType != jwt.TypeRefresh {
		return nil, apperrors.New(apperrors.KindAuth, "token is not a refresh token")
	}

	var user models.UserModel
	if err := s.db.WithContext(ctx).First(&user, "id = ?", claims.UserID).Error; err != nil {
		return nil, apperrors.New(apperrors.KindAuth, "unknown user")
	}
	return s.issueTokens(&user)
}

func (s *Service) issueTokens(user *models.UserModel) (*TokenPair, error) {
	access, err := jwt.Sign(user.ID, user.Email, user.Role, jwt.TypeAccess, jwt.AccessTTL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "sign access token", err)
	}
	refresh, err := jwt.Sign(user.ID, user.Email, user.Role, jwt.TypeRefresh, jwt.RefreshTTL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "sign refresh token", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*models.UserModel, error) {
	var user models.UserModel
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "lookup user", err)
	}
	return &user, nil
}

// UpdateProfile changes the mutable profile fields. Email, role and
// identifiers are never updatable through this path.
func (s *Service) UpdateProfile(ctx context.Context, userID string, dto UpdateProfileDTO) (*models.UserModel, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if dto.Name == "" {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(user).Update("name", dto.Name).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "update profile", err)
	}
	user.Name = dto.Name
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID string, dto ChangePasswordDTO) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !VerifyPassword(dto.OldPassword, user.Password, user.Salt) {
		return apperrors.New(apperrors.KindAuth, "old password does not match")
	}
	hash, salt, err := HashPassword(dto.NewPassword)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "hash password", err)
	}
	updates := map[string]interface{}{"password": hash, "salt": salt}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "update password", err)
	}
	return nil
}

// Verify implements middleware.TokenVerifier. Tokens must be access
// tokens; a valid token naming a user that does not exist yet creates
// the account on the spot.
func (s *Service) Verify(ctx context.Context, token string) (*middleware.Identity, error) {
	if token == "" {
		return nil, apperrors.New(apperrors.KindAuth, "missing token")
	}
	claims, err := jwt.Parse(token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuth, "invalid token", err)
	}
	if claims.TokenType != "" && claims.TokenType != jwt.TypeAccess {
		return nil, apperrors.New(apperrors.KindAuth, "token is not an access token")
	}

	var user models.UserModel
	err = s.db.WithContext(ctx).First(&user, "id = ?", claims.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		role := models.RoleUser
		if claims.Role != "" {
			role = claims.Role
		}
		user = models.UserModel{
			Base:  models.Base{ID: claims.UserID},
			Email: claims.Email,
			Role:  role,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "provision user", err)
		}
		s.log.Info("user provisioned from token", zap.String("user_id", user.ID))
	} else if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "lookup user", err)
	}

	return &middleware.Identity{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}
