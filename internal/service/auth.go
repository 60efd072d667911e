package service

import (
	"context"

	"incubator_messaging/internal/config"
	"incubator_messaging/internal/domain"
	"incubator_messaging/internal/repository"
	apperrors "incubator_messaging/pkg/errors"
	"incubator_messaging/pkg/jwt"
	"incubator_messaging/pkg/logger"
)

// AuthService is the identity gateway: it resolves an opaque bearer
// credential to a principal. Identity storage itself lives outside this
// service; only the users table is consulted, as a directory.
type AuthService interface {
	ValidateToken(ctx context.Context, tokenString string) (*domain.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	jwtCfg   config.JWTConfig
	log      logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.User, error) {
	claims, err := jwt.ValidateToken(tokenString, s.jwtCfg.AccessSecret)
	if err != nil {
		return nil, apperrors.ErrUnauthenticated
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.ErrUnauthenticated
	}

	if !user.IsActive {
		return nil, apperrors.ErrUnauthenticated
	}

	return user, nil
}
