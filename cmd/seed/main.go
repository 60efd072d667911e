package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"incubator_messaging/internal/config"
	"incubator_messaging/internal/domain"
	"incubator_messaging/internal/repository"
	"incubator_messaging/pkg/jwt"
	"incubator_messaging/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Засеивает демо-пользователей всех ролей и печатает их access-токены,
// чтобы можно было сразу ходить в API руками.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)

	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	userRepo := repository.NewUserRepository(dbPool, appLogger)

	seeds := []struct {
		email       string
		displayName string
		role        string
	}{
		{"admin@incubator.local", "Platform Admin", domain.RoleAdmin},
		{"founder@incubator.local", "Demo Founder", domain.RoleFounder},
		{"investor@incubator.local", "Demo Investor", domain.RoleInvestor},
		{"visitor@incubator.local", "Plain Visitor", domain.RoleUser},
	}

	ctx := context.Background()
	for _, seed := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		if err != nil {
			appLogger.Fatal("Failed to hash password", "error", err)
		}

		user := &domain.User{
			ID:           uuid.New(),
			Email:        seed.email,
			PasswordHash: string(hash),
			DisplayName:  seed.displayName,
			Role:         seed.role,
			IsActive:     true,
			CreatedAt:    time.Now(),
		}

		if err := userRepo.Upsert(ctx, user); err != nil {
			appLogger.Fatal("Failed to seed user", "email", seed.email, "error", err)
		}

		token, err := jwt.GenerateAccessToken(user.ID, user.Email, user.Role, cfg.JWT.AccessSecret, cfg.JWT.AccessTTL)
		if err != nil {
			appLogger.Fatal("Failed to generate token", "email", seed.email, "error", err)
		}

		fmt.Printf("%s (%s)\n  id:    %s\n  token: %s\n\n", seed.email, seed.role, user.ID, token)
	}

	appLogger.Info("Seed complete", "users", len(seeds))
}
