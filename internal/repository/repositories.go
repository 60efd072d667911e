package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"incubator_messaging/pkg/logger"
)

type Repositories struct {
	User      UserRepository
	Thread    ThreadRepository
	Message   MessageRepository
	Receipt   ReceiptRepository
	Typing    TypingRepository
	RateLimit RateLimitRepository
	Audit     AuditRepository
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		User:      NewUserRepository(db, log),
		Thread:    NewThreadRepository(db, log),
		Message:   NewMessageRepository(db, log),
		Receipt:   NewReceiptRepository(db, log),
		Typing:    NewTypingRepository(db, log),
		RateLimit: NewRateLimitRepository(redis, log),
		Audit:     NewAuditRepository(db, log),
	}
}
