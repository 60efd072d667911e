package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"incubator_messaging/internal/domain"
	"incubator_messaging/pkg/logger"
)

type TypingRepository interface {
	Upsert(ctx context.Context, indicator *domain.TypingIndicator) error
	ListActive(ctx context.Context, threadID, excludeUserID uuid.UUID, since time.Time) ([]*domain.TypingIndicator, error)
}

type typingRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewTypingRepository(db *pgxpool.Pool, log logger.Logger) TypingRepository {
	return &typingRepository{db: db, log: log}
}

func (r *typingRepository) Upsert(ctx context.Context, indicator *domain.TypingIndicator) error {
	query := `
		INSERT INTO typing_indicators (thread_id, user_id, is_typing, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (thread_id, user_id) DO UPDATE
		SET is_typing  = EXCLUDED.is_typing,
		    updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		indicator.ThreadID, indicator.UserID, indicator.IsTyping,
	).Scan(&indicator.UpdatedAt)
	if err != nil {
		r.log.Error("Failed to upsert typing indicator", "error", err)
		return err
	}

	return nil
}

func (r *typingRepository) ListActive(ctx context.Context, threadID, excludeUserID uuid.UUID, since time.Time) ([]*domain.TypingIndicator, error) {
	// Строки старше окна устаревания игнорируются даже при is_typing=true:
	// явного "stop typing" никто не гарантирует.
	query := `
		SELECT thread_id, user_id, is_typing, updated_at
		FROM typing_indicators
		WHERE thread_id = $1 AND user_id <> $2 AND is_typing AND updated_at >= $3
		ORDER BY user_id
	`

	rows, err := r.db.Query(ctx, query, threadID, excludeUserID, since)
	if err != nil {
		r.log.Error("Failed to list typing indicators", "error", err)
		return nil, err
	}
	defer rows.Close()

	var indicators []*domain.TypingIndicator
	for rows.Next() {
		indicator := &domain.TypingIndicator{}
		err := rows.Scan(&indicator.ThreadID, &indicator.UserID, &indicator.IsTyping, &indicator.UpdatedAt)
		if err != nil {
			r.log.Error("Failed to scan typing indicator", "error", err)
			return nil, err
		}
		indicators = append(indicators, indicator)
	}

	return indicators, rows.Err()
}
