package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"incubator_messaging/internal/domain"
	apperrors "incubator_messaging/pkg/errors"
	"incubator_messaging/pkg/logger"
)

type MessageRepository interface {
	// Append вставляет сообщение и в той же транзакции двигает
	// last_message_at треда вперед.
	Append(ctx context.Context, threadID, senderID uuid.UUID, body string) (*domain.Message, error)
	ListByThread(ctx context.Context, threadID uuid.UUID) ([]*domain.Message, error)
	ListAfter(ctx context.Context, threadID uuid.UUID, afterID int64) ([]*domain.Message, error)
	Latest(ctx context.Context, threadID uuid.UUID, n int) ([]*domain.Message, error)
	GetByID(ctx context.Context, threadID uuid.UUID, messageID int64) (*domain.Message, error)
	UnreadCount(ctx context.Context, threadID, userID uuid.UUID) (int, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func (r *messageRepository) Append(ctx context.Context, threadID, senderID uuid.UUID, body string) (*domain.Message, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin transaction", "error", err)
		return nil, err
	}
	defer tx.Rollback(ctx)

	message := &domain.Message{ThreadID: threadID, SenderID: senderID, Body: body}
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (thread_id, sender_id, body, created_at) VALUES ($1, $2, $3, now()) RETURNING id, created_at`,
		threadID, senderID, body,
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		r.log.Error("Failed to insert message", "error", err)
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE threads SET last_message_at = $2 WHERE id = $1 AND last_message_at < $2`,
		threadID, message.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to bump last_message_at", "error", err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.log.Error("Failed to commit message append", "error", err)
		return nil, err
	}

	return message, nil
}

func (r *messageRepository) ListByThread(ctx context.Context, threadID uuid.UUID) ([]*domain.Message, error) {
	query := `
		SELECT id, thread_id, sender_id, body, created_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY id DESC
	`
	return r.queryMessages(ctx, query, threadID)
}

func (r *messageRepository) ListAfter(ctx context.Context, threadID uuid.UUID, afterID int64) ([]*domain.Message, error) {
	query := `
		SELECT id, thread_id, sender_id, body, created_at
		FROM messages
		WHERE thread_id = $1 AND id > $2
		ORDER BY id ASC
	`
	return r.queryMessages(ctx, query, threadID, afterID)
}

func (r *messageRepository) Latest(ctx context.Context, threadID uuid.UUID, n int) ([]*domain.Message, error) {
	// Последние n сообщений, но в возрастающем порядке — так их удобно
	// отдавать как priming burst.
	query := `
		SELECT id, thread_id, sender_id, body, created_at
		FROM (
			SELECT id, thread_id, sender_id, body, created_at
			FROM messages
			WHERE thread_id = $1
			ORDER BY id DESC
			LIMIT $2
		) latest
		ORDER BY id ASC
	`
	return r.queryMessages(ctx, query, threadID, n)
}

func (r *messageRepository) GetByID(ctx context.Context, threadID uuid.UUID, messageID int64) (*domain.Message, error) {
	query := `
		SELECT id, thread_id, sender_id, body, created_at
		FROM messages
		WHERE thread_id = $1 AND id = $2
	`

	message := &domain.Message{}
	err := r.db.QueryRow(ctx, query, threadID, messageID).Scan(
		&message.ID, &message.ThreadID, &message.SenderID, &message.Body, &message.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get message", "error", err)
		return nil, err
	}

	return message, nil
}

func (r *messageRepository) UnreadCount(ctx context.Context, threadID, userID uuid.UUID) (int, error) {
	query := `
		SELECT count(*)
		FROM messages m
		WHERE m.thread_id = $1
		  AND m.sender_id <> $2
		  AND m.id > COALESCE(
			(SELECT message_id FROM read_receipts WHERE thread_id = $1 AND user_id = $2), 0)
	`

	var count int
	if err := r.db.QueryRow(ctx, query, threadID, userID).Scan(&count); err != nil {
		r.log.Error("Failed to count unread messages", "error", err)
		return 0, err
	}

	return count, nil
}

func (r *messageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to query messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		message := &domain.Message{}
		err := rows.Scan(&message.ID, &message.ThreadID, &message.SenderID, &message.Body, &message.CreatedAt)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}
