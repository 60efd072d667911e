package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"incubator_messaging/internal/domain"
	apperrors "incubator_messaging/pkg/errors"
	"incubator_messaging/pkg/logger"
)

type ThreadRepository interface {
	// CreateOrAppend находит существующий тред с идентичным набором
	// участников и дописывает в него сообщение, либо атомарно создает
	// новый тред с первым сообщением. Возвращает created=true при создании.
	CreateOrAppend(ctx context.Context, participantIDs []uuid.UUID, senderID uuid.UUID, body string) (*domain.Thread, *domain.Message, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Thread, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Thread, error)
	IsParticipant(ctx context.Context, threadID, userID uuid.UUID) (bool, error)
	Exists(ctx context.Context, threadID uuid.UUID) (bool, error)
	Delete(ctx context.Context, threadID uuid.UUID) error
}

type threadRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewThreadRepository(db *pgxpool.Pool, log logger.Logger) ThreadRepository {
	return &threadRepository{db: db, log: log}
}

func (r *threadRepository) CreateOrAppend(ctx context.Context, participantIDs []uuid.UUID, senderID uuid.UUID, body string) (*domain.Thread, *domain.Message, bool, error) {
	key := domain.ParticipantKey(participantIDs)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin transaction", "error", err)
		return nil, nil, false, err
	}
	defer tx.Rollback(ctx)

	// Сериализуем конкурентные create-or-append с одинаковым набором
	// участников, иначе два вызова могут создать тред-дубликат.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		r.log.Error("Failed to take advisory lock", "error", err)
		return nil, nil, false, err
	}

	thread := &domain.Thread{}
	created := false
	err = tx.QueryRow(ctx,
		`SELECT id, created_at, last_message_at FROM threads WHERE participant_key = $1`,
		key,
	).Scan(&thread.ID, &thread.CreatedAt, &thread.LastMessageAt)
	if errors.Is(err, pgx.ErrNoRows) {
		created = true
		thread.ID = uuid.New()
		now := time.Now()
		thread.CreatedAt = now
		thread.LastMessageAt = now

		_, err = tx.Exec(ctx,
			`INSERT INTO threads (id, participant_key, created_at, last_message_at) VALUES ($1, $2, $3, $4)`,
			thread.ID, key, thread.CreatedAt, thread.LastMessageAt,
		)
		if err != nil {
			r.log.Error("Failed to insert thread", "error", err)
			return nil, nil, false, err
		}

		for _, pid := range participantIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO thread_participants (thread_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				thread.ID, pid,
			); err != nil {
				r.log.Error("Failed to insert participant", "error", err)
				return nil, nil, false, err
			}
		}
	} else if err != nil {
		r.log.Error("Failed to look up thread by participant set", "error", err)
		return nil, nil, false, err
	}

	message := &domain.Message{ThreadID: thread.ID, SenderID: senderID, Body: body}
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (thread_id, sender_id, body, created_at) VALUES ($1, $2, $3, now()) RETURNING id, created_at`,
		thread.ID, senderID, body,
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		r.log.Error("Failed to insert message", "error", err)
		return nil, nil, false, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE threads SET last_message_at = $2 WHERE id = $1 AND last_message_at < $2`,
		thread.ID, message.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to bump last_message_at", "error", err)
		return nil, nil, false, err
	}
	if message.CreatedAt.After(thread.LastMessageAt) {
		thread.LastMessageAt = message.CreatedAt
	}

	if err := tx.Commit(ctx); err != nil {
		r.log.Error("Failed to commit create-or-append", "error", err)
		return nil, nil, false, err
	}

	thread.ParticipantIDs = participantIDs
	return thread, message, created, nil
}

func (r *threadRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Thread, error) {
	thread := &domain.Thread{}
	err := r.db.QueryRow(ctx,
		`SELECT id, created_at, last_message_at FROM threads WHERE id = $1`,
		id,
	).Scan(&thread.ID, &thread.CreatedAt, &thread.LastMessageAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get thread", "error", err)
		return nil, err
	}

	participants, err := r.loadParticipants(ctx, []uuid.UUID{thread.ID})
	if err != nil {
		return nil, err
	}
	thread.ParticipantIDs = participants[thread.ID]

	return thread, nil
}

func (r *threadRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Thread, error) {
	query := `
		SELECT t.id, t.created_at, t.last_message_at
		FROM threads t
		JOIN thread_participants p ON p.thread_id = t.id
		WHERE p.user_id = $1
		ORDER BY t.last_message_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list threads", "error", err)
		return nil, err
	}
	defer rows.Close()

	var threads []*domain.Thread
	var threadIDs []uuid.UUID
	for rows.Next() {
		thread := &domain.Thread{}
		if err := rows.Scan(&thread.ID, &thread.CreatedAt, &thread.LastMessageAt); err != nil {
			r.log.Error("Failed to scan thread", "error", err)
			return nil, err
		}
		threads = append(threads, thread)
		threadIDs = append(threadIDs, thread.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	participants, err := r.loadParticipants(ctx, threadIDs)
	if err != nil {
		return nil, err
	}
	for _, thread := range threads {
		thread.ParticipantIDs = participants[thread.ID]
	}

	return threads, nil
}

func (r *threadRepository) IsParticipant(ctx context.Context, threadID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM thread_participants WHERE thread_id = $1 AND user_id = $2)`,
		threadID, userID,
	).Scan(&exists)
	if err != nil {
		r.log.Error("Failed to check participation", "error", err)
		return false, err
	}
	return exists, nil
}

func (r *threadRepository) Exists(ctx context.Context, threadID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM threads WHERE id = $1)`,
		threadID,
	).Scan(&exists)
	if err != nil {
		r.log.Error("Failed to check thread existence", "error", err)
		return false, err
	}
	return exists, nil
}

func (r *threadRepository) Delete(ctx context.Context, threadID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin transaction", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	var messageCount int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE thread_id = $1`,
		threadID,
	).Scan(&messageCount)
	if err != nil {
		r.log.Error("Failed to count messages", "error", err)
		return err
	}
	if messageCount > 0 {
		return apperrors.ErrConflict
	}

	// Участники, квитанции и typing-индикаторы уходят каскадом.
	tag, err := tx.Exec(ctx, `DELETE FROM threads WHERE id = $1`, threadID)
	if err != nil {
		r.log.Error("Failed to delete thread", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return tx.Commit(ctx)
}

func (r *threadRepository) loadParticipants(ctx context.Context, threadIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	result := make(map[uuid.UUID][]uuid.UUID, len(threadIDs))
	if len(threadIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT thread_id, user_id FROM thread_participants WHERE thread_id = ANY($1)`,
		uuidStrings(threadIDs),
	)
	if err != nil {
		r.log.Error("Failed to load participants", "error", err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var threadID, userID uuid.UUID
		if err := rows.Scan(&threadID, &userID); err != nil {
			r.log.Error("Failed to scan participant", "error", err)
			return nil, err
		}
		result[threadID] = append(result[threadID], userID)
	}

	return result, rows.Err()
}
