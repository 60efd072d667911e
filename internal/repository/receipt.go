package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"incubator_messaging/internal/domain"
	"incubator_messaging/pkg/logger"
)

type ReceiptRepository interface {
	Upsert(ctx context.Context, receipt *domain.ReadReceipt) error
	ListRecent(ctx context.Context, threadID, excludeUserID uuid.UUID, since time.Time) ([]*domain.ReadReceipt, error)
}

type receiptRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewReceiptRepository(db *pgxpool.Pool, log logger.Logger) ReceiptRepository {
	return &receiptRepository{db: db, log: log}
}

func (r *receiptRepository) Upsert(ctx context.Context, receipt *domain.ReadReceipt) error {
	query := `
		INSERT INTO read_receipts (thread_id, user_id, message_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (thread_id, user_id) DO UPDATE
		SET message_id = EXCLUDED.message_id,
		    updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		receipt.ThreadID, receipt.UserID, receipt.MessageID,
	).Scan(&receipt.UpdatedAt)
	if err != nil {
		r.log.Error("Failed to upsert read receipt", "error", err)
		return err
	}

	return nil
}

func (r *receiptRepository) ListRecent(ctx context.Context, threadID, excludeUserID uuid.UUID, since time.Time) ([]*domain.ReadReceipt, error) {
	query := `
		SELECT thread_id, user_id, message_id, updated_at
		FROM read_receipts
		WHERE thread_id = $1 AND user_id <> $2 AND updated_at >= $3
		ORDER BY updated_at ASC
	`

	rows, err := r.db.Query(ctx, query, threadID, excludeUserID, since)
	if err != nil {
		r.log.Error("Failed to list read receipts", "error", err)
		return nil, err
	}
	defer rows.Close()

	var receipts []*domain.ReadReceipt
	for rows.Next() {
		receipt := &domain.ReadReceipt{}
		err := rows.Scan(&receipt.ThreadID, &receipt.UserID, &receipt.MessageID, &receipt.UpdatedAt)
		if err != nil {
			r.log.Error("Failed to scan read receipt", "error", err)
			return nil, err
		}
		receipts = append(receipts, receipt)
	}

	return receipts, rows.Err()
}
