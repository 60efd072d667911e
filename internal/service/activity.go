package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"incubator_messaging/internal/domain"
	"incubator_messaging/internal/repository"
	"incubator_messaging/pkg/logger"
)

// ActivityService is the pull projection of thread activity: the polling
// stream reads "what changed" through it instead of duplicating repository
// queries in the handler.
type ActivityService interface {
	MessagesAfter(ctx context.Context, threadID uuid.UUID, afterID int64) ([]*domain.Message, error)
	RecentMessages(ctx context.Context, threadID uuid.UUID, n int) ([]*domain.Message, error)
	ActiveTypists(ctx context.Context, threadID, excludeUserID uuid.UUID, staleness time.Duration) ([]uuid.UUID, error)
	RecentReceipts(ctx context.Context, threadID, excludeUserID uuid.UUID, window time.Duration) ([]*domain.ReadReceipt, error)
	ThreadExists(ctx context.Context, threadID uuid.UUID) (bool, error)
}

type activityService struct {
	threadRepo  repository.ThreadRepository
	messageRepo repository.MessageRepository
	receiptRepo repository.ReceiptRepository
	typingRepo  repository.TypingRepository
	log         logger.Logger
}

func NewActivityService(repos *repository.Repositories, log logger.Logger) ActivityService {
	return &activityService{
		threadRepo:  repos.Thread,
		messageRepo: repos.Message,
		receiptRepo: repos.Receipt,
		typingRepo:  repos.Typing,
		log:         log,
	}
}

func (s *activityService) MessagesAfter(ctx context.Context, threadID uuid.UUID, afterID int64) ([]*domain.Message, error) {
	return s.messageRepo.ListAfter(ctx, threadID, afterID)
}

func (s *activityService) RecentMessages(ctx context.Context, threadID uuid.UUID, n int) ([]*domain.Message, error) {
	return s.messageRepo.Latest(ctx, threadID, n)
}

func (s *activityService) ActiveTypists(ctx context.Context, threadID, excludeUserID uuid.UUID, staleness time.Duration) ([]uuid.UUID, error) {
	indicators, err := s.typingRepo.ListActive(ctx, threadID, excludeUserID, time.Now().Add(-staleness))
	if err != nil {
		return nil, err
	}

	userIDs := make([]uuid.UUID, 0, len(indicators))
	for _, indicator := range indicators {
		userIDs = append(userIDs, indicator.UserID)
	}
	return userIDs, nil
}

func (s *activityService) RecentReceipts(ctx context.Context, threadID, excludeUserID uuid.UUID, window time.Duration) ([]*domain.ReadReceipt, error) {
	return s.receiptRepo.ListRecent(ctx, threadID, excludeUserID, time.Now().Add(-window))
}

func (s *activityService) ThreadExists(ctx context.Context, threadID uuid.UUID) (bool, error) {
	return s.threadRepo.Exists(ctx, threadID)
}
