package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"incubator_messaging/internal/config"
	"incubator_messaging/internal/domain"
	"incubator_messaging/internal/repository"
	apperrors "incubator_messaging/pkg/errors"
	"incubator_messaging/pkg/logger"
)

type MessagingService interface {
	ListThreads(ctx context.Context, caller *domain.User) ([]*domain.ThreadSummary, error)
	CreateOrAppend(ctx context.Context, caller *domain.User, participantIDs []uuid.UUID, body string) (*domain.Thread, *domain.Message, bool, error)
	GetThread(ctx context.Context, caller *domain.User, threadID uuid.UUID) (*domain.ThreadDetail, error)
	DeleteThread(ctx context.Context, caller *domain.User, threadID uuid.UUID) error
	PostMessage(ctx context.Context, caller *domain.User, threadID uuid.UUID, body string) (*domain.Message, error)
	MarkRead(ctx context.Context, caller *domain.User, threadID uuid.UUID, messageID *int64) (*domain.ReadReceipt, error)
	SetTyping(ctx context.Context, caller *domain.User, threadID uuid.UUID, isTyping bool) error
	// AuthorizeStream выполняет те же проверки, что и остальные операции,
	// до открытия долгоживущего стрима.
	AuthorizeStream(ctx context.Context, caller *domain.User, threadID uuid.UUID) error
}

type messagingService struct {
	threadRepo  repository.ThreadRepository
	messageRepo repository.MessageRepository
	receiptRepo repository.ReceiptRepository
	typingRepo  repository.TypingRepository
	userRepo    repository.UserRepository
	limiter     repository.RateLimitRepository
	publisher   EventPublisher
	audit       AuditService
	cfg         config.MessagingConfig
	log         logger.Logger
}

func NewMessagingService(
	repos *repository.Repositories,
	cfg config.MessagingConfig,
	publisher EventPublisher,
	audit AuditService,
	log logger.Logger,
) MessagingService {
	return &messagingService{
		threadRepo:  repos.Thread,
		messageRepo: repos.Message,
		receiptRepo: repos.Receipt,
		typingRepo:  repos.Typing,
		userRepo:    repos.User,
		limiter:     repos.RateLimit,
		publisher:   publisher,
		audit:       audit,
		cfg:         cfg,
		log:         log,
	}
}

func (s *messagingService) ListThreads(ctx context.Context, caller *domain.User) ([]*domain.ThreadSummary, error) {
	if !caller.CanMessage() {
		return nil, apperrors.ErrForbidden
	}

	threads, err := s.threadRepo.ListByUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*domain.ThreadSummary, 0, len(threads))
	for _, thread := range threads {
		summary := &domain.ThreadSummary{Thread: thread}

		latest, err := s.messageRepo.Latest(ctx, thread.ID, 1)
		if err != nil {
			return nil, err
		}
		if len(latest) > 0 {
			summary.LastMessage = latest[0]
		}

		unread, err := s.messageRepo.UnreadCount(ctx, thread.ID, caller.ID)
		if err != nil {
			return nil, err
		}
		summary.UnreadCount = unread

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (s *messagingService) CreateOrAppend(ctx context.Context, caller *domain.User, participantIDs []uuid.UUID, body string) (*domain.Thread, *domain.Message, bool, error) {
	if !caller.CanMessage() {
		return nil, nil, false, apperrors.ErrForbidden
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil, false, apperrors.NewValidationError("body", "message body must not be empty")
	}
	if len(body) > s.cfg.MaxBodyLength {
		return nil, nil, false, apperrors.NewValidationError("body", "message body is too long")
	}

	// Вызывающий всегда входит в набор участников, даже если не указан.
	participants := normalizeParticipants(caller.ID, participantIDs)

	if err := s.validateParticipants(ctx, participants); err != nil {
		return nil, nil, false, err
	}

	thread, message, created, err := s.threadRepo.CreateOrAppend(ctx, participants, caller.ID, body)
	if err != nil {
		return nil, nil, false, err
	}

	if created {
		s.audit.Record(ctx, caller, domain.EventTypeThreadCreatedAudit, thread.ID,
			map[string]interface{}{"participants": len(participants)})
		s.broadcast(thread, domain.NewThreadCreatedEvent(thread))
	}
	s.audit.Record(ctx, caller, domain.EventTypeMessagePosted, thread.ID,
		map[string]interface{}{"message_id": message.ID})
	s.broadcast(thread, domain.NewMessageReceivedEvent(message))
	s.broadcast(thread, domain.NewThreadUpdatedEvent(thread, message))

	return thread, message, created, nil
}

func (s *messagingService) GetThread(ctx context.Context, caller *domain.User, threadID uuid.UUID) (*domain.ThreadDetail, error) {
	if err := s.requireParticipant(ctx, caller, threadID); err != nil {
		return nil, err
	}

	thread, err := s.threadRepo.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.ListByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	unread, err := s.messageRepo.UnreadCount(ctx, threadID, caller.ID)
	if err != nil {
		return nil, err
	}

	return &domain.ThreadDetail{
		Thread:      thread,
		Messages:    messages,
		UnreadCount: unread,
	}, nil
}

func (s *messagingService) DeleteThread(ctx context.Context, caller *domain.User, threadID uuid.UUID) error {
	if err := s.requireParticipant(ctx, caller, threadID); err != nil {
		return err
	}

	if err := s.threadRepo.Delete(ctx, threadID); err != nil {
		return err
	}

	s.audit.Record(ctx, caller, domain.EventTypeThreadDeleted, threadID, nil)
	return nil
}

func (s *messagingService) PostMessage(ctx context.Context, caller *domain.User, threadID uuid.UUID, body string) (*domain.Message, error) {
	if err := s.requireParticipant(ctx, caller, threadID); err != nil {
		return nil, err
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("body", "message body must not be empty")
	}
	if len(body) > s.cfg.MaxBodyLength {
		return nil, apperrors.NewValidationError("body", "message body is too long")
	}

	key := rateLimitKey(threadID, caller.ID)
	allowed, err := s.limiter.Allow(ctx, key, s.cfg.RateLimitMax, s.cfg.RateLimitWindow)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperrors.ErrRateLimited
	}

	message, err := s.messageRepo.Append(ctx, threadID, caller.ID, body)
	if err != nil {
		return nil, err
	}

	thread, err := s.threadRepo.GetByID(ctx, threadID)
	if err != nil {
		// Сообщение уже записано; уведомления теряем, клиент догонит по REST.
		s.log.Warn("Failed to reload thread for fan-out", "thread_id", threadID, "error", err)
		return message, nil
	}

	s.audit.Record(ctx, caller, domain.EventTypeMessagePosted, threadID,
		map[string]interface{}{"message_id": message.ID})
	s.broadcast(thread, domain.NewMessageReceivedEvent(message))
	s.broadcast(thread, domain.NewThreadUpdatedEvent(thread, message))

	return message, nil
}

func (s *messagingService) MarkRead(ctx context.Context, caller *domain.User, threadID uuid.UUID, messageID *int64) (*domain.ReadReceipt, error) {
	if err := s.requireParticipant(ctx, caller, threadID); err != nil {
		return nil, err
	}

	var target *domain.Message
	if messageID != nil {
		message, err := s.messageRepo.GetByID(ctx, threadID, *messageID)
		if err != nil {
			return nil, err
		}
		target = message
	} else {
		latest, err := s.messageRepo.Latest(ctx, threadID, 1)
		if err != nil {
			return nil, err
		}
		if len(latest) == 0 {
			return nil, apperrors.ErrNotFound
		}
		target = latest[0]
	}

	receipt := &domain.ReadReceipt{
		ThreadID:  threadID,
		UserID:    caller.ID,
		MessageID: target.ID,
	}
	if err := s.receiptRepo.Upsert(ctx, receipt); err != nil {
		return nil, err
	}

	return receipt, nil
}

func (s *messagingService) SetTyping(ctx context.Context, caller *domain.User, threadID uuid.UUID, isTyping bool) error {
	if err := s.requireParticipant(ctx, caller, threadID); err != nil {
		return err
	}

	indicator := &domain.TypingIndicator{
		ThreadID: threadID,
		UserID:   caller.ID,
		IsTyping: isTyping,
	}
	return s.typingRepo.Upsert(ctx, indicator)
}

func (s *messagingService) AuthorizeStream(ctx context.Context, caller *domain.User, threadID uuid.UUID) error {
	return s.requireParticipant(ctx, caller, threadID)
}

// requireParticipant проверяет capability gate, затем участие. Для
// не-участника результат всегда Forbidden — существование треда не
// подтверждается и не опровергается.
func (s *messagingService) requireParticipant(ctx context.Context, caller *domain.User, threadID uuid.UUID) error {
	if !caller.CanMessage() {
		return apperrors.ErrForbidden
	}

	isParticipant, err := s.threadRepo.IsParticipant(ctx, threadID, caller.ID)
	if err != nil {
		return err
	}
	if !isParticipant {
		return apperrors.ErrForbidden
	}

	return nil
}

func (s *messagingService) validateParticipants(ctx context.Context, ids []uuid.UUID) error {
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}

	known := make(map[uuid.UUID]struct{}, len(users))
	for _, u := range users {
		known[u.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return apperrors.NewValidationError("participant_ids", "unknown participant: "+id.String())
		}
	}

	return nil
}

func (s *messagingService) broadcast(thread *domain.Thread, payload []byte) {
	for _, userID := range thread.ParticipantIDs {
		s.publisher.Publish(userID, payload)
	}
}

func normalizeParticipants(callerID uuid.UUID, ids []uuid.UUID) []uuid.UUID {
	result := make([]uuid.UUID, 0, len(ids)+1)
	seen := map[uuid.UUID]struct{}{callerID: {}}
	result = append(result, callerID)
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func rateLimitKey(threadID, userID uuid.UUID) string {
	return fmt.Sprintf("msg_rate:%s:%s", threadID, userID)
}
