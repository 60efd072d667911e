package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"incubator_messaging/internal/domain"
	"incubator_messaging/internal/repository"
	"incubator_messaging/pkg/logger"
)

// AuditService is best-effort: a failed audit write warns and never fails
// the operation that produced it.
type AuditService interface {
	Record(ctx context.Context, actor *domain.User, eventType string, threadID uuid.UUID, payload map[string]interface{})
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{auditRepo: auditRepo, log: log}
}

func (s *auditService) Record(ctx context.Context, actor *domain.User, eventType string, threadID uuid.UUID, payload map[string]interface{}) {
	actorID := actor.ID
	tid := threadID
	entry := &domain.AuditLog{
		EventTime:   time.Now(),
		ActorUserID: &actorID,
		ActorRole:   actor.Role,
		ThreadID:    &tid,
		EventType:   eventType,
		Payload:     payload,
	}

	if err := s.auditRepo.CreateLog(ctx, entry); err != nil {
		s.log.Warn("Failed to write audit log", "event_type", eventType, "error", err)
	}
}
