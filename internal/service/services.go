package service

import (
	"github.com/google/uuid"
	"incubator_messaging/internal/config"
	"incubator_messaging/internal/repository"
	"incubator_messaging/pkg/logger"
)

// EventPublisher is the push half of the live event channel. The hub
// implements it; the messaging service must never block on it.
type EventPublisher interface {
	Publish(userID uuid.UUID, payload []byte)
}

type Services struct {
	Auth      AuthService
	Messaging MessagingService
	Activity  ActivityService
	Audit     AuditService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, publisher EventPublisher, log logger.Logger) *Services {
	audit := NewAuditService(repos.Audit, log)
	return &Services{
		Auth:      NewAuthService(repos.User, cfg.JWT, log),
		Messaging: NewMessagingService(repos, cfg.Messaging, publisher, audit, log),
		Activity:  NewActivityService(repos, log),
		Audit:     audit,
	}
}
