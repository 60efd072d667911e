package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"incubator_messaging/internal/config"
	"incubator_messaging/internal/domain"
	"incubator_messaging/internal/hub"
	"incubator_messaging/internal/middleware"
	"incubator_messaging/internal/service"
	"incubator_messaging/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Messaging *MessagingHandler
	Stream    *StreamHandler
	WebSocket *WebSocketHandler
}

func NewHandlers(services *service.Services, eventHub *hub.Hub, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(),
		Messaging: NewMessagingHandler(services.Messaging, log),
		Stream:    NewStreamHandler(services.Messaging, services.Activity, cfg.Messaging, log),
		WebSocket: NewWebSocketHandler(services.Auth, eventHub, log),
	}
}

// respondError складывает ошибку в контекст: middleware ErrorHandler
// превращает ее в структурированный JSON-ответ.
func respondError(c *gin.Context, err error) {
	c.Error(err)
	c.Abort()
}

func currentUser(c *gin.Context) (*domain.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "kind": "unauthenticated"})
	}
	return user, ok
}
