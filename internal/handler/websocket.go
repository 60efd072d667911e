package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"incubator_messaging/internal/hub"
	"incubator_messaging/internal/service"
	"incubator_messaging/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Происхождение проверяет CORS-слой REST-а; сокет доступен только по
	// валидному токену, поэтому origin здесь не фильтруем.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	authService service.AuthService
	eventHub    *hub.Hub
	log         logger.Logger
}

func NewWebSocketHandler(authService service.AuthService, eventHub *hub.Hub, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		authService: authService,
		eventHub:    eventHub,
		log:         log,
	}
}

// Connect поднимает долгоживущий сокет-канал уведомлений пользователя.
// Браузерный WebSocket не умеет кастомных заголовков, поэтому токен
// приходит query-параметром.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required", "kind": "unauthenticated"})
		return
	}

	user, err := h.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": "unauthenticated"})
		return
	}

	if !user.CanMessage() {
		c.JSON(http.StatusForbidden, gin.H{"error": "messaging is not available for this role", "kind": "forbidden"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Socket upgrade failed", "user_id", user.ID, "error", err)
		return
	}

	client := h.eventHub.NewClient(user.ID, conn)
	h.eventHub.Register(client)
	h.log.Info("Socket connected", "user_id", user.ID)

	go client.WritePump()
	go client.ReadPump()
}
