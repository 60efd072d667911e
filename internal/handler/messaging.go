package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"incubator_messaging/internal/service"
	apperrors "incubator_messaging/pkg/errors"
	"incubator_messaging/pkg/logger"
)

type MessagingHandler struct {
	messagingService service.MessagingService
	log              logger.Logger
}

func NewMessagingHandler(messagingService service.MessagingService, log logger.Logger) *MessagingHandler {
	return &MessagingHandler{
		messagingService: messagingService,
		log:              log,
	}
}

type CreateThreadRequest struct {
	ParticipantIDs []string `json:"participant_ids" binding:"required"`
	Body           string   `json:"body" binding:"required"`
}

type PostMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

type MarkReadRequest struct {
	MessageID *int64 `json:"message_id"`
}

type SetTypingRequest struct {
	IsTyping *bool `json:"is_typing" binding:"required"`
}

func (h *MessagingHandler) ListThreads(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	summaries, err := h.messagingService.ListThreads(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"threads": summaries})
}

func (h *MessagingHandler) CreateOrAppend(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("", err.Error()))
		return
	}

	participantIDs := make([]uuid.UUID, 0, len(req.ParticipantIDs))
	for _, raw := range req.ParticipantIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, apperrors.NewValidationError("participant_ids", "invalid participant id: "+raw))
			return
		}
		participantIDs = append(participantIDs, id)
	}

	thread, message, created, err := h.messagingService.CreateOrAppend(c.Request.Context(), user, participantIDs, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"thread":  thread,
		"message": message,
		"created": created,
	})
}

func (h *MessagingHandler) GetThread(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.NewValidationError("id", "invalid thread id"))
		return
	}

	detail, err := h.messagingService.GetThread(c.Request.Context(), user, threadID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (h *MessagingHandler) DeleteThread(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.NewValidationError("id", "invalid thread id"))
		return
	}

	if err := h.messagingService.DeleteThread(c.Request.Context(), user, threadID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MessagingHandler) PostMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.NewValidationError("id", "invalid thread id"))
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("body", "message body is required"))
		return
	}

	message, err := h.messagingService.PostMessage(c.Request.Context(), user, threadID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *MessagingHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.NewValidationError("id", "invalid thread id"))
		return
	}

	// Тело может отсутствовать — тогда квитанция ставится на последнее
	// сообщение треда. Chunked-запросы не несут Content-Length, поэтому
	// пустоту тела определяет сам разбор, а не заголовок.
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, apperrors.NewValidationError("", err.Error()))
		return
	}

	receipt, err := h.messagingService.MarkRead(c.Request.Context(), user, threadID, req.MessageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

func (h *MessagingHandler) SetTyping(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.NewValidationError("id", "invalid thread id"))
		return
	}

	var req SetTypingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsTyping == nil {
		respondError(c, apperrors.NewValidationError("is_typing", "is_typing is required"))
		return
	}

	if err := h.messagingService.SetTyping(c.Request.Context(), user, threadID, *req.IsTyping); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
