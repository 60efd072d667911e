package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"incubator_messaging/internal/config"
	"incubator_messaging/internal/domain"
	"incubator_messaging/internal/service"
	apperrors "incubator_messaging/pkg/errors"
	"incubator_messaging/pkg/logger"
)

// streamMaxFailures ограничивает подряд идущие неудачные циклы опроса:
// бесконечно деградировать молча стрим не должен.
const streamMaxFailures = 3

type StreamHandler struct {
	messagingService service.MessagingService
	activityService  service.ActivityService
	cfg              config.MessagingConfig
	log              logger.Logger
}

func NewStreamHandler(
	messagingService service.MessagingService,
	activityService service.ActivityService,
	cfg config.MessagingConfig,
	log logger.Logger,
) *StreamHandler {
	return &StreamHandler{
		messagingService: messagingService,
		activityService:  activityService,
		cfg:              cfg,
		log:              log,
	}
}

// Events держит длинный text/event-stream по одному треду. Каждое
// message-событие несет курсор возобновления (id сообщения), так что
// переподключение с последним курсором не теряет и не дублирует сообщения.
func (h *StreamHandler) Events(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.NewValidationError("id", "invalid thread id"))
		return
	}

	cursor, err := parseCursor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	// Все проверки доступа — до открытия стрима.
	if err := h.messagingService.AuthorizeStream(c.Request.Context(), user, threadID); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	ctx := c.Request.Context()
	watermark := int64(0)

	if cursor != nil {
		watermark = *cursor
	} else {
		// Без курсора — priming burst: последние N сообщений, старые первыми.
		recent, err := h.activityService.RecentMessages(ctx, threadID, h.cfg.PrimingBacklog)
		if err != nil {
			h.log.Error("Failed to prime event stream", "thread_id", threadID, "error", err)
			return
		}
		for _, message := range recent {
			h.writeMessageFrame(c, message)
			watermark = message.ID
		}
		c.Writer.Flush()
	}

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	cycle := 0
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cycle++
		emitted, err := h.pollOnce(c, threadID, user.ID, cycle, &watermark)
		if err != nil {
			failures++
			h.log.Warn("Event stream poll cycle failed", "thread_id", threadID, "failures", failures, "error", err)
			if failures >= streamMaxFailures {
				return
			}
			continue
		}
		failures = 0
		if emitted == pollThreadGone {
			return
		}
	}
}

type pollResult int

const (
	pollIdle pollResult = iota
	pollEmitted
	pollThreadGone
)

func (h *StreamHandler) pollOnce(c *gin.Context, threadID, callerID uuid.UUID, cycle int, watermark *int64) (pollResult, error) {
	ctx := c.Request.Context()
	result := pollIdle

	messages, err := h.activityService.MessagesAfter(ctx, threadID, *watermark)
	if err != nil {
		return pollIdle, err
	}
	for _, message := range messages {
		h.writeMessageFrame(c, message)
		*watermark = message.ID
		result = pollEmitted
	}

	typists, err := h.activityService.ActiveTypists(ctx, threadID, callerID, h.cfg.TypingStaleness)
	if err != nil {
		return pollIdle, err
	}
	if len(typists) > 0 {
		h.writeEventFrame(c, "typing", gin.H{"thread_id": threadID, "user_ids": typists})
		result = pollEmitted
	}

	if cycle%h.cfg.ReceiptEveryNCycles == 0 {
		// Заодно проверяем, что тред еще существует: удаление из-под стрима
		// должно освободить цикл опроса.
		exists, err := h.activityService.ThreadExists(ctx, threadID)
		if err != nil {
			return pollIdle, err
		}
		if !exists {
			return pollThreadGone, nil
		}

		receipts, err := h.activityService.RecentReceipts(ctx, threadID, callerID, h.cfg.ReceiptWindow)
		if err != nil {
			return pollIdle, err
		}
		if len(receipts) > 0 {
			h.writeEventFrame(c, "read_receipt", gin.H{"thread_id": threadID, "receipts": receipts})
			result = pollEmitted
		}
	}

	if len(messages) == 0 && cycle%h.cfg.HeartbeatEveryNCycles == 0 {
		// Комментарий-heartbeat удерживает соединение живым через прокси.
		fmt.Fprint(c.Writer, ": hb\n\n")
		result = pollEmitted
	}

	if result == pollEmitted {
		c.Writer.Flush()
	}

	return result, nil
}

func (h *StreamHandler) writeMessageFrame(c *gin.Context, message *domain.Message) {
	data, _ := json.Marshal(message)
	fmt.Fprintf(c.Writer, "id: message:%d\nevent: message\ndata: %s\n\n", message.ID, data)
}

func (h *StreamHandler) writeEventFrame(c *gin.Context, event string, payload gin.H) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
}

// parseCursor принимает курсор из заголовка Last-Event-ID (в форме
// "message:<id>" либо голого id) или из query-параметра cursor.
func parseCursor(c *gin.Context) (*int64, error) {
	raw := c.GetHeader("Last-Event-ID")
	if raw == "" {
		raw = c.Query("cursor")
	}
	if raw == "" {
		return nil, nil
	}

	raw = strings.TrimPrefix(raw, "message:")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return nil, apperrors.NewValidationError("cursor", "malformed cursor")
	}

	return &id, nil
}
