package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incubator_messaging/internal/domain"
	"incubator_messaging/internal/middleware"
	apperrors "incubator_messaging/pkg/errors"
	"incubator_messaging/pkg/logger"
)

// stubMessaging routes each call to a configurable func.
type stubMessaging struct {
	fakeMessaging
	createOrAppend func(participantIDs []uuid.UUID, body string) (*domain.Thread, *domain.Message, bool, error)
	postMessage    func(threadID uuid.UUID, body string) (*domain.Message, error)
	deleteThread   func(threadID uuid.UUID) error
	markRead       func(threadID uuid.UUID, messageID *int64) (*domain.ReadReceipt, error)
}

func (s *stubMessaging) CreateOrAppend(_ context.Context, _ *domain.User, participantIDs []uuid.UUID, body string) (*domain.Thread, *domain.Message, bool, error) {
	return s.createOrAppend(participantIDs, body)
}

func (s *stubMessaging) PostMessage(_ context.Context, _ *domain.User, threadID uuid.UUID, body string) (*domain.Message, error) {
	return s.postMessage(threadID, body)
}

func (s *stubMessaging) DeleteThread(_ context.Context, _ *domain.User, threadID uuid.UUID) error {
	return s.deleteThread(threadID)
}

func (s *stubMessaging) MarkRead(_ context.Context, _ *domain.User, threadID uuid.UUID, messageID *int64) (*domain.ReadReceipt, error) {
	return s.markRead(threadID, messageID)
}

func newMessagingRouter(stub *stubMessaging) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewMessagingHandler(stub, logger.New("error"))

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.Use(func(c *gin.Context) {
		c.Set("user", &domain.User{ID: uuid.New(), Role: domain.RoleFounder, IsActive: true})
	})
	router.POST("/threads", h.CreateOrAppend)
	router.DELETE("/threads/:id", h.DeleteThread)
	router.POST("/threads/:id/messages", h.PostMessage)
	router.POST("/threads/:id/read", h.MarkRead)
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func TestCreateOrAppendStatusReflectsCreation(t *testing.T) {
	thread := &domain.Thread{ID: uuid.New(), LastMessageAt: time.Now()}
	message := &domain.Message{ID: 1, ThreadID: thread.ID, Body: "hi"}

	created := true
	stub := &stubMessaging{
		createOrAppend: func([]uuid.UUID, string) (*domain.Thread, *domain.Message, bool, error) {
			return thread, message, created, nil
		},
	}
	router := newMessagingRouter(stub)
	body := `{"participant_ids":["` + uuid.NewString() + `"],"body":"hi"}`

	w := doJSON(router, http.MethodPost, "/threads", body)
	assert.Equal(t, http.StatusCreated, w.Code)

	// Повторное обращение к существующему треду — 200.
	created = false
	w = doJSON(router, http.MethodPost, "/threads", body)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Created bool `json:"created"`
		Message struct {
			ID int64 `json:"id"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Created)
	assert.Equal(t, int64(1), resp.Message.ID)
}

func TestCreateOrAppendRejectsBadParticipantID(t *testing.T) {
	router := newMessagingRouter(&stubMessaging{})

	w := doJSON(router, http.MethodPost, "/threads", `{"participant_ids":["not-a-uuid"],"body":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "participant_ids")
}

func TestPostMessageErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{apperrors.ErrForbidden, http.StatusForbidden, "forbidden"},
		{apperrors.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{apperrors.NewValidationError("body", "too long"), http.StatusBadRequest, "validation"},
	}

	for _, tc := range cases {
		stub := &stubMessaging{
			postMessage: func(uuid.UUID, string) (*domain.Message, error) {
				return nil, tc.err
			},
		}
		router := newMessagingRouter(stub)

		w := doJSON(router, http.MethodPost, "/threads/"+uuid.NewString()+"/messages", `{"body":"hi"}`)
		assert.Equal(t, tc.status, w.Code)
		assert.Contains(t, w.Body.String(), tc.kind)
	}
}

func TestPostMessageRejectsInvalidThreadID(t *testing.T) {
	router := newMessagingRouter(&stubMessaging{})

	w := doJSON(router, http.MethodPost, "/threads/not-a-uuid/messages", `{"body":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteThreadConflict(t *testing.T) {
	stub := &stubMessaging{
		deleteThread: func(uuid.UUID) error { return apperrors.ErrConflict },
	}
	router := newMessagingRouter(stub)

	w := doJSON(router, http.MethodDelete, "/threads/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMarkReadWithoutBodyTargetsLatest(t *testing.T) {
	var gotMessageID *int64
	stub := &stubMessaging{
		markRead: func(threadID uuid.UUID, messageID *int64) (*domain.ReadReceipt, error) {
			gotMessageID = messageID
			return &domain.ReadReceipt{ThreadID: threadID, MessageID: 5, UpdatedAt: time.Now()}, nil
		},
	}
	router := newMessagingRouter(stub)

	w := doJSON(router, http.MethodPost, "/threads/"+uuid.NewString()+"/read", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, gotMessageID)

	w = doJSON(router, http.MethodPost, "/threads/"+uuid.NewString()+"/read", `{"message_id":3}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotMessageID)
	assert.Equal(t, int64(3), *gotMessageID)
}

func TestMarkReadParsesChunkedBody(t *testing.T) {
	var gotMessageID *int64
	stub := &stubMessaging{
		markRead: func(threadID uuid.UUID, messageID *int64) (*domain.ReadReceipt, error) {
			gotMessageID = messageID
			return &domain.ReadReceipt{ThreadID: threadID, MessageID: 3, UpdatedAt: time.Now()}, nil
		},
	}
	router := newMessagingRouter(stub)

	// Chunked transfer: Content-Length неизвестен, message_id все равно
	// должен быть прочитан из тела.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/threads/"+uuid.NewString()+"/read",
		io.NopCloser(strings.NewReader(`{"message_id":3}`)))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotMessageID)
	assert.Equal(t, int64(3), *gotMessageID)
}

func TestMarkReadRejectsMalformedBody(t *testing.T) {
	stub := &stubMessaging{
		markRead: func(threadID uuid.UUID, messageID *int64) (*domain.ReadReceipt, error) {
			return &domain.ReadReceipt{}, nil
		},
	}
	router := newMessagingRouter(stub)

	w := doJSON(router, http.MethodPost, "/threads/"+uuid.NewString()+"/read", `{"message_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
