package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incubator_messaging/internal/domain"
	"incubator_messaging/internal/hub"
	apperrors "incubator_messaging/pkg/errors"
	"incubator_messaging/pkg/logger"
)

type fakeAuth struct {
	users map[string]*domain.User
}

func (f *fakeAuth) ValidateToken(_ context.Context, token string) (*domain.User, error) {
	user, ok := f.users[token]
	if !ok {
		return nil, apperrors.ErrUnauthenticated
	}
	return user, nil
}

func newSocketServer(t *testing.T, auth *fakeAuth) (*httptest.Server, *hub.Hub) {
	return newSocketServerBuffered(t, auth, 16)
}

func newSocketServerBuffered(t *testing.T, auth *fakeAuth, sendBuffer int) (*httptest.Server, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.New("error")
	eventHub := hub.New(sendBuffer, log)
	wsHandler := NewWebSocketHandler(auth, eventHub, log)

	router := gin.New()
	router.GET("/ws", wsHandler.Connect)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, eventHub
}

func wsURL(server *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func TestConnectRequiresToken(t *testing.T) {
	server, _ := newSocketServer(t, &fakeAuth{users: map[string]*domain.User{}})

	resp, err := http.Get(server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp2, err := websocket.DefaultDialer.Dial(wsURL(server, "bogus"), nil)
	require.Error(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestConnectRejectsIneligibleRole(t *testing.T) {
	visitor := &domain.User{ID: uuid.New(), Role: domain.RoleUser, IsActive: true}
	server, _ := newSocketServer(t, &fakeAuth{users: map[string]*domain.User{"visitor-token": visitor}})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "visitor-token"), nil)
	require.Error(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConnectDeliversPublishedEvents(t *testing.T) {
	founder := &domain.User{ID: uuid.New(), Role: domain.RoleFounder, IsActive: true}
	server, eventHub := newSocketServer(t, &fakeAuth{users: map[string]*domain.User{"founder-token": founder}})

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "founder-token"), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// Регистрация в хабе происходит до возврата из Connect, но даем
	// серверу шанс завершить setup.
	require.Eventually(t, func() bool {
		return eventHub.SessionCount(founder.ID) == 1
	}, time.Second, 10*time.Millisecond)

	payload := domain.NewMessageReceivedEvent(&domain.Message{ID: 42, Body: "hi"})
	eventHub.Publish(founder.ID, payload)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Type    string          `json:"type"`
		Message *domain.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, domain.EventTypeMessageReceived, frame.Type)
	assert.Equal(t, int64(42), frame.Message.ID)
}

func TestConnectAnswersPingWithPong(t *testing.T) {
	founder := &domain.User{ID: uuid.New(), Role: domain.RoleFounder, IsActive: true}
	server, _ := newSocketServer(t, &fakeAuth{users: map[string]*domain.User{"founder-token": founder}})

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "founder-token"), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame domain.PongEvent
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, domain.EventTypePong, frame.Type)
	assert.False(t, frame.ServerTime.IsZero())
}

func TestOverflowDisconnectSurvivesConcurrentPings(t *testing.T) {
	founder := &domain.User{ID: uuid.New(), Role: domain.RoleFounder, IsActive: true}
	auth := &fakeAuth{users: map[string]*domain.User{"founder-token": founder}}
	server, eventHub := newSocketServerBuffered(t, auth, 1)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "founder-token"), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool {
		return eventHub.SessionCount(founder.ID) == 1
	}, time.Second, 10*time.Millisecond)

	// Клиент шлет ping-и и ничего не читает, пока большие публикации
	// забивают очередь и приводят к отключению сессии.
	go func() {
		for i := 0; i < 50; i++ {
			if conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)) != nil {
				return
			}
		}
	}()

	payload := make([]byte, 64*1024)
	for i := 0; i < 200; i++ {
		eventHub.Publish(founder.ID, payload)
	}

	require.Eventually(t, func() bool {
		return eventHub.SessionCount(founder.ID) == 0
	}, 5*time.Second, 10*time.Millisecond)

	// Сервер пережил отключение: новая сессия подключается и работает.
	conn2, resp2, err := websocket.DefaultDialer.Dial(wsURL(server, "founder-token"), nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	defer conn2.Close()

	require.NoError(t, conn2.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	conn2.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn2.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), domain.EventTypePong)
}

func TestDisconnectRemovesSession(t *testing.T) {
	founder := &domain.User{ID: uuid.New(), Role: domain.RoleFounder, IsActive: true}
	server, eventHub := newSocketServer(t, &fakeAuth{users: map[string]*domain.User{"founder-token": founder}})

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "founder-token"), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return eventHub.SessionCount(founder.ID) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return eventHub.SessionCount(founder.ID) == 0
	}, time.Second, 10*time.Millisecond)
}
