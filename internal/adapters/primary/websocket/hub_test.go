package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lorrc/testit-reports/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn, uuid.New(), ClientConfig{}, testLogger()).Start()
	}))
	return hub, srv, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, projectID int64) {
	t.Helper()
	payload, _ := json.Marshal(SubscribePayload{ProjectID: projectID})
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: msgType, Payload: payload}))
}

func TestHub_DeliversToProjectRoom(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub, srv, cancel := startHub(t)
	defer srv.Close()
	defer func() {
		cancel()
		<-hub.Done()
	}()

	subscriber := dial(t, srv)
	defer subscriber.Close()
	other := dial(t, srv)
	defer other.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, time.Second, 10*time.Millisecond)

	send(t, subscriber, MessageSubscribe, 7)
	send(t, other, MessageSubscribe, 8)
	require.Eventually(t, func() bool {
		return hub.GetClientsInRoom(7) == 1 && hub.GetClientsInRoom(8) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast(domain.Event{Type: domain.EventCollectionCompleted, ProjectID: 7}))

	var got domain.Event
	require.NoError(t, subscriber.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, subscriber.ReadJSON(&got))
	assert.Equal(t, domain.EventCollectionCompleted, got.Type)
	assert.Equal(t, int64(7), got.ProjectID)

	// The other client only hears its own project.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	assert.Error(t, other.ReadJSON(&got))
}

func TestHub_UnsubscribeAndPing(t *testing.T) {
	hub, srv, cancel := startHub(t)
	defer srv.Close()
	defer cancel()

	conn := dial(t, srv)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)
	send(t, conn, MessageSubscribe, 3)
	require.Eventually(t, func() bool { return hub.GetClientsInRoom(3) == 1 }, time.Second, 10*time.Millisecond)
	send(t, conn, MessageUnsubscribe, 3)
	require.Eventually(t, func() bool { return hub.GetClientsInRoom(3) == 0 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessagePing}))
	var got domain.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, domain.EventType("PONG"), got.Type)
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	hub, srv, cancel := startHub(t)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-hub.Done()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "the hub closes the connection on shutdown")
	assert.Equal(t, 0, hub.GetClientCount())
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(testLogger())
	client := &Client{
		Hub:           hub,
		Send:          make(chan domain.Event), // unbuffered: always full
		UserID:        uuid.New(),
		Subscriptions: make(map[int64]bool),
		logger:        testLogger(),
	}
	hub.registerClient(client)
	hub.subscribeClientToProject(client, 1)

	hub.broadcastEvent(domain.Event{Type: domain.EventCollectionStarted, ProjectID: 1})

	assert.Equal(t, 0, hub.GetClientCount())
	assert.Equal(t, 0, hub.GetClientsInRoom(1))
	_, open := <-client.Send
	assert.False(t, open)
}
