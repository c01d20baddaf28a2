package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lysyi3m/rss-sync/internal/broadcast"
)

func TestObserveReceivesEvents(t *testing.T) {
	env := newTestEnv(t, false)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}

	expectMessage(t, conn, broadcast.Connected)

	if delivered := env.hub.Broadcast(broadcast.FeedsUpdateFinished); delivered != 1 {
		t.Errorf("Expected delivery to 1 observer, got %d", delivered)
	}
	expectMessage(t, conn, broadcast.FeedsUpdateFinished)

	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for env.hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected observer to be removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestObserveConnectedIsBroadcast(t *testing.T) {
	env := newTestEnv(t, false)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer first.Close()
	expectMessage(t, first, broadcast.Connected)

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer second.Close()

	expectMessage(t, second, broadcast.Connected)
	expectMessage(t, first, broadcast.Connected)
}

func expectMessage(t *testing.T, conn *websocket.Conn, expected broadcast.Event) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Errorf("Expected text message, got %d", messageType)
	}
	if broadcast.Event(data) != expected {
		t.Errorf("Expected %s, got %s", expected, data)
	}
}
