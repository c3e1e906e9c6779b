package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/KevinKickass/PumpFleet/internal/auth"
	"github.com/KevinKickass/PumpFleet/internal/collection"
)

// tokens of the form "user:<name>" are valid for <name>
type fakeValidator struct{}

func (fakeValidator) ValidateToken(token string) (*auth.Claims, error) {
	name, ok := strings.CutPrefix(token, "user:")
	if !ok {
		return nil, errors.New("bad token")
	}
	return &auth.Claims{Username: name}, nil
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t), fakeValidator{})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub.Handler([]string{"*"}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, token string) (*websocket.Conn, Message) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		t.Fatal(err)
	}
	return conn, readMessage(t, conn)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("bad message %q: %v", data, err)
	}
	return msg
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.GetClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_RejectsBadToken(t *testing.T) {
	hub, url := startHub(t)

	_, msg := dial(t, url, "nonsense")
	if msg.Type != MessageTypeAuthFailed {
		t.Errorf("type = %q, want %q", msg.Type, MessageTypeAuthFailed)
	}
	if hub.GetClientCount() != 0 {
		t.Error("unauthenticated client registered")
	}
}

func TestHub_RejectsNonAuthFirstMessage(t *testing.T) {
	_, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "hello"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypeAuthFailed {
		t.Errorf("type = %q, want %q", msg.Type, MessageTypeAuthFailed)
	}
}

func TestHub_RoutesChangesToOwner(t *testing.T) {
	hub, url := startHub(t)

	alice, msg := dial(t, url, "user:alice")
	if msg.Type != MessageTypeAuthSuccess {
		t.Fatalf("alice handshake = %q", msg.Type)
	}
	bob, _ := dial(t, url, "user:bob")
	waitClients(t, hub, 2)

	hub.CollectionChanged("alice", collection.Change{Kind: collection.ChangeDeleted, IDs: []string{"p1"}})
	hub.Broadcast(NewMessage(MessageTypeSystemStatus, "ok"))

	first := readMessage(t, alice)
	if first.Type != MessageTypeCollectionChanged {
		t.Fatalf("alice got %q first", first.Type)
	}
	data, _ := json.Marshal(first.Data)
	var change collection.Change
	if err := json.Unmarshal(data, &change); err != nil {
		t.Fatal(err)
	}
	if change.Kind != collection.ChangeDeleted || len(change.IDs) != 1 || change.IDs[0] != "p1" {
		t.Errorf("change = %+v", change)
	}

	// bob only sees the broadcast
	if msg := readMessage(t, bob); msg.Type != MessageTypeSystemStatus {
		t.Errorf("bob got %q, want %q", msg.Type, MessageTypeSystemStatus)
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, url := startHub(t)

	conn, _ := dial(t, url, "user:carol")
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}
