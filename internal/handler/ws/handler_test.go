package ws_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gathermap/backend/internal/config"
	"github.com/gathermap/backend/internal/handler"
	roomservice "github.com/gathermap/backend/internal/service/room"
	"github.com/gathermap/backend/internal/service/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}
	svc := roomservice.NewService(config.RoomConfig{HistorySize: 100, SnapshotSize: 20}, st, nil)

	srv := httptest.NewServer(handler.NewRouter(svc))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event map[string]interface{}
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return event
}

func authenticate(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()

	if err := conn.WriteJSON(map[string]interface{}{"type": "auth", "userId": userID}); err != nil {
		t.Fatalf("write auth: %v", err)
	}

	// Snapshot burst: state, history, notes, drawings, meetings, then presence.
	want := []string{"state", "history", "notes", "drawings", "meetings", "presence"}
	for _, typ := range want {
		event := readEvent(t, conn)
		if event["type"] != typ {
			t.Fatalf("expected %q in snapshot burst, got %v", typ, event["type"])
		}
	}
}

func TestAuthSnapshotBurst(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	authenticate(t, conn, "alice")
}

func TestChatRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	authenticate(t, conn, "alice")

	if err := conn.WriteJSON(map[string]interface{}{"type": "chat", "text": "hello room"}); err != nil {
		t.Fatalf("write chat: %v", err)
	}

	event := readEvent(t, conn)
	if event["type"] != "chat" || event["text"] != "hello room" || event["from"] != "alice" {
		t.Fatalf("unexpected chat event: %v", event)
	}
}

func TestSecondClientSeesJoinAndChat(t *testing.T) {
	srv := newTestServer(t)

	first := dial(t, srv)
	authenticate(t, first, "alice")

	second := dial(t, srv)
	authenticate(t, second, "bob")

	// First client observes bob's arrival.
	event := readEvent(t, first)
	if event["type"] != "join" || event["userId"] != "bob" {
		t.Fatalf("expected join for bob, got %v", event)
	}
	event = readEvent(t, first)
	if event["type"] != "presence" {
		t.Fatalf("expected presence after join, got %v", event)
	}

	if err := second.WriteJSON(map[string]interface{}{"type": "chat", "text": "hi"}); err != nil {
		t.Fatalf("write chat: %v", err)
	}
	event = readEvent(t, first)
	if event["type"] != "chat" || event["from"] != "bob" {
		t.Fatalf("expected bob's chat, got %v", event)
	}
}

func TestPingPong(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	authenticate(t, conn, "alice")

	if err := conn.WriteJSON(map[string]interface{}{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	event := readEvent(t, conn)
	if event["type"] != "pong" {
		t.Fatalf("expected pong, got %v", event)
	}
	if _, ok := event["timestamp"].(float64); !ok {
		t.Fatalf("expected numeric timestamp, got %v", event["timestamp"])
	}
}

func TestStatusUpdateOverWire(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	authenticate(t, conn, "alice")

	if err := conn.WriteJSON(map[string]interface{}{"type": "status", "status": "afk"}); err != nil {
		t.Fatalf("write status: %v", err)
	}

	event := readEvent(t, conn)
	if event["type"] != "presence" {
		t.Fatalf("expected presence rebroadcast, got %v", event)
	}
	users := event["users"].([]interface{})
	if len(users) != 1 || users[0].(map[string]interface{})["status"] != "afk" {
		t.Fatalf("expected updated status in presence, got %v", users)
	}
}

func TestAuthRequiredBeforeChat(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	if err := conn.WriteJSON(map[string]interface{}{"type": "chat", "text": "too soon"}); err != nil {
		t.Fatalf("write chat: %v", err)
	}
	event := readEvent(t, conn)
	if event["type"] != "error" {
		t.Fatalf("expected error before auth, got %v", event)
	}
}

func TestMalformedMessageReportsError(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	authenticate(t, conn, "alice")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write raw: %v", err)
	}
	event := readEvent(t, conn)
	if event["type"] != "error" {
		t.Fatalf("expected error for malformed payload, got %v", event)
	}

	// The connection stays usable.
	if err := conn.WriteJSON(map[string]interface{}{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if event := readEvent(t, conn); event["type"] != "pong" {
		t.Fatalf("expected pong after recovery, got %v", event)
	}
}

func TestMeetingOverWire(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	authenticate(t, conn, "alice")

	if err := conn.WriteJSON(map[string]interface{}{
		"type": "meeting", "action": "start", "lat": 52.0, "lng": -1.0, "locationName": "the field",
	}); err != nil {
		t.Fatalf("write meeting start: %v", err)
	}

	event := readEvent(t, conn)
	if event["type"] != "meeting_started" {
		t.Fatalf("expected meeting_started, got %v", event)
	}
	meeting := event["meeting"].(map[string]interface{})
	meetingID := meeting["id"].(string)

	if err := conn.WriteJSON(map[string]interface{}{
		"type": "meeting", "action": "end", "meetingId": meetingID[:8],
	}); err != nil {
		t.Fatalf("write meeting end: %v", err)
	}

	event = readEvent(t, conn)
	if event["type"] != "note_added" {
		t.Fatalf("expected note_added before meeting_ended, got %v", event)
	}
	event = readEvent(t, conn)
	if event["type"] != "meeting_ended" {
		t.Fatalf("expected meeting_ended, got %v", event)
	}
	if event["fileName"] == "" {
		t.Fatal("expected artifact fileName in meeting_ended")
	}
}

func TestMeetingStartWithoutCoordinates(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	authenticate(t, conn, "alice")

	if err := conn.WriteJSON(map[string]interface{}{"type": "meeting", "action": "start"}); err != nil {
		t.Fatalf("write meeting start: %v", err)
	}
	event := readEvent(t, conn)
	if event["type"] != "error" {
		t.Fatalf("expected validation error, got %v", event)
	}
}
