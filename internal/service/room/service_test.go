package room_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gathermap/backend/internal/config"
	model "github.com/gathermap/backend/internal/model/room"
	roomservice "github.com/gathermap/backend/internal/service/room"
	"github.com/gathermap/backend/internal/service/store"
)

// fakeConn records every event written to it, decoded to a generic map.
type fakeConn struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	c.events = append(c.events, m)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) eventsOfType(typ string) []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]interface{}
	for _, e := range c.events {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) waitForEvent(t *testing.T, typ string) map[string]interface{} {
	t.Helper()
	return c.waitForEvents(t, typ, 1)[0]
}

// waitForEvents blocks until at least n events of the given type arrived.
func (c *fakeConn) waitForEvents(t *testing.T, typ string, n int) []map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := c.eventsOfType(typ); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q event(s)", n, typ)
	return nil
}

func newTestService(t *testing.T) *roomservice.Service {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}
	cfg := config.RoomConfig{HistorySize: 5, SnapshotSize: 20}
	return roomservice.NewService(cfg, st, nil)
}

func TestRegisterSendsSnapshotBurst(t *testing.T) {
	svc := newTestService(t)

	conn := &fakeConn{}
	sess := svc.Register(conn, "alice", model.UserTypeHuman, nil)
	if sess.ID == "" {
		t.Fatal("expected a session id")
	}

	for _, typ := range []string{"state", "history", "notes", "drawings", "meetings", "presence"} {
		conn.waitForEvent(t, typ)
	}
	// Delivery is FIFO per session: a join for this session would have
	// arrived before the presence event consumed above.
	if len(conn.eventsOfType("join")) != 0 {
		t.Fatal("join broadcast must exclude the new session")
	}
}

func TestRegisterAnnouncesToOthers(t *testing.T) {
	svc := newTestService(t)

	first := &fakeConn{}
	svc.Register(first, "alice", model.UserTypeHuman, nil)

	second := &fakeConn{}
	svc.Register(second, "bob", model.UserTypeHuman, nil)

	join := first.waitForEvent(t, "join")
	if join["userId"] != "bob" {
		t.Fatalf("unexpected join userId: %v", join["userId"])
	}
	// Presence recomputed on both registrations.
	first.waitForEvents(t, "presence", 2)
}

func TestHistoryBoundFIFO(t *testing.T) {
	svc := newTestService(t) // HistorySize 5

	conn := &fakeConn{}
	sess := svc.Register(conn, "alice", model.UserTypeHuman, nil)

	for i := 0; i < 6; i++ {
		if err := svc.HandleChat(sess.ID, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("HandleChat err: %v", err)
		}
	}

	history := svc.History()
	if len(history) != 5 {
		t.Fatalf("expected history length 5, got %d", len(history))
	}
	if history[0].Text != "message 1" {
		t.Fatalf("expected oldest record evicted, head is %q", history[0].Text)
	}
	if history[4].Text != "message 5" {
		t.Fatalf("unexpected tail record %q", history[4].Text)
	}
}

func TestChatBroadcastIncludesSender(t *testing.T) {
	svc := newTestService(t)

	a := &fakeConn{}
	b := &fakeConn{}
	sessA := svc.Register(a, "alice", model.UserTypeHuman, nil)
	svc.Register(b, "bob", model.UserTypeHuman, nil)

	if err := svc.HandleChat(sessA.ID, "hello"); err != nil {
		t.Fatalf("HandleChat err: %v", err)
	}

	for name, conn := range map[string]*fakeConn{"alice": a, "bob": b} {
		chat := conn.waitForEvent(t, "chat")
		if chat["text"] != "hello" || chat["from"] != "alice" {
			t.Fatalf("%s: unexpected chat event %v", name, chat)
		}
	}
}

func TestMoveExcludesMover(t *testing.T) {
	svc := newTestService(t)

	a := &fakeConn{}
	b := &fakeConn{}
	sessA := svc.Register(a, "alice", model.UserTypeHuman, nil)
	svc.Register(b, "bob", model.UserTypeHuman, nil)

	loc := model.Location{Lat: 52.0, Lng: -1.0, Name: "field"}
	if err := svc.Move(sessA.ID, loc); err != nil {
		t.Fatalf("Move err: %v", err)
	}

	move := b.waitForEvent(t, "move")
	if move["userId"] != "alice" {
		t.Fatalf("unexpected move userId: %v", move["userId"])
	}

	// The post-move presence is alice's third (one per registration plus
	// this one); once it arrived, a wrongly routed move would already be in
	// her FIFO backlog.
	a.waitForEvents(t, "presence", 3)
	if len(a.eventsOfType("move")) != 0 {
		t.Fatal("mover must not receive its own move event")
	}
}

func TestStateUpdateMergesAndRelays(t *testing.T) {
	svc := newTestService(t)

	a := &fakeConn{}
	b := &fakeConn{}
	sessA := svc.Register(a, "alice", model.UserTypeHuman, nil)
	svc.Register(b, "bob", model.UserTypeHuman, nil)

	if err := svc.UpdateState(sessA.ID, json.RawMessage(`{"zoom":12}`)); err != nil {
		t.Fatalf("UpdateState err: %v", err)
	}
	if err := svc.UpdateState(sessA.ID, json.RawMessage(`{"layer":"satellite"}`)); err != nil {
		t.Fatalf("UpdateState err: %v", err)
	}

	state := svc.StateSnapshot()
	if string(state["zoom"]) != "12" {
		t.Fatalf("expected merged zoom key, got %s", state["zoom"])
	}
	if string(state["layer"]) != `"satellite"` {
		t.Fatalf("expected merged layer key, got %s", state["layer"])
	}

	b.waitForEvents(t, "state_update", 2)

	// Fence alice's queue with a chat broadcast that does include her.
	if err := svc.HandleChat(sessA.ID, "done"); err != nil {
		t.Fatalf("HandleChat err: %v", err)
	}
	a.waitForEvent(t, "chat")
	if len(a.eventsOfType("state_update")) != 0 {
		t.Fatal("originator must not receive its own state_update")
	}
}

func TestSendToUserFansOut(t *testing.T) {
	svc := newTestService(t)

	a1 := &fakeConn{}
	a2 := &fakeConn{}
	b := &fakeConn{}
	svc.Register(a1, "alice", model.UserTypeHuman, nil)
	svc.Register(a2, "alice", model.UserTypeHuman, nil)
	svc.Register(b, "bob", model.UserTypeHuman, nil)

	svc.SendToUser("alice", map[string]string{"type": "nudge"})
	a1.waitForEvent(t, "nudge")
	a2.waitForEvent(t, "nudge")

	// A later targeted event fences bob's queue: a misrouted nudge would
	// precede it.
	svc.SendToUser("bob", map[string]string{"type": "fence"})
	b.waitForEvent(t, "fence")
	if len(b.eventsOfType("nudge")) != 0 {
		t.Fatal("bob must not receive alice's event")
	}
}

func TestStatusRoundTripsIntoPresence(t *testing.T) {
	svc := newTestService(t)

	conn := &fakeConn{}
	sess := svc.Register(conn, "alice", model.UserTypeHuman, map[string]string{"status": "exploring"})

	presence := conn.waitForEvent(t, "presence")
	users := presence["users"].([]interface{})
	if len(users) != 1 {
		t.Fatalf("expected 1 presence entry, got %d", len(users))
	}
	if users[0].(map[string]interface{})["status"] != "exploring" {
		t.Fatalf("expected status from auth metadata, got %v", users[0])
	}

	if err := svc.UpdateStatus(sess.ID, "afk"); err != nil {
		t.Fatalf("UpdateStatus err: %v", err)
	}
	updates := conn.waitForEvents(t, "presence", 2)
	latest := updates[len(updates)-1]["users"].([]interface{})
	if latest[0].(map[string]interface{})["status"] != "afk" {
		t.Fatalf("expected updated status in presence, got %v", latest[0])
	}

	if err := svc.UpdateStatus("missing", "afk"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

// stallConn blocks every write until released, standing in for a peer whose
// receive buffer filled up.
type stallConn struct {
	release chan struct{}
}

func (c *stallConn) WriteJSON(v interface{}) error {
	<-c.release
	return nil
}

func (c *stallConn) Close() error { return nil }

func TestSlowClientDoesNotBlockDispatch(t *testing.T) {
	svc := newTestService(t)

	stalled := &stallConn{release: make(chan struct{})}
	defer close(stalled.release)
	slowSess := svc.Register(stalled, "slow", model.UserTypeHuman, nil)
	defer svc.Disconnect(slowSess.ID)

	healthy := &fakeConn{}
	sess := svc.Register(healthy, "alice", model.UserTypeHuman, nil)

	// Far more events than one outbox holds: the stalled session sheds its
	// oldest backlog while dispatch keeps going for everyone else.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if err := svc.HandleChat(sess.ID, fmt.Sprintf("message %d", i)); err != nil {
				t.Errorf("HandleChat err: %v", err)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked behind a stalled transport")
	}

	// The newest event is never the one dropped, so the final message must
	// reach the healthy session.
	deadline := time.Now().Add(2 * time.Second)
	for {
		received := false
		for _, e := range healthy.eventsOfType("chat") {
			if e["text"] == "message 99" {
				received = true
			}
		}
		if received {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("healthy session never received the final chat")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDisconnectUnknownSessionIsNoop(t *testing.T) {
	svc := newTestService(t)
	svc.Disconnect("missing")

	sessions, _, _, _ := svc.Counts()
	if sessions != 0 {
		t.Fatalf("expected no sessions, got %d", sessions)
	}
}
