// Package room implements the room session and broadcast engine: the client
// registry, message routing, the bounded chat history, notes, meetings, and
// the AI request pipeline. All shared state is guarded by one mutex; every
// outbound event is enqueued to the recipient's outbox inside the same lock
// hold, so delivery order per recipient matches dispatch order. The actual
// socket write happens on a per-session writer goroutine, so one stalled
// transport never blocks dispatch for the rest of the room.
package room

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/gathermap/backend/internal/config"
	"github.com/gathermap/backend/internal/model/room"
	"github.com/gathermap/backend/internal/service/store"
)

// outboxSize bounds the per-session outbound queue. A client that cannot
// drain this many events loses its oldest queued ones.
const outboxSize = 64

// Service owns all in-memory room state and the persistence adapter.
type Service struct {
	mu    sync.Mutex
	cfg   config.RoomConfig
	store store.Store
	ai    Responder

	sessions   map[string]*room.Session
	outboxes   map[string]chan interface{}
	history    []room.ChatMessage
	state      map[string]json.RawMessage
	drawings   []json.RawMessage
	notes      []room.Note
	meetings   map[string]*room.Meeting
	meetingSeq int
}

// NewService builds the room service and reloads persisted blobs. The
// responder may be nil, in which case mentions are relayed like any other
// chat.
func NewService(cfg config.RoomConfig, st store.Store, ai Responder) *Service {
	s := &Service{
		cfg:      cfg,
		store:    st,
		ai:       ai,
		sessions: make(map[string]*room.Session),
		outboxes: make(map[string]chan interface{}),
		state:    make(map[string]json.RawMessage),
		meetings: make(map[string]*room.Meeting),
	}
	s.loadPersisted()
	return s
}

func (s *Service) loadPersisted() {
	if data, err := s.store.Load(store.KeyNotes); err == nil {
		if err := json.Unmarshal(data, &s.notes); err != nil {
			log.Printf("[room] corrupt notes blob, starting empty: %v", err)
			s.notes = nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[room] load notes: %v", err)
	}

	if data, err := s.store.Load(store.KeyState); err == nil {
		if err := json.Unmarshal(data, &s.state); err != nil {
			log.Printf("[room] corrupt state blob, starting empty: %v", err)
			s.state = make(map[string]json.RawMessage)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[room] load state: %v", err)
	}

	if data, err := s.store.Load(store.KeyDrawings); err == nil {
		if err := json.Unmarshal(data, &s.drawings); err != nil {
			log.Printf("[room] corrupt drawings blob, starting empty: %v", err)
			s.drawings = nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[room] load drawings: %v", err)
	}
}

// Register creates a session for an authenticated connection, sends the
// snapshot burst to it, and announces it to the rest of the room. Identity is
// client-asserted: any user id may be claimed, by any number of sessions.
func (s *Service) Register(conn room.Conn, userID string, userType room.UserType, metadata map[string]string) *room.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userType != room.UserTypeAI {
		userType = room.UserTypeHuman
	}

	sess := &room.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		UserType:   userType,
		Metadata:   metadata,
		Status:     metadata["status"],
		JoinedAt:   nowUTC(),
		LastActive: nowUTC(),
		Conn:       conn,
	}
	s.sessions[sess.ID] = sess

	outbox := make(chan interface{}, outboxSize)
	s.outboxes[sess.ID] = outbox
	go writeLoop(sess, outbox)

	// Snapshot burst to the new session only.
	s.send(sess, stateEvent{Type: "state", Data: s.state})
	s.send(sess, historyEvent{Type: "history", Messages: s.historyTail(s.cfg.SnapshotSize)})
	s.send(sess, notesEvent{Type: "notes", Notes: append([]room.Note(nil), s.notes...)})
	s.send(sess, drawingsEvent{Type: "drawings", Drawings: append([]json.RawMessage(nil), s.drawings...)})
	s.send(sess, meetingsEvent{Type: "meetings", Meetings: s.meetingSummariesLocked()})

	s.broadcastLocked(joinEvent{Type: "join", UserID: userID, UserType: userType}, sess.ID)
	s.broadcastPresenceLocked()

	log.Printf("[room] session %s registered user=%s type=%s", sess.ID, userID, userType)
	return sess
}

// Disconnect tears down a session after its transport closed. It removes the
// user from every meeting's participant set without ending any meeting, drops
// the session, and rebroadcasts presence. Never returns an error: closure is
// unconditionally handled.
func (s *Service) Disconnect(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}

	for _, m := range s.meetings {
		if m.Participants[sess.UserID] {
			m.Transcript = append(m.Transcript, sess.UserID+" disconnected")
			delete(m.Participants, sess.UserID)
		}
	}

	if outbox, ok := s.outboxes[sessionID]; ok {
		close(outbox)
		delete(s.outboxes, sessionID)
	}
	delete(s.sessions, sessionID)
	s.broadcastPresenceLocked()
	log.Printf("[room] session %s disconnected user=%s", sessionID, sess.UserID)
}

// Move updates a session's last-known location and broadcasts it to everyone
// else.
func (s *Service) Move(sessionID string, loc room.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	sess.Location = &loc
	sess.LastActive = nowUTC()

	s.broadcastLocked(moveEvent{Type: "move", UserID: sess.UserID, Location: loc}, sessionID)
	s.broadcastPresenceLocked()
	return nil
}

// UpdateStatus sets a session's free-form presence status and rebroadcasts
// presence.
func (s *Service) UpdateStatus(sessionID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	sess.Status = status
	sess.LastActive = nowUTC()
	s.broadcastPresenceLocked()
	return nil
}

// UpdateState merges an update object into the shared state blob, persists
// it, and relays the update to everyone but the originator.
func (s *Service) UpdateState(sessionID string, update json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(update, &fields); err != nil {
		return errors.New("state update must be an object")
	}
	for k, v := range fields {
		s.state[k] = v
	}

	s.persistLocked(store.KeyState, s.state)
	s.broadcastLocked(stateUpdateEvent{Type: "state_update", Update: update}, sessionID)
	return nil
}

// RelayDrawing appends a drawing to the persisted list and relays it to
// everyone but the originator.
func (s *Service) RelayDrawing(sessionID string, drawing json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}

	s.drawings = append(s.drawings, drawing)
	s.persistLocked(store.KeyDrawings, s.drawings)
	s.broadcastLocked(drawingEvent{Type: "drawing", Drawing: drawing}, sessionID)
	return nil
}

// StateSnapshot returns a copy of the shared state blob.
func (s *Service) StateSnapshot() map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]json.RawMessage, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// Counts reports registry sizes for the health endpoint.
func (s *Service) Counts() (sessions, notes, meetings, history int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), len(s.notes), len(s.meetings), len(s.history)
}

// broadcastLocked serializes the event once and sends it to every live
// session, skipping excludeSessionID when set. Dead transports are skipped
// silently; no error reaches the caller.
func (s *Service) broadcastLocked(v interface{}, excludeSessionID string) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[room] marshal broadcast: %v", err)
		return
	}
	raw := json.RawMessage(data)

	for id, sess := range s.sessions {
		if id == excludeSessionID {
			continue
		}
		s.send(sess, raw)
	}
}

// SendToUser delivers an event to every session claiming the user id. Ids
// are not unique, so this may fan out to several connections.
func (s *Service) SendToUser(userID string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.UserID == userID {
			s.send(sess, v)
		}
	}
}

// send enqueues one event onto the session's outbox without ever blocking.
// A full outbox drops its oldest queued event to make room, so a slow client
// only ever loses its own backlog.
func (s *Service) send(sess *room.Session, v interface{}) {
	outbox, ok := s.outboxes[sess.ID]
	if !ok {
		return
	}

	select {
	case outbox <- v:
		return
	default:
	}

	select {
	case <-outbox:
	default:
	}
	select {
	case outbox <- v:
	default:
	}
	log.Printf("[room] session %s outbox full, dropped oldest event", sess.ID)
}

// writeLoop drains one session's outbox onto its transport. Write failures
// are logged and the loop keeps draining, so producers never block on a dead
// connection; the read loop notices the failure and disconnects the session.
func writeLoop(sess *room.Session, outbox <-chan interface{}) {
	for v := range outbox {
		if sess.Conn == nil {
			continue
		}
		if err := sess.Conn.WriteJSON(v); err != nil {
			log.Printf("[room] send to session %s failed: %v", sess.ID, err)
		}
	}
}

func (s *Service) broadcastPresenceLocked() {
	users := make([]room.PresenceEntry, 0, len(s.sessions))
	for _, sess := range s.sessions {
		users = append(users, room.PresenceEntry{
			UserID:     sess.UserID,
			UserType:   sess.UserType,
			Location:   sess.Location,
			Status:     sess.Status,
			LastActive: sess.LastActive,
		})
	}
	s.broadcastLocked(presenceEvent{Type: "presence", Users: users}, "")
}

// appendHistoryLocked appends one record, evicting the oldest past capacity.
func (s *Service) appendHistoryLocked(m room.ChatMessage) {
	s.history = append(s.history, m)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
}

func (s *Service) historyTail(n int) []room.ChatMessage {
	if len(s.history) < n {
		n = len(s.history)
	}
	return append([]room.ChatMessage(nil), s.history[len(s.history)-n:]...)
}

// History returns a copy of the current chat history.
func (s *Service) History() []room.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]room.ChatMessage(nil), s.history...)
}

// persistLocked saves a blob; failures are logged and surfaced to the room as
// an error event, never fatal to the process.
func (s *Service) persistLocked(key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[room] marshal %s: %v", key, err)
		return
	}
	if err := s.store.Save(key, data); err != nil {
		log.Printf("[room] persist %s: %v", key, err)
		s.broadcastLocked(errorEvent{Type: "error", Error: "failed to persist " + key}, "")
	}
}

func (s *Service) appendChatLogLocked(m room.ChatMessage) {
	line, err := json.Marshal(m)
	if err != nil {
		log.Printf("[room] marshal chat log record: %v", err)
		return
	}
	if err := s.store.AppendLine(store.KeyChatLog, string(line)); err != nil {
		log.Printf("[room] append chat log: %v", err)
	}
}
