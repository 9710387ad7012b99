package room

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/gathermap/backend/internal/model/room"
)

// Responder is the AI participant. Implemented by the eino-backed service in
// internal/service/ai; tests substitute fakes.
type Responder interface {
	// UserID is the reserved id the AI participant answers to.
	UserID() string
	// Mentioned reports whether the text addresses the AI participant.
	Mentioned(text string) bool
	// NoteRadiusM is the radius used to enrich context with nearby notes.
	NoteRadiusM() float64
	// Respond issues one completion request and returns the response text.
	Respond(ctx context.Context, from, text string, history []room.ChatMessage, nearby []room.Note) (string, error)
}

// HandleChat stores one chat message, records it into the sender's active
// meeting transcripts, broadcasts it, and kicks off an AI request when the AI
// participant is mentioned.
func (s *Service) HandleChat(sessionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.LastActive = nowUTC()

	m := room.ChatMessage{
		ID:        uuid.NewString(),
		From:      sess.UserID,
		Text:      text,
		Timestamp: nowUTC(),
	}

	s.appendHistoryLocked(m)
	s.appendChatLogLocked(m)
	s.recordTranscriptLocked(sess.UserID, fmt.Sprintf("%s: %s", sess.UserID, text))
	s.broadcastLocked(chatEvent{Type: "chat", ChatMessage: m}, "")

	if s.ai != nil && sess.UserID != s.ai.UserID() && s.ai.Mentioned(text) {
		s.startAIRequestLocked(sess, text, m.ID)
	}
	return nil
}

// HandleInvoke routes a command straight to the AI pipeline, bypassing
// mention detection. The optional id becomes the response's inReplyTo.
func (s *Service) HandleInvoke(sessionID, command, replyTo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.ai == nil {
		return fmt.Errorf("ai participant unavailable")
	}

	s.startAIRequestLocked(sess, command, replyTo)
	return nil
}

// startAIRequestLocked broadcasts the typing indicator, snapshots everything
// the context builder needs, and launches the completion request. Requests
// are never coalesced: overlapping invocations run concurrently and may
// complete out of order.
func (s *Service) startAIRequestLocked(sess *room.Session, text, replyTo string) {
	s.broadcastLocked(typingEvent{Type: "typing", UserID: s.ai.UserID()}, "")

	from := sess.UserID
	history := append([]room.ChatMessage(nil), s.history...)

	var nearby []room.Note
	if sess.Location != nil {
		nearby = s.nearLocked(sess.Location.Lat, sess.Location.Lng, s.ai.NoteRadiusM())
	}

	go func() {
		responseText, err := s.ai.Respond(context.Background(), from, text, history, nearby)

		s.mu.Lock()
		defer s.mu.Unlock()

		if err != nil {
			log.Printf("[room] ai request for user=%s failed: %v", from, err)
			// The response channel is shared, so the failure is too.
			s.broadcastLocked(errorEvent{Type: "error", Error: fmt.Sprintf("ai request failed: %v", err)}, "")
			return
		}

		resp := room.ChatMessage{
			ID:        uuid.NewString(),
			From:      s.ai.UserID(),
			Text:      responseText,
			Timestamp: nowUTC(),
			InReplyTo: replyTo,
		}

		s.appendHistoryLocked(resp)
		// AI responses land in the transcripts of every meeting the
		// invoking human belongs to.
		s.recordTranscriptLocked(from, fmt.Sprintf("%s: %s", resp.From, resp.Text))
		s.broadcastLocked(chatEvent{Type: "ai_response", ChatMessage: resp}, "")
		s.appendChatLogLocked(resp)
	}()
}
