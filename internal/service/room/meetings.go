package room

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/gathermap/backend/internal/model/room"
	"github.com/gathermap/backend/internal/service/store"
)

const transcriptTimeLayout = "2 Jan 2006 15:04"

// StartMeeting opens a meeting at the given point with the initiator as sole
// participant and broadcasts a public summary. Both coordinates are required.
func (s *Service) StartMeeting(sessionID string, lat, lng *float64, locationName string) (room.MeetingSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return room.MeetingSummary{}, ErrSessionNotFound
	}
	if lat == nil || lng == nil {
		return room.MeetingSummary{}, ErrMissingCoordinates
	}

	s.meetingSeq++
	m := &room.Meeting{
		ID:           uuid.NewString(),
		Seq:          s.meetingSeq,
		Lat:          *lat,
		Lng:          *lng,
		LocationName: locationName,
		StartedBy:    sess.UserID,
		StartedAt:    nowUTC(),
		Participants: map[string]bool{sess.UserID: true},
	}

	place := m.LocationName
	if place == "" {
		place = fmt.Sprintf("%.4f, %.4f", m.Lat, m.Lng)
	}
	m.Transcript = []string{
		"=== Meeting transcript ===",
		"Location: " + place,
		"Started: " + m.StartedAt.Format(transcriptTimeLayout),
		"Started by: " + m.StartedBy,
		"---",
		"",
	}

	s.meetings[m.ID] = m
	s.broadcastLocked(meetingStartedEvent{Type: "meeting_started", Meeting: m.Summary()}, "")
	return m.Summary(), nil
}

// JoinMeeting adds the session's user to a meeting resolved by id or prefix.
func (s *Service) JoinMeeting(sessionID, idOrPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	m := s.resolveMeetingLocked(idOrPrefix)
	if m == nil {
		return ErrMeetingNotFound
	}
	if m.Participants[sess.UserID] {
		return ErrAlreadyJoined
	}

	m.Participants[sess.UserID] = true
	m.Transcript = append(m.Transcript, sess.UserID+" joined the meeting", "")

	s.broadcastLocked(meetingJoinedEvent{
		Type:         "meeting_joined",
		MeetingID:    m.ID,
		UserID:       sess.UserID,
		Participants: m.ParticipantList(),
	}, "")
	return nil
}

// EndMeeting finalizes a meeting: footer, transcript artifact, a system note
// pointing at the artifact, removal from the active set, and the
// meeting_ended broadcast. Ending requires current membership. The artifact
// write happens before the broadcast because the broadcast carries its name.
func (s *Service) EndMeeting(sessionID, idOrPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	m := s.resolveMeetingLocked(idOrPrefix)
	if m == nil {
		return ErrMeetingNotFound
	}
	if !m.Participants[sess.UserID] {
		return ErrNotParticipant
	}

	endedAt := nowUTC()
	final := append(append([]string(nil), m.Transcript...),
		"",
		"---",
		"Ended: "+endedAt.Format(transcriptTimeLayout),
		"Participants: "+strings.Join(m.ParticipantList(), ", "),
	)

	// Minute granularity plus the meeting id short form, so two meetings
	// ending in the same minute cannot collide. The artifact write happens
	// first: the broadcast carries the name, so a failed write leaves the
	// meeting active and untouched.
	fileName := fmt.Sprintf("meeting-%s-%s.txt", endedAt.Format("20060102-1504"), m.ID[:8])
	if err := s.store.SaveArtifact(fileName, []byte(strings.Join(final, "\n"))); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}

	note := room.Note{
		ID:           uuid.NewString(),
		Lat:          m.Lat,
		Lng:          m.Lng,
		LocationName: m.LocationName,
		Text:         fmt.Sprintf("Meeting transcript: %s", fileName),
		Author:       "system",
		Timestamp:    endedAt,
		MeetingFile:  fileName,
	}
	s.notes = append(s.notes, note)
	s.persistLocked(store.KeyNotes, s.notes)

	delete(s.meetings, m.ID)

	s.broadcastLocked(noteAddedEvent{Type: "note_added", Note: note}, "")
	s.broadcastLocked(meetingEndedEvent{
		Type:         "meeting_ended",
		MeetingID:    m.ID,
		FileName:     fileName,
		LocationName: m.LocationName,
		EndedBy:      sess.UserID,
		Note:         note,
	}, "")
	return nil
}

// Meetings returns summaries of the active meetings.
func (s *Service) Meetings() []room.MeetingSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meetingSummariesLocked()
}

// Transcript returns the working transcript of an active meeting.
func (s *Service) Transcript(meetingID string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meetings[meetingID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), m.Transcript...), true
}

func (s *Service) meetingSummariesLocked() []room.MeetingSummary {
	out := make([]room.MeetingSummary, 0, len(s.meetings))
	for _, m := range s.sortedMeetingsLocked() {
		out = append(out, m.Summary())
	}
	return out
}

// resolveMeetingLocked matches an exact id first, then falls back to a prefix
// scan in meeting start order. An ambiguous prefix resolves to the earliest
// started match.
func (s *Service) resolveMeetingLocked(idOrPrefix string) *room.Meeting {
	if idOrPrefix == "" {
		return nil
	}
	if m, ok := s.meetings[idOrPrefix]; ok {
		return m
	}
	for _, m := range s.sortedMeetingsLocked() {
		if strings.HasPrefix(m.ID, idOrPrefix) {
			return m
		}
	}
	return nil
}

func (s *Service) sortedMeetingsLocked() []*room.Meeting {
	out := make([]*room.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// recordTranscriptLocked appends a line to every active meeting the user
// currently belongs to. A user in several meetings is recorded into each.
func (s *Service) recordTranscriptLocked(userID, line string) {
	for _, m := range s.meetings {
		if m.Participants[userID] {
			m.Transcript = append(m.Transcript, line)
		}
	}
}
