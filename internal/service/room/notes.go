package room

import (
	"math"

	"github.com/google/uuid"

	"github.com/gathermap/backend/internal/model/room"
	"github.com/gathermap/backend/internal/service/store"
)

const earthRadiusM = 6371000.0

// AddNote creates a note at the given point, persists the note list, and
// broadcasts note_added.
func (s *Service) AddNote(sessionID string, lat, lng float64, locationName, text string) (room.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return room.Note{}, ErrSessionNotFound
	}

	note := room.Note{
		ID:           uuid.NewString(),
		Lat:          lat,
		Lng:          lng,
		LocationName: locationName,
		Text:         text,
		Author:       sess.UserID,
		Timestamp:    nowUTC(),
	}
	s.notes = append(s.notes, note)
	s.persistLocked(store.KeyNotes, s.notes)
	s.broadcastLocked(noteAddedEvent{Type: "note_added", Note: note}, "")
	return note, nil
}

// DeleteNote removes a note if the requester authored it. A mismatched or
// unknown note id is a silent no-op: nothing is mutated and no event is
// emitted.
func (s *Service) DeleteNote(sessionID, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	for i, note := range s.notes {
		if note.ID != noteID {
			continue
		}
		if note.Author != sess.UserID {
			return nil
		}
		s.notes = append(s.notes[:i], s.notes[i+1:]...)
		s.persistLocked(store.KeyNotes, s.notes)
		s.broadcastLocked(noteDeletedEvent{Type: "note_deleted", NoteID: noteID}, "")
		return nil
	}
	return nil
}

// Notes returns a copy of the note list.
func (s *Service) Notes() []room.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]room.Note(nil), s.notes...)
}

// Near returns every note within radiusM metres of the given point.
func (s *Service) Near(lat, lng, radiusM float64) []room.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nearLocked(lat, lng, radiusM)
}

func (s *Service) nearLocked(lat, lng, radiusM float64) []room.Note {
	var out []room.Note
	for _, note := range s.notes {
		if haversineM(lat, lng, note.Lat, note.Lng) <= radiusM {
			out = append(out, note)
		}
	}
	return out
}

// haversineM computes the great-circle distance in metres.
func haversineM(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLng := (lng2 - lng1) * toRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
