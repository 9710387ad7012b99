package room

import (
	"sort"
	"time"
)

// Meeting is an active meeting: a participant set plus a line-based
// transcript. A meeting only leaves the active registry through an explicit
// end; disconnects may empty the participant set without ending it.
type Meeting struct {
	ID           string    `json:"id"`
	Seq          int       `json:"-"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	LocationName string    `json:"locationName,omitempty"`
	StartedBy    string    `json:"startedBy"`
	StartedAt    time.Time `json:"startedAt"`

	Participants map[string]bool `json:"-"`
	Transcript   []string        `json:"-"`
}

// ParticipantList returns the participant set as a stable sorted slice for
// broadcasts and transcript footers.
func (m *Meeting) ParticipantList() []string {
	out := make([]string, 0, len(m.Participants))
	for id := range m.Participants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MeetingSummary is the public shape broadcast to the room; the transcript
// itself is never sent over the wire.
type MeetingSummary struct {
	ID           string    `json:"id"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	LocationName string    `json:"locationName,omitempty"`
	StartedBy    string    `json:"startedBy"`
	StartedAt    time.Time `json:"startedAt"`
	Participants []string  `json:"participants"`
}

// Summary derives the broadcastable view of the meeting.
func (m *Meeting) Summary() MeetingSummary {
	return MeetingSummary{
		ID:           m.ID,
		Lat:          m.Lat,
		Lng:          m.Lng,
		LocationName: m.LocationName,
		StartedBy:    m.StartedBy,
		StartedAt:    m.StartedAt,
		Participants: m.ParticipantList(),
	}
}
