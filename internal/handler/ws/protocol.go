package ws

import (
	"encoding/json"

	"github.com/gathermap/backend/internal/model/room"
)

// inbound is the union of every client-to-server message. Fields are shared
// across types; Type selects which ones are read.
type inbound struct {
	Type string `json:"type"`

	// auth
	UserID   string            `json:"userId"`
	UserType string            `json:"userType"`
	Metadata map[string]string `json:"metadata"`

	// chat, note add
	Text string `json:"text"`

	// invoke
	Command string `json:"command"`
	ID      string `json:"id"`

	// move
	Location *room.Location `json:"location"`

	// status
	Status string `json:"status"`

	// note, meeting
	Action       string   `json:"action"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	LocationName string   `json:"locationName"`
	NoteID       string   `json:"noteId"`
	MeetingID    string   `json:"meetingId"`

	// state_update
	Update json.RawMessage `json:"update"`

	// drawing
	Drawing json.RawMessage `json:"drawing"`
}

type pongEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
