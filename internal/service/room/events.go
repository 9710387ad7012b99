package room

import (
	"encoding/json"
	"time"

	"github.com/gathermap/backend/internal/model/room"
)

// Outbound wire events. Every event carries a "type" discriminator; embedded
// structs flatten their fields into the envelope.

type stateEvent struct {
	Type string                     `json:"type"`
	Data map[string]json.RawMessage `json:"data"`
}

type historyEvent struct {
	Type     string             `json:"type"`
	Messages []room.ChatMessage `json:"messages"`
}

type notesEvent struct {
	Type  string      `json:"type"`
	Notes []room.Note `json:"notes"`
}

type meetingsEvent struct {
	Type     string                `json:"type"`
	Meetings []room.MeetingSummary `json:"meetings"`
}

type joinEvent struct {
	Type     string        `json:"type"`
	UserID   string        `json:"userId"`
	UserType room.UserType `json:"userType"`
}

type presenceEvent struct {
	Type  string               `json:"type"`
	Users []room.PresenceEntry `json:"users"`
}

type chatEvent struct {
	Type string `json:"type"`
	room.ChatMessage
}

type typingEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type moveEvent struct {
	Type     string        `json:"type"`
	UserID   string        `json:"userId"`
	Location room.Location `json:"location"`
}

type noteAddedEvent struct {
	Type string    `json:"type"`
	Note room.Note `json:"note"`
}

type noteDeletedEvent struct {
	Type   string `json:"type"`
	NoteID string `json:"noteId"`
}

type meetingStartedEvent struct {
	Type    string              `json:"type"`
	Meeting room.MeetingSummary `json:"meeting"`
}

type meetingJoinedEvent struct {
	Type         string   `json:"type"`
	MeetingID    string   `json:"meetingId"`
	UserID       string   `json:"userId"`
	Participants []string `json:"participants"`
}

type meetingEndedEvent struct {
	Type         string    `json:"type"`
	MeetingID    string    `json:"meetingId"`
	FileName     string    `json:"fileName"`
	LocationName string    `json:"locationName,omitempty"`
	EndedBy      string    `json:"endedBy"`
	Note         room.Note `json:"note"`
}

type stateUpdateEvent struct {
	Type   string          `json:"type"`
	Update json.RawMessage `json:"update"`
}

type drawingEvent struct {
	Type    string          `json:"type"`
	Drawing json.RawMessage `json:"drawing"`
}

type drawingsEvent struct {
	Type     string            `json:"type"`
	Drawings []json.RawMessage `json:"drawings"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func nowUTC() time.Time { return time.Now().UTC() }
