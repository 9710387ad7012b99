package room

import "time"

// Note is a geo-pinned text note. MeetingFile is set on the system note
// created when a meeting ends, naming the persisted transcript artifact.
type Note struct {
	ID           string    `json:"id"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	LocationName string    `json:"locationName,omitempty"`
	Text         string    `json:"text"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	MeetingFile  string    `json:"meetingFile,omitempty"`
}
