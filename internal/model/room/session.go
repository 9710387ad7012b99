package room

import "time"

// Conn is the transport side of a session. *websocket.Conn satisfies it;
// tests substitute an in-memory fake.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// UserType distinguishes human participants from the AI participant.
type UserType string

const (
	UserTypeHuman UserType = "human"
	UserTypeAI    UserType = "ai"
)

// Location is a point on the map, optionally named by reverse geocoding.
type Location struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name,omitempty"`
}

// Session captures one live connection and its asserted identity. User ids
// are client-asserted and not unique: several sessions may claim the same id.
type Session struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId"`
	UserType   UserType          `json:"userType"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Location   *Location         `json:"location,omitempty"`
	Status     string            `json:"status,omitempty"`
	JoinedAt   time.Time         `json:"joinedAt"`
	LastActive time.Time         `json:"lastActive"`

	Conn Conn `json:"-"`
}

// PresenceEntry is the per-user slice of a presence broadcast.
type PresenceEntry struct {
	UserID     string    `json:"userId"`
	UserType   UserType  `json:"userType"`
	Location   *Location `json:"location,omitempty"`
	Status     string    `json:"status,omitempty"`
	LastActive time.Time `json:"lastActive"`
}
