package room

import "time"

// ChatMessage is one record in the shared room history. AI responses reuse
// the same shape with InReplyTo pointing at the triggering message.
type ChatMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	InReplyTo string    `json:"inReplyTo,omitempty"`
}
