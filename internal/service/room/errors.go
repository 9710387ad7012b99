package room

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrMissingCoordinates = errors.New("meeting requires lat and lng")
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrAlreadyJoined      = errors.New("already a participant of this meeting")
	ErrNotParticipant     = errors.New("not a participant of this meeting")
)
