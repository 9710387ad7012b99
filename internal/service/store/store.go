// Package store is the persistence adapter for the room relay. Blobs are
// opaque to the caller and last-write-wins: there is no versioning and no
// transaction spanning more than one key.
package store

import "errors"

// ErrNotFound is returned by Load when a key has never been saved.
var ErrNotFound = errors.New("store: key not found")

// Store persists room blobs (notes, shared state, drawings), the append-only
// chat log, and finalized meeting transcripts.
type Store interface {
	// Load returns the blob saved under key, or ErrNotFound.
	Load(key string) ([]byte, error)
	// Save overwrites the blob under key.
	Save(key string, data []byte) error
	// AppendLine appends one line to the log stored under key.
	AppendLine(key string, line string) error
	// SaveArtifact stores a finalized document under its own name,
	// separate from the blob keyspace.
	SaveArtifact(name string, data []byte) error
	Close() error
}

// Well-known blob keys.
const (
	KeyNotes    = "notes"
	KeyState    = "state"
	KeyDrawings = "drawings"
	KeyChatLog  = "chatlog"
)
