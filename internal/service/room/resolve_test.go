package room

import (
	"testing"

	"github.com/gathermap/backend/internal/model/room"
)

func TestResolveMeetingAmbiguousPrefixPrefersEarliest(t *testing.T) {
	s := &Service{meetings: map[string]*room.Meeting{
		"ab12-second": {ID: "ab12-second", Seq: 2},
		"ab12-first":  {ID: "ab12-first", Seq: 1},
		"cd34-other":  {ID: "cd34-other", Seq: 3},
	}}

	m := s.resolveMeetingLocked("ab12")
	if m == nil || m.ID != "ab12-first" {
		t.Fatalf("ambiguous prefix must resolve to the earliest-started meeting, got %v", m)
	}

	// An exact id wins even when it is also a prefix of nothing else.
	if m := s.resolveMeetingLocked("ab12-second"); m == nil || m.ID != "ab12-second" {
		t.Fatalf("exact id must resolve directly, got %v", m)
	}

	if s.resolveMeetingLocked("") != nil {
		t.Fatal("empty id must not resolve")
	}
	if s.resolveMeetingLocked("zz") != nil {
		t.Fatal("unmatched prefix must not resolve")
	}
}
