package service

import (
	"testing"

	"github.com/meshconf/meshconf/internal/domain"
	"github.com/meshconf/meshconf/internal/repository/memory"
)

func newService() *RoomService {
	return NewRoomService(memory.NewRoomRegistry())
}

func TestJoinReturnsRosterWithoutSelf(t *testing.T) {
	s := newService()

	roster, err := s.Join("r1", domain.Participant{ConnectionID: "a", UserID: "u-a", DisplayName: "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != 0 {
		t.Fatalf("first joiner must see an empty roster, got %v", roster)
	}

	roster, err = s.Join("r1", domain.Participant{ConnectionID: "b", UserID: "u-b", DisplayName: "Bob"})
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != 1 || roster[0].ConnectionID != "a" {
		t.Fatalf("second joiner must see the first, got %v", roster)
	}
}

func TestChatResolvesSenderIdentity(t *testing.T) {
	s := newService()
	_, _ = s.Join("r1", domain.Participant{ConnectionID: "a", UserID: "u-a", DisplayName: "Alice"})

	event := s.Chat("r1", "a", "hi")
	if event.UserID != "u-a" || event.DisplayName != "Alice" {
		t.Fatalf("expected resolved identity, got %+v", event)
	}
	if event.Message != "hi" || event.RoomID != "r1" {
		t.Fatalf("chat payload mangled: %+v", event)
	}
}

func TestChatFallsBackToAnonymous(t *testing.T) {
	s := newService()
	_, _ = s.Join("r1", domain.Participant{ConnectionID: "a", UserID: "u-a", DisplayName: "Alice"})

	event := s.Chat("r1", "ghost", "boo")
	if event.DisplayName != AnonymousDisplayName {
		t.Fatalf("expected %q, got %q", AnonymousDisplayName, event.DisplayName)
	}
	if event.UserID != "" {
		t.Fatalf("unresolved sender must have no user ID, got %q", event.UserID)
	}
}

func TestChatTimestampsNeverDecrease(t *testing.T) {
	s := newService()
	_, _ = s.Join("r1", domain.Participant{ConnectionID: "a", UserID: "u-a", DisplayName: "Alice"})

	// Simulate a wall clock that jumps backwards between messages.
	clock := []int64{1000, 900, 1100}
	i := 0
	s.now = func() int64 { v := clock[i]; i++; return v }

	var last int64
	for range clock {
		event := s.Chat("r1", "a", "tick")
		if event.Timestamp < last {
			t.Fatalf("timestamp decreased: %d after %d", event.Timestamp, last)
		}
		last = event.Timestamp
	}
}

func TestDisconnectReportsEachRoomOnce(t *testing.T) {
	s := newService()
	_, _ = s.Join("r1", domain.Participant{ConnectionID: "a", DisplayName: "Alice"})
	_, _ = s.Join("r1", domain.Participant{ConnectionID: "b", DisplayName: "Bob"})

	memberships := s.Disconnect("b")
	if len(memberships) != 1 || memberships[0].RoomID != "r1" {
		t.Fatalf("expected single membership for r1, got %v", memberships)
	}
	if memberships[0].Remaining != 1 {
		t.Fatalf("expected 1 remaining, got %d", memberships[0].Remaining)
	}
}
