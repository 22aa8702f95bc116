package service

import (
	"time"

	"github.com/meshconf/meshconf/internal/domain"
)

// AnonymousDisplayName is stamped on chat from senders the registry cannot
// resolve, e.g. when a chat frame races the sender's own leave.
const AnonymousDisplayName = "Anonymous"

// RoomService owns room membership semantics on top of a RoomRegistry.
// The signalling layer calls it and never touches the registry directly.
type RoomService struct {
	registry domain.RoomRegistry
	now      func() int64 // chat wall clock, milliseconds; swappable in tests
}

func NewRoomService(registry domain.RoomRegistry) *RoomService {
	return &RoomService{
		registry: registry,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Join registers the participant and returns the roster of everyone already
// in the room, in join order.
func (s *RoomService) Join(roomID string, p domain.Participant) ([]domain.Participant, error) {
	p.JoinedAt = time.Now()
	if err := s.registry.Join(roomID, p); err != nil {
		return nil, err
	}
	return s.registry.ListOthers(roomID, p.ConnectionID), nil
}

func (s *RoomService) Leave(roomID, connectionID string) (int, bool) {
	return s.registry.Leave(roomID, connectionID)
}

func (s *RoomService) Disconnect(connectionID string) []domain.Membership {
	return s.registry.RemoveConnection(connectionID)
}

func (s *RoomService) Others(roomID, connectionID string) []domain.Participant {
	return s.registry.ListOthers(roomID, connectionID)
}

// Chat resolves the sender's identity and stamps the message with a per-room
// non-decreasing server timestamp. Unresolved senders become Anonymous.
func (s *RoomService) Chat(roomID, connectionID, message string) domain.ChatEvent {
	event := domain.ChatEvent{
		RoomID:       roomID,
		ConnectionID: connectionID,
		Message:      message,
		DisplayName:  AnonymousDisplayName,
		Timestamp:    s.registry.StampChat(roomID, s.now()),
	}
	if p, ok := s.registry.Get(roomID, connectionID); ok {
		event.UserID = p.UserID
		event.DisplayName = p.DisplayName
	}
	return event
}

func (s *RoomService) Rooms() []domain.RoomInfo {
	return s.registry.Rooms()
}
