package domain

import (
	"errors"
	"time"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
)

// Participant is one joined connection. The registry is the only owner of
// Participant records; everything else gets copies.
type Participant struct {
	ConnectionID string
	UserID       string
	DisplayName  string
	JoinedAt     time.Time
}

// RoomInfo is a read-only snapshot of a room, participants in join order.
type RoomInfo struct {
	ID           string
	Participants []Participant
}

// Membership reports one room a connection was removed from and how many
// participants remain there.
type Membership struct {
	RoomID    string
	Remaining int
}

// ChatEvent is a chat message after the relay stamped sender identity and a
// server timestamp onto it.
type ChatEvent struct {
	RoomID       string
	ConnectionID string
	UserID       string
	DisplayName  string
	Message      string
	Timestamp    int64
}

// RoomRegistry tracks which connection sits in which room. Rooms are created
// lazily on first join and deleted when their last participant leaves. A
// connection belongs to at most one room at a time; RemoveConnection still
// tolerates membership drift and purges everything it finds.
type RoomRegistry interface {
	// Join upserts the participant. Re-joining with the same connection ID
	// overwrites the existing entry and is not an error.
	Join(roomID string, p Participant) error

	// Leave removes the participant and deletes the room if it became empty.
	// Leaving an unknown room or connection is a no-op with removed == false.
	Leave(roomID, connectionID string) (remaining int, removed bool)

	// ListOthers returns the room's participants in join order, excluding
	// connectionID. Unknown rooms yield an empty roster.
	ListOthers(roomID, connectionID string) []Participant

	// Get resolves a participant inside a room.
	Get(roomID, connectionID string) (Participant, bool)

	// RemoveConnection purges the connection from every room it belongs to.
	RemoveConnection(connectionID string) []Membership

	// StampChat returns a per-room chat timestamp that never decreases,
	// given the caller's wall clock reading in milliseconds.
	StampChat(roomID string, now int64) int64

	// Rooms snapshots all active rooms.
	Rooms() []RoomInfo
}
