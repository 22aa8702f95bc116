package memory

import (
	"sync"

	"github.com/meshconf/meshconf/internal/domain"
	"github.com/meshconf/meshconf/internal/metrics"
)

type roomRecord struct {
	participants map[string]domain.Participant
	order        []string // connection IDs in join order
	lastChat     int64
}

// RoomRegistry is the in-memory implementation of domain.RoomRegistry.
// All state lives in process memory and is reset on relay restart.
type RoomRegistry struct {
	mu      sync.RWMutex
	rooms   map[string]*roomRecord
	byConn  map[string]string // connection ID -> room ID
	members int
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]*roomRecord),
		byConn: make(map[string]string),
	}
}

func (r *RoomRegistry) Join(roomID string, p domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A connection sits in at most one room; a join while still a member
	// elsewhere implicitly leaves the old room first.
	if prev, ok := r.byConn[p.ConnectionID]; ok && prev != roomID {
		r.removeLocked(prev, p.ConnectionID)
	}

	room, ok := r.rooms[roomID]
	if !ok {
		room = &roomRecord{participants: make(map[string]domain.Participant)}
		r.rooms[roomID] = room
		metrics.RoomsCreatedTotal.Inc()
	}

	if _, rejoin := room.participants[p.ConnectionID]; !rejoin {
		room.order = append(room.order, p.ConnectionID)
		r.members++
	}
	room.participants[p.ConnectionID] = p
	r.byConn[p.ConnectionID] = roomID

	r.updateGauges()
	return nil
}

func (r *RoomRegistry) Leave(roomID, connectionID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return 0, false
	}
	if _, ok := room.participants[connectionID]; !ok {
		return len(room.participants), false
	}

	remaining := r.removeLocked(roomID, connectionID)
	r.updateGauges()
	return remaining, true
}

// removeLocked deletes the participant and, if the room empties, the room.
// Returns the remaining participant count.
func (r *RoomRegistry) removeLocked(roomID, connectionID string) int {
	room := r.rooms[roomID]
	delete(room.participants, connectionID)
	for i, id := range room.order {
		if id == connectionID {
			room.order = append(room.order[:i], room.order[i+1:]...)
			break
		}
	}
	delete(r.byConn, connectionID)
	r.members--

	if len(room.participants) == 0 {
		delete(r.rooms, roomID)
		metrics.RoomsDeletedTotal.Inc()
		return 0
	}
	return len(room.participants)
}

func (r *RoomRegistry) ListOthers(roomID, connectionID string) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}

	others := make([]domain.Participant, 0, len(room.order))
	for _, id := range room.order {
		if id == connectionID {
			continue
		}
		others = append(others, room.participants[id])
	}
	return others
}

func (r *RoomRegistry) Get(roomID, connectionID string) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return domain.Participant{}, false
	}
	p, ok := room.participants[connectionID]
	return p, ok
}

func (r *RoomRegistry) RemoveConnection(connectionID string) []domain.Membership {
	r.mu.Lock()
	defer r.mu.Unlock()

	var memberships []domain.Membership
	// byConn holds the expected single membership, but the contract tolerates
	// drift, so sweep every room.
	for roomID, room := range r.rooms {
		if _, ok := room.participants[connectionID]; !ok {
			continue
		}
		remaining := r.removeLocked(roomID, connectionID)
		memberships = append(memberships, domain.Membership{RoomID: roomID, Remaining: remaining})
	}

	r.updateGauges()
	return memberships
}

func (r *RoomRegistry) StampChat(roomID string, now int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return now
	}
	if now < room.lastChat {
		now = room.lastChat
	}
	room.lastChat = now
	return now
}

func (r *RoomRegistry) Rooms() []domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]domain.RoomInfo, 0, len(r.rooms))
	for roomID, room := range r.rooms {
		info := domain.RoomInfo{ID: roomID}
		for _, id := range room.order {
			info.Participants = append(info.Participants, room.participants[id])
		}
		rooms = append(rooms, info)
	}
	return rooms
}

func (r *RoomRegistry) updateGauges() {
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	metrics.ActiveParticipants.Set(float64(r.members))
}
