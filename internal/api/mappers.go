package api

import "github.com/meshconf/meshconf/internal/domain"

func ToApiParticipant(p domain.Participant) Participant {
	return Participant{
		ConnectionID: ConnectionID(p.ConnectionID),
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
	}
}

func ToApiParticipants(ps []domain.Participant) []Participant {
	out := make([]Participant, len(ps))
	for i, p := range ps {
		out[i] = ToApiParticipant(p)
	}
	return out
}

func ToApiRooms(rooms []domain.RoomInfo) []RoomSummary {
	out := make([]RoomSummary, len(rooms))
	for i, r := range rooms {
		out[i] = RoomSummary{RoomID: r.ID, Participants: ToApiParticipants(r.Participants)}
	}
	return out
}
