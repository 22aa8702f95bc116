package api

import "github.com/pion/webrtc/v4"

type MessageEvent string

// Client -> relay events.
const (
	MessageEventJoin      = MessageEvent("join-room")
	MessageEventOffer     = MessageEvent("offer")
	MessageEventAnswer    = MessageEvent("answer")
	MessageEventIce       = MessageEvent("ice-candidate")
	MessageEventChat      = MessageEvent("chat-message")
	MessageEventLeave     = MessageEvent("leave-room")
	MessageEventListRooms = MessageEvent("list-rooms")
	MessageEventPong      = MessageEvent("pong")
)

// Relay -> client events. Offer, answer, ice-candidate and chat-message are
// reused in this direction with the origin stamped by the relay.
const (
	MessageEventInit              = MessageEvent("init")
	MessageEventRoomParticipants  = MessageEvent("room-participants")
	MessageEventParticipantJoined = MessageEvent("participant-joined")
	MessageEventParticipantLeft   = MessageEvent("participant-left")
	MessageEventRoomsList         = MessageEvent("rooms-list")
	MessageEventPing              = MessageEvent("ping")
)

// Message is the envelope for every frame on the signaling socket. Exactly one
// payload field matching Event is set; the rest stay nil.
type Message struct {
	Event       MessageEvent    `json:"event"`
	Init        *InitMessage    `json:"init,omitempty"`
	Join        *JoinMessage    `json:"join,omitempty"`
	Roster      *RosterMessage  `json:"roster,omitempty"`
	Participant *Participant    `json:"participant,omitempty"`
	Left        *LeftMessage    `json:"left,omitempty"`
	Session     *SessionMessage `json:"session,omitempty"`
	Ice         *IceMessage     `json:"ice,omitempty"`
	Chat        *ChatMessage    `json:"chat,omitempty"`
	Leave       *LeaveMessage   `json:"leave,omitempty"`
	Rooms       []RoomSummary   `json:"rooms,omitempty"`
	Ping        *PingMessage    `json:"ping,omitempty"`
}

// InitMessage is the first frame the relay sends on a new connection.
type InitMessage struct {
	ConnectionID ConnectionID         `json:"connectionId"`
	PcConfig     PeerConnectionConfig `json:"pcConfig"`
	PingInterval int                  `json:"pingInterval"`
}

type JoinMessage struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type RosterMessage struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
}

type LeftMessage struct {
	ConnectionID ConnectionID `json:"connectionId"`
}

// SessionMessage carries an SDP offer or answer. The relay treats the payload
// as opaque and routes on Target only; From is stamped on forwarding.
type SessionMessage struct {
	RoomID string                    `json:"roomId"`
	Target ConnectionID              `json:"targetConnectionId"`
	From   ConnectionID              `json:"fromConnectionId"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

type IceMessage struct {
	Target    ConnectionID             `json:"targetConnectionId"`
	From      ConnectionID             `json:"fromConnectionId"`
	Candidate *webrtc.ICECandidateInit `json:"candidate"`
}

type ChatMessage struct {
	RoomID      string       `json:"roomId"`
	Message     string       `json:"message"`
	From        ConnectionID `json:"fromConnectionId"`
	UserID      string       `json:"userId"`
	DisplayName string       `json:"displayName"`
	Timestamp   int64        `json:"timestamp"`
}

type LeaveMessage struct {
	RoomID string `json:"roomId"`
}

type PingMessage struct {
	Timestamp int64 `json:"timestamp"`
}
