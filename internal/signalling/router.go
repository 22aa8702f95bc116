package signalling

import (
	"log/slog"
	"sync"

	"github.com/meshconf/meshconf/internal/api"
	"github.com/meshconf/meshconf/internal/domain"
	"github.com/meshconf/meshconf/internal/metrics"
	"github.com/meshconf/meshconf/internal/service"
	"github.com/meshconf/meshconf/internal/utils"
)

// Sender delivers a relay-to-client message to one connection. It reports
// false when the connection is unknown or its queue rejected the message.
type Sender interface {
	Send(id api.ConnectionID, msg api.Message) bool
}

// Router dispatches every inbound frame. Offers, answers and candidates are
// forwarded verbatim to their target with the origin stamped; the payloads are
// never inspected beyond the envelope.
type Router struct {
	rooms  *service.RoomService
	sender Sender

	// chatLocks serializes stamp-and-enqueue per room so receivers never
	// observe chat timestamps out of order. Rooms stay independent.
	chatLocks *utils.SyncMapWrapper[string, *sync.Mutex]
}

func NewRouter(rooms *service.RoomService, sender Sender) *Router {
	return &Router{
		rooms:     rooms,
		sender:    sender,
		chatLocks: utils.NewSyncMapWrapper[string, *sync.Mutex](),
	}
}

func (r *Router) HandleMessage(from api.ConnectionID, msg api.Message) {
	metrics.SignalMessagesTotal.WithLabelValues(string(msg.Event), "in").Inc()

	switch msg.Event {
	case api.MessageEventJoin:
		r.handleJoin(from, msg.Join)
	case api.MessageEventOffer, api.MessageEventAnswer:
		r.forwardSession(msg.Event, from, msg.Session)
	case api.MessageEventIce:
		r.forwardIce(from, msg.Ice)
	case api.MessageEventChat:
		r.handleChat(from, msg.Chat)
	case api.MessageEventLeave:
		r.handleLeave(from, msg.Leave)
	case api.MessageEventListRooms:
		r.handleListRooms(from)
	case api.MessageEventPong:
		// keepalive reply, nothing to do
	default:
		r.drop("malformed", from, msg.Event, "unknown event")
	}
}

// HandleDisconnect removes the connection from every room it was in and
// notifies each room's remaining participants exactly once.
func (r *Router) HandleDisconnect(from api.ConnectionID) {
	for _, m := range r.rooms.Disconnect(string(from)) {
		r.notifyLeft(m.RoomID, from)
		if m.Remaining == 0 {
			r.chatLocks.Delete(m.RoomID)
		}
		slog.Info("participant disconnected", "connectionID", from, "roomID", m.RoomID, "remaining", m.Remaining)
	}
}

func (r *Router) handleJoin(from api.ConnectionID, join *api.JoinMessage) {
	if join == nil || join.RoomID == "" {
		r.drop("malformed", from, api.MessageEventJoin, "missing room")
		return
	}

	roster, err := r.rooms.Join(join.RoomID, domain.Participant{
		ConnectionID: string(from),
		UserID:       join.UserID,
		DisplayName:  join.DisplayName,
	})
	if err != nil {
		r.drop("malformed", from, api.MessageEventJoin, err.Error())
		return
	}

	r.sender.Send(from, api.Message{
		Event: api.MessageEventRoomParticipants,
		Roster: &api.RosterMessage{
			RoomID:       join.RoomID,
			Participants: api.ToApiParticipants(roster),
		},
	})

	joined := api.Participant{ConnectionID: from, UserID: join.UserID, DisplayName: join.DisplayName}
	for _, p := range roster {
		r.sender.Send(api.ConnectionID(p.ConnectionID), api.Message{
			Event:       api.MessageEventParticipantJoined,
			Participant: &joined,
		})
	}

	slog.Info("participant joined", "connectionID", from, "roomID", join.RoomID, "displayName", join.DisplayName)
}

func (r *Router) forwardSession(event api.MessageEvent, from api.ConnectionID, session *api.SessionMessage) {
	if session == nil {
		r.drop("malformed", from, event, "missing payload")
		return
	}
	if session.Target == "" {
		r.drop("missing_target", from, event, "no target connection")
		return
	}
	session.From = from
	if !r.sender.Send(session.Target, api.Message{Event: event, Session: session}) {
		r.drop("unknown_target", from, event, string(session.Target))
	}
}

func (r *Router) forwardIce(from api.ConnectionID, ice *api.IceMessage) {
	if ice == nil || ice.Candidate == nil {
		r.drop("malformed", from, api.MessageEventIce, "missing candidate")
		return
	}
	if ice.Target == "" {
		r.drop("missing_target", from, api.MessageEventIce, "no target connection")
		return
	}
	ice.From = from
	if !r.sender.Send(ice.Target, api.Message{Event: api.MessageEventIce, Ice: ice}) {
		r.drop("unknown_target", from, api.MessageEventIce, string(ice.Target))
	}
}

// handleChat stamps identity and timestamp server-side and fans the message
// out to every member of the room, the sender included when it is one. A
// sender that left (or never joined) gets no echo.
func (r *Router) handleChat(from api.ConnectionID, chat *api.ChatMessage) {
	if chat == nil || chat.RoomID == "" || chat.Message == "" {
		r.drop("malformed", from, api.MessageEventChat, "missing room or body")
		return
	}

	lock := r.roomChatLock(chat.RoomID)
	lock.Lock()
	defer lock.Unlock()

	event := r.rooms.Chat(chat.RoomID, string(from), chat.Message)
	out := api.Message{
		Event: api.MessageEventChat,
		Chat: &api.ChatMessage{
			RoomID:      event.RoomID,
			Message:     event.Message,
			From:        from,
			UserID:      event.UserID,
			DisplayName: event.DisplayName,
			Timestamp:   event.Timestamp,
		},
	}

	// The empty exclusion never matches a member, so this is the full room.
	for _, p := range r.rooms.Others(chat.RoomID, "") {
		r.sender.Send(api.ConnectionID(p.ConnectionID), out)
	}
	metrics.ChatMessagesTotal.Inc()
}

func (r *Router) roomChatLock(roomID string) *sync.Mutex {
	lock, _ := r.chatLocks.LoadOrStore(roomID, &sync.Mutex{})
	return lock
}

func (r *Router) handleLeave(from api.ConnectionID, leave *api.LeaveMessage) {
	if leave == nil || leave.RoomID == "" {
		r.drop("malformed", from, api.MessageEventLeave, "missing room")
		return
	}

	remaining := r.rooms.Others(leave.RoomID, string(from))
	count, removed := r.rooms.Leave(leave.RoomID, string(from))
	if !removed {
		return
	}
	if count == 0 {
		r.chatLocks.Delete(leave.RoomID)
	}
	left := api.Message{
		Event: api.MessageEventParticipantLeft,
		Left:  &api.LeftMessage{ConnectionID: from},
	}
	for _, p := range remaining {
		r.sender.Send(api.ConnectionID(p.ConnectionID), left)
	}
	slog.Info("participant left", "connectionID", from, "roomID", leave.RoomID)
}

func (r *Router) handleListRooms(from api.ConnectionID) {
	r.sender.Send(from, api.Message{
		Event: api.MessageEventRoomsList,
		Rooms: api.ToApiRooms(r.rooms.Rooms()),
	})
}

func (r *Router) notifyLeft(roomID string, who api.ConnectionID) {
	left := api.Message{
		Event: api.MessageEventParticipantLeft,
		Left:  &api.LeftMessage{ConnectionID: who},
	}
	for _, p := range r.rooms.Others(roomID, string(who)) {
		r.sender.Send(api.ConnectionID(p.ConnectionID), left)
	}
}

func (r *Router) drop(reason string, from api.ConnectionID, event api.MessageEvent, detail string) {
	metrics.DroppedMessagesTotal.WithLabelValues(reason).Inc()
	slog.Debug("dropping message", "reason", reason, "connectionID", from, "event", event, "detail", detail)
}
