// Package client is the headless conferencing client: it dials the relay,
// runs the negotiation state machines through a peer.Manager and exposes
// room, chat and media operations for embedding, e.g. by cmd/agent.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/meshconf/meshconf/internal/api"
	"github.com/meshconf/meshconf/internal/peer"
)

const defaultNegotiationTimeout = 30 * time.Second

// Options tunes a Client beyond the relay URL.
type Options struct {
	NegotiationTimeout time.Duration

	// OnChat fires for every chat message in the joined room, the client's
	// own messages included, after the relay stamped identity and timestamp.
	OnChat func(api.ChatMessage)

	// OnRooms fires with the reply to ListRooms.
	OnRooms func([]api.RoomSummary)

	// OnRemoteTrack fires once per inbound media track.
	OnRemoteTrack func(remote api.ConnectionID, track *webrtc.TrackRemote)

	// OnParticipantJoined and OnParticipantLeft observe roster changes after
	// the peer manager processed them.
	OnParticipantJoined func(api.Participant)
	OnParticipantLeft   func(api.ConnectionID)
}

// Client is one signaling connection plus its peer links.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	id       api.ConnectionID
	pcConfig api.PeerConnectionConfig
	peers    *peer.Manager
	opts     Options

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the relay, waits for the init handshake and starts the
// read loop. The relay URL may use an http(s) or ws(s) scheme.
func Dial(relayURL string, opts Options) (*Client, error) {
	if opts.NegotiationTimeout == 0 {
		opts.NegotiationTimeout = defaultNegotiationTimeout
	}

	conn, _, err := websocket.DefaultDialer.Dial(signalingURL(relayURL), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	var init api.Message
	if err := conn.ReadJSON(&init); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read init: %w", err)
	}
	if init.Event != api.MessageEventInit || init.Init == nil {
		_ = conn.Close()
		return nil, errors.New("relay did not send init")
	}

	engine, err := peer.NewEngine()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Client{
		conn:     conn,
		id:       init.Init.ConnectionID,
		pcConfig: init.Init.PcConfig,
		opts:     opts,
		done:     make(chan struct{}),
	}
	c.peers = peer.NewManager(engine, (*signaler)(c), peer.Config{
		Self:               c.id,
		PcConfig:           init.Init.PcConfig.ToWebRTC(),
		NegotiationTimeout: opts.NegotiationTimeout,
		OnRemoteTrack:      opts.OnRemoteTrack,
	})

	slog.Info("connected to relay", "connectionID", c.id)
	go c.readLoop()
	return c, nil
}

// ConnectionID is the relay-assigned identity of this connection.
func (c *Client) ConnectionID() api.ConnectionID {
	return c.id
}

// Peers exposes the link manager, e.g. for wiring a media.Controller.
func (c *Client) Peers() *peer.Manager {
	return c.peers
}

// Done closes when the signaling connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// JoinRoom enters a room. Negotiation with the current members starts when
// the roster reply arrives; install local tracks on Peers() first.
func (c *Client) JoinRoom(roomID, userID, displayName string) error {
	return c.writeJSON(api.Message{
		Event: api.MessageEventJoin,
		Join:  &api.JoinMessage{RoomID: roomID, UserID: userID, DisplayName: displayName},
	})
}

// SendChat broadcasts a chat message to the room. The echo with stamped
// identity comes back through OnChat.
func (c *Client) SendChat(roomID, message string) error {
	return c.writeJSON(api.Message{
		Event: api.MessageEventChat,
		Chat:  &api.ChatMessage{RoomID: roomID, Message: message},
	})
}

// LeaveRoom exits the room and releases every peer link. Safe to call when
// not in the room.
func (c *Client) LeaveRoom(roomID string) error {
	err := c.writeJSON(api.Message{
		Event: api.MessageEventLeave,
		Leave: &api.LeaveMessage{RoomID: roomID},
	})
	c.peers.ReleaseAll()
	return err
}

// ListRooms requests a room snapshot; the reply arrives through OnRooms.
func (c *Client) ListRooms() error {
	return c.writeJSON(api.Message{Event: api.MessageEventListRooms})
}

// Close shuts the connection and all peer links down. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.peers.Close()
		_ = c.conn.Close()
	})
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		var msg api.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				slog.Warn("relay connection lost", "error", err)
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg api.Message) {
	switch msg.Event {
	case api.MessageEventRoomParticipants:
		if msg.Roster == nil {
			return
		}
		c.peers.HandleRoster(msg.Roster.Participants)
	case api.MessageEventParticipantJoined:
		if msg.Participant == nil {
			return
		}
		c.peers.HandleParticipantJoined(*msg.Participant)
		if c.opts.OnParticipantJoined != nil {
			c.opts.OnParticipantJoined(*msg.Participant)
		}
	case api.MessageEventParticipantLeft:
		if msg.Left == nil {
			return
		}
		c.peers.HandleParticipantLeft(msg.Left.ConnectionID)
		if c.opts.OnParticipantLeft != nil {
			c.opts.OnParticipantLeft(msg.Left.ConnectionID)
		}
	case api.MessageEventOffer:
		if msg.Session == nil {
			return
		}
		if err := c.peers.HandleOffer(msg.Session.From, msg.Session.SDP); err != nil {
			slog.Error("failed to handle offer", "remote", msg.Session.From, "error", err)
		}
	case api.MessageEventAnswer:
		if msg.Session == nil {
			return
		}
		if err := c.peers.HandleAnswer(msg.Session.From, msg.Session.SDP); err != nil {
			slog.Error("failed to handle answer", "remote", msg.Session.From, "error", err)
		}
	case api.MessageEventIce:
		if msg.Ice == nil || msg.Ice.Candidate == nil {
			return
		}
		if err := c.peers.HandleCandidate(msg.Ice.From, *msg.Ice.Candidate); err != nil {
			slog.Error("failed to handle candidate", "remote", msg.Ice.From, "error", err)
		}
	case api.MessageEventChat:
		if msg.Chat != nil && c.opts.OnChat != nil {
			c.opts.OnChat(*msg.Chat)
		}
	case api.MessageEventRoomsList:
		if c.opts.OnRooms != nil {
			c.opts.OnRooms(msg.Rooms)
		}
	case api.MessageEventPing:
		_ = c.writeJSON(api.Message{Event: api.MessageEventPong})
	default:
		slog.Debug("ignoring unknown event", "event", msg.Event)
	}
}

func (c *Client) writeJSON(msg api.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// signaler adapts the Client to peer.Signaler without widening its API.
type signaler Client

func (s *signaler) SendOffer(to api.ConnectionID, sdp webrtc.SessionDescription) error {
	return (*Client)(s).writeJSON(api.Message{
		Event:   api.MessageEventOffer,
		Session: &api.SessionMessage{Target: to, SDP: sdp},
	})
}

func (s *signaler) SendAnswer(to api.ConnectionID, sdp webrtc.SessionDescription) error {
	return (*Client)(s).writeJSON(api.Message{
		Event:   api.MessageEventAnswer,
		Session: &api.SessionMessage{Target: to, SDP: sdp},
	})
}

func (s *signaler) SendCandidate(to api.ConnectionID, candidate webrtc.ICECandidateInit) error {
	return (*Client)(s).writeJSON(api.Message{
		Event: api.MessageEventIce,
		Ice:   &api.IceMessage{Target: to, Candidate: &candidate},
	})
}

// signalingURL converts an http(s) base URL into the ws(s) socket endpoint.
func signalingURL(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/")
	if strings.HasPrefix(u, "http") {
		u = "ws" + u[4:]
	}
	return u + "/ws/rooms"
}
