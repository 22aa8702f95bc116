package peer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/meshconf/meshconf/internal/api"
	"github.com/meshconf/meshconf/internal/metrics"
	"github.com/meshconf/meshconf/internal/utils"
)

const DefaultPLIInterval = 3 * time.Second

// Signaler carries negotiation messages to one remote participant through
// the relay. The Manager never talks to the socket directly.
type Signaler interface {
	SendOffer(to api.ConnectionID, sdp webrtc.SessionDescription) error
	SendAnswer(to api.ConnectionID, sdp webrtc.SessionDescription) error
	SendCandidate(to api.ConnectionID, candidate webrtc.ICECandidateInit) error
}

// Config tunes a Manager. Self must be the connection ID the relay assigned
// in init; the glare tie-break depends on it.
type Config struct {
	Self               api.ConnectionID
	PcConfig           webrtc.Configuration
	NegotiationTimeout time.Duration
	PLIInterval        time.Duration

	// OnRemoteTrack fires once per inbound track, after link bookkeeping.
	OnRemoteTrack func(remote api.ConnectionID, track *webrtc.TrackRemote)
}

// Manager runs one Link per remote participant. Every participant that
// discovers a peer offers to it; when two offers cross, the side with the
// lexicographically smaller connection ID keeps its offer and the other side
// throws its own attempt away and answers instead.
type Manager struct {
	engine   *webrtc.API
	signaler Signaler
	cfg      Config

	mu         sync.Mutex
	links      map[api.ConnectionID]*Link
	localVideo webrtc.TrackLocal
	localAudio webrtc.TrackLocal
	closed     bool
}

func NewManager(engine *webrtc.API, signaler Signaler, cfg Config) *Manager {
	if cfg.PLIInterval == 0 {
		cfg.PLIInterval = DefaultPLIInterval
	}
	return &Manager{
		engine:   engine,
		signaler: signaler,
		cfg:      cfg,
		links:    make(map[api.ConnectionID]*Link),
	}
}

// SetLocalTracks installs the tracks attached to every link created from now
// on. Call it before joining a room; use ReplaceVideoTrack/ReplaceAudioTrack
// for links that already exist.
func (m *Manager) SetLocalTracks(video, audio webrtc.TrackLocal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localVideo = video
	m.localAudio = audio
}

// HandleRoster offers to every participant already in the room.
func (m *Manager) HandleRoster(participants []api.Participant) {
	for _, p := range participants {
		if err := m.initiate(p.ConnectionID); err != nil {
			slog.Error("failed to open link", "remote", p.ConnectionID, "error", err)
		}
	}
}

// HandleParticipantJoined offers to a participant that joined after us. The
// newcomer offers too; glare resolution picks the survivor.
func (m *Manager) HandleParticipantJoined(p api.Participant) {
	if err := m.initiate(p.ConnectionID); err != nil {
		slog.Error("failed to open link", "remote", p.ConnectionID, "error", err)
	}
}

func (m *Manager) initiate(remote api.ConnectionID) error {
	m.mu.Lock()
	if m.closed || m.links[remote] != nil {
		m.mu.Unlock()
		return nil
	}
	link, err := m.newPeer(remote)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.links[remote] = link
	m.mu.Unlock()

	if err := link.transition(StateNegotiating); err != nil {
		return err
	}

	offer, err := link.pc.CreateOffer(nil)
	if err != nil {
		m.teardown(remote, "negotiation")
		return fmt.Errorf("create offer for %s: %w", remote, err)
	}
	if err := link.pc.SetLocalDescription(offer); err != nil {
		m.teardown(remote, "negotiation")
		return fmt.Errorf("set local offer for %s: %w", remote, err)
	}
	link.markLocalDescriptionSent()
	if err := m.signaler.SendOffer(remote, offer); err != nil {
		m.teardown(remote, "negotiation")
		return err
	}

	m.armNegotiationTimer(link)
	slog.Debug("offer sent", "remote", remote)
	return nil
}

// HandleOffer answers an inbound offer, resolving glare first when our own
// offer to the same participant is still in flight.
func (m *Manager) HandleOffer(from api.ConnectionID, sdp webrtc.SessionDescription) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	existing := m.links[from]
	if existing != nil && existing.awaitingAnswer() {
		if m.cfg.Self < from {
			// We are the designated offerer; the peer discards its own
			// attempt and answers ours. Ignore the crossed offer.
			m.mu.Unlock()
			slog.Debug("glare: ignoring crossed offer", "remote", from)
			return nil
		}
		// The peer is the designated offerer. Throw our attempt away and
		// answer theirs on a fresh connection.
		delete(m.links, from)
		m.mu.Unlock()
		existing.close()
		slog.Debug("glare: discarding own offer, answering", "remote", from)
		m.mu.Lock()
		existing = nil
	}

	if existing != nil {
		m.mu.Unlock()
		return m.renegotiate(existing, sdp)
	}

	link, err := m.newPeer(from)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.links[from] = link
	m.mu.Unlock()

	if err := link.transition(StateNegotiating); err != nil {
		return err
	}
	if err := m.answer(link, sdp); err != nil {
		m.teardown(from, "negotiation")
		return err
	}
	m.armNegotiationTimer(link)
	return nil
}

// renegotiate applies a follow-up offer on an established link, e.g. after
// the remote side changed its tracks in a way substitution could not cover.
func (m *Manager) renegotiate(link *Link, sdp webrtc.SessionDescription) error {
	if link.State() == StateConnected {
		if err := link.transition(StateNegotiating); err != nil {
			return err
		}
	}
	if err := m.answer(link, sdp); err != nil {
		m.teardown(link.remote, "negotiation")
		return err
	}
	return nil
}

func (m *Manager) answer(link *Link, offer webrtc.SessionDescription) error {
	if err := link.setRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := link.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer for %s: %w", link.remote, err)
	}
	if err := link.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer for %s: %w", link.remote, err)
	}
	link.markLocalDescriptionSent()
	if err := m.signaler.SendAnswer(link.remote, answer); err != nil {
		return err
	}
	slog.Debug("answer sent", "remote", link.remote)
	return nil
}

// HandleAnswer completes a negotiation we initiated. Answers for unknown or
// already-settled links are dropped; they lose races with leave as a matter
// of course.
func (m *Manager) HandleAnswer(from api.ConnectionID, sdp webrtc.SessionDescription) error {
	m.mu.Lock()
	link := m.links[from]
	m.mu.Unlock()
	if link == nil {
		slog.Debug("dropping answer from unknown link", "remote", from)
		return nil
	}
	if !link.awaitingAnswer() {
		slog.Debug("dropping unexpected answer", "remote", from, "state", link.State())
		return nil
	}
	return link.setRemoteDescription(sdp)
}

// HandleCandidate routes a remote candidate to its link. Candidates arriving
// before the link's remote description are queued inside the link.
func (m *Manager) HandleCandidate(from api.ConnectionID, candidate webrtc.ICECandidateInit) error {
	m.mu.Lock()
	link := m.links[from]
	m.mu.Unlock()
	if link == nil {
		slog.Debug("dropping candidate from unknown link", "remote", from)
		return nil
	}
	return link.addRemoteCandidate(candidate)
}

// HandleParticipantLeft releases the link and everything it holds.
func (m *Manager) HandleParticipantLeft(from api.ConnectionID) {
	m.mu.Lock()
	link := m.links[from]
	delete(m.links, from)
	m.mu.Unlock()
	if link != nil {
		link.close()
		slog.Debug("link released", "remote", from)
	}
}

// ReleaseAll closes every link but keeps the manager usable, e.g. when the
// client leaves a room and may join another. Idempotent.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	links := make([]*Link, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, link)
	}
	m.links = make(map[api.ConnectionID]*Link)
	m.mu.Unlock()

	for _, link := range links {
		link.close()
	}
}

// Close tears down every link. Safe to call repeatedly; a Manager cannot be
// reused after Close.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.ReleaseAll()
}

// ReplaceVideoTrack substitutes the outgoing video track on every active
// link without renegotiation. Passing nil stops sending video; passing a
// track resumes it. New links pick the track up on creation.
func (m *Manager) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localVideo = track
	var firstErr error
	for remote, link := range m.links {
		if link.videoSender == nil {
			continue
		}
		if err := link.videoSender.ReplaceTrack(track); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("replace video track for %s: %w", remote, err)
		}
	}
	return firstErr
}

// ReplaceAudioTrack is ReplaceVideoTrack for the audio sender.
func (m *Manager) ReplaceAudioTrack(track webrtc.TrackLocal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localAudio = track
	var firstErr error
	for remote, link := range m.links {
		if link.audioSender == nil {
			continue
		}
		if err := link.audioSender.ReplaceTrack(track); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("replace audio track for %s: %w", remote, err)
		}
	}
	return firstErr
}

// LinkState reports the state of the link to one remote, StateClosed when no
// link exists.
func (m *Manager) LinkState(remote api.ConnectionID) State {
	m.mu.Lock()
	link := m.links[remote]
	m.mu.Unlock()
	if link == nil {
		return StateClosed
	}
	return link.State()
}

// LinkCount reports how many links are in the active set.
func (m *Manager) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// newPeer builds a peer connection with local tracks attached and all
// callbacks wired. Caller holds m.mu.
func (m *Manager) newPeer(remote api.ConnectionID) (*Link, error) {
	pc, err := m.engine.NewPeerConnection(m.cfg.PcConfig)
	if err != nil {
		return nil, fmt.Errorf("new peer connection for %s: %w", remote, err)
	}
	link := newLink(remote, pc)

	if m.localVideo != nil {
		sender, err := pc.AddTrack(m.localVideo)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add video track for %s: %w", remote, err)
		}
		link.videoSender = sender
	}
	if m.localAudio != nil {
		sender, err := pc.AddTrack(m.localAudio)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add audio track for %s: %w", remote, err)
		}
		link.audioSender = sender
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		if err := m.signaler.SendCandidate(remote, candidate.ToJSON()); err != nil {
			slog.Warn("failed to send candidate", "remote", remote, "error", err)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		slog.Info("remote track", "remote", remote, "kind", track.Kind(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			ssrc := uint32(track.SSRC())
			link.addPliTimer(utils.SetIntervalTimer(m.cfg.PLIInterval, func() {
				if err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}); err != nil {
					slog.Debug("failed to send PLI", "remote", remote, "error", err)
				}
			}))
		}
		if m.cfg.OnRemoteTrack != nil {
			m.cfg.OnRemoteTrack(remote, track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("connection state", "remote", remote, "state", state)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			link.stopNegotiationTimer()
			if err := link.transition(StateConnected); err != nil {
				slog.Debug("late connected signal", "remote", remote, "error", err)
			}
		case webrtc.PeerConnectionStateFailed:
			m.teardown(remote, "transport")
		}
	})

	return link, nil
}

func (m *Manager) armNegotiationTimer(link *Link) {
	if m.cfg.NegotiationTimeout <= 0 {
		return
	}
	remote := link.remote
	link.startNegotiationTimer(m.cfg.NegotiationTimeout, func() {
		if link.State() != StateNegotiating {
			return
		}
		slog.Warn("negotiation timed out", "remote", remote, "timeout", m.cfg.NegotiationTimeout)
		m.teardown(remote, "timeout")
	})
}

// teardown removes and closes one link after a failure.
func (m *Manager) teardown(remote api.ConnectionID, reason string) {
	m.mu.Lock()
	link := m.links[remote]
	delete(m.links, remote)
	m.mu.Unlock()
	if link == nil {
		return
	}
	link.close()
	metrics.PeerLinkFailuresTotal.WithLabelValues(reason).Inc()
}
