package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/meshconf/meshconf/internal/api"
	"github.com/meshconf/meshconf/internal/metrics"
	"github.com/meshconf/meshconf/internal/utils"
)

// State is the negotiation state of a Link.
type State string

const (
	StateIdle        = State("idle")
	StateNegotiating = State("negotiating")
	StateConnected   = State("connected")
	StateClosed      = State("closed")
)

var validTransitions = map[State]map[State]bool{
	StateIdle:        {StateNegotiating: true, StateClosed: true},
	StateNegotiating: {StateConnected: true, StateClosed: true},
	StateConnected:   {StateNegotiating: true, StateClosed: true},
	StateClosed:      {},
}

// RejectedTransitionError reports a state change the Link machine does not
// allow, e.g. connecting a link that was already closed.
type RejectedTransitionError struct {
	Remote api.ConnectionID
	From   State
	To     State
}

func (e *RejectedTransitionError) Error() string {
	return fmt.Sprintf("peer link %s: transition %s -> %s rejected", e.Remote, e.From, e.To)
}

// Link is one negotiation with one remote participant. The Manager owns the
// map of links; a Link owns its peer connection and everything hanging off it.
type Link struct {
	remote api.ConnectionID
	pc     *webrtc.PeerConnection

	mu                   sync.Mutex
	state                State
	localDescriptionSent bool
	remoteDescriptionSet bool
	pendingRemote        []webrtc.ICECandidateInit
	videoSender          *webrtc.RTPSender
	audioSender          *webrtc.RTPSender
	negotiationTimer     *time.Timer
	pliTimers            []utils.IntervalTimer
}

func newLink(remote api.ConnectionID, pc *webrtc.PeerConnection) *Link {
	metrics.ActivePeerLinks.WithLabelValues(string(StateIdle)).Inc()
	return &Link{
		remote: remote,
		pc:     pc,
		state:  StateIdle,
	}
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) transition(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(to)
}

func (l *Link) transitionLocked(to State) error {
	if !validTransitions[l.state][to] {
		return &RejectedTransitionError{Remote: l.remote, From: l.state, To: to}
	}
	metrics.ActivePeerLinks.WithLabelValues(string(l.state)).Dec()
	if to != StateClosed {
		metrics.ActivePeerLinks.WithLabelValues(string(to)).Inc()
	}
	l.state = to
	return nil
}

// setRemoteDescription applies the remote SDP and replays any candidates that
// arrived before it. The relay may deliver candidates ahead of the
// description they belong to.
func (l *Link) setRemoteDescription(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("peer link %s: set remote description: %w", l.remote, err)
	}

	l.mu.Lock()
	l.remoteDescriptionSet = true
	pending := l.pendingRemote
	l.pendingRemote = nil
	l.mu.Unlock()

	for _, candidate := range pending {
		if err := l.pc.AddICECandidate(candidate); err != nil {
			return fmt.Errorf("peer link %s: replay candidate: %w", l.remote, err)
		}
	}
	return nil
}

// addRemoteCandidate applies the candidate immediately, or queues it when the
// remote description has not been set yet.
func (l *Link) addRemoteCandidate(candidate webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if !l.remoteDescriptionSet {
		l.pendingRemote = append(l.pendingRemote, candidate)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(candidate)
}

func (l *Link) markLocalDescriptionSent() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.localDescriptionSent = true
}

// awaitingAnswer reports whether our own offer is in flight with no remote
// description yet, the window in which the glare tie-break applies.
func (l *Link) awaitingAnswer() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateNegotiating && l.localDescriptionSent && !l.remoteDescriptionSet
}

func (l *Link) pendingCandidateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pendingRemote)
}

func (l *Link) startNegotiationTimer(timeout time.Duration, onTimeout func()) {
	if timeout <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.negotiationTimer != nil {
		l.negotiationTimer.Stop()
	}
	l.negotiationTimer = time.AfterFunc(timeout, onTimeout)
}

func (l *Link) stopNegotiationTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.negotiationTimer != nil {
		l.negotiationTimer.Stop()
		l.negotiationTimer = nil
	}
}

func (l *Link) addPliTimer(t utils.IntervalTimer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		t.Stop()
		return
	}
	l.pliTimers = append(l.pliTimers, t)
}

// close tears the link down. Safe to call more than once.
func (l *Link) close() {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	_ = l.transitionLocked(StateClosed)
	if l.negotiationTimer != nil {
		l.negotiationTimer.Stop()
		l.negotiationTimer = nil
	}
	timers := l.pliTimers
	l.pliTimers = nil
	l.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	_ = l.pc.Close()
}
