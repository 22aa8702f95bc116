package peer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/meshconf/meshconf/internal/api"
)

type sentSDP struct {
	to  api.ConnectionID
	sdp webrtc.SessionDescription
}

type fakeSignaler struct {
	mu         sync.Mutex
	offers     []sentSDP
	answers    []sentSDP
	candidates []api.ConnectionID
}

func (f *fakeSignaler) SendOffer(to api.ConnectionID, sdp webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, sentSDP{to: to, sdp: sdp})
	return nil
}

func (f *fakeSignaler) SendAnswer(to api.ConnectionID, sdp webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, sentSDP{to: to, sdp: sdp})
	return nil
}

func (f *fakeSignaler) SendCandidate(to api.ConnectionID, _ webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, to)
	return nil
}

func (f *fakeSignaler) sentOffers() []sentSDP {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentSDP(nil), f.offers...)
}

func (f *fakeSignaler) sentAnswers() []sentSDP {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentSDP(nil), f.answers...)
}

func newTestManager(t *testing.T, self api.ConnectionID) (*Manager, *fakeSignaler) {
	return newTestManagerTimeout(t, self, time.Minute)
}

func newTestManagerTimeout(t *testing.T, self api.ConnectionID, timeout time.Duration) (*Manager, *fakeSignaler) {
	t.Helper()
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", string(self))
	if err != nil {
		t.Fatalf("video track: %v", err)
	}
	signaler := &fakeSignaler{}
	manager := NewManager(engine, signaler, Config{
		Self:               self,
		NegotiationTimeout: timeout,
	})
	manager.SetLocalTracks(video, nil)
	t.Cleanup(manager.Close)
	return manager, signaler
}

func TestRosterTriggersOfferPerParticipant(t *testing.T) {
	manager, signaler := newTestManager(t, "aaa")

	manager.HandleRoster([]api.Participant{
		{ConnectionID: "bbb"},
		{ConnectionID: "ccc"},
	})

	offers := signaler.sentOffers()
	if len(offers) != 2 {
		t.Fatalf("sent %d offers, want 2", len(offers))
	}
	for _, remote := range []api.ConnectionID{"bbb", "ccc"} {
		if got := manager.LinkState(remote); got != StateNegotiating {
			t.Errorf("link %s state = %s, want %s", remote, got, StateNegotiating)
		}
	}
}

func TestParticipantJoinedTriggersSingleOffer(t *testing.T) {
	manager, signaler := newTestManager(t, "aaa")

	manager.HandleParticipantJoined(api.Participant{ConnectionID: "bbb"})
	manager.HandleParticipantJoined(api.Participant{ConnectionID: "bbb"})

	if offers := signaler.sentOffers(); len(offers) != 1 {
		t.Fatalf("sent %d offers for one participant, want 1", len(offers))
	}
	if got := manager.LinkCount(); got != 1 {
		t.Errorf("link count = %d, want 1", got)
	}
}

// Both sides offer simultaneously. The smaller connection ID keeps its
// offer; the larger one discards its attempt and answers. Each side must end
// up with exactly one link.
func TestGlareConvergesToOneLinkPerSide(t *testing.T) {
	alice, aliceSignaler := newTestManager(t, "aaa")
	bob, bobSignaler := newTestManager(t, "bbb")

	alice.HandleParticipantJoined(api.Participant{ConnectionID: "bbb"})
	bob.HandleParticipantJoined(api.Participant{ConnectionID: "aaa"})

	aliceOffer := aliceSignaler.sentOffers()[0]
	bobOffer := bobSignaler.sentOffers()[0]

	// Crossed offers arrive.
	if err := bob.HandleOffer("aaa", aliceOffer.sdp); err != nil {
		t.Fatalf("bob handling alice's offer: %v", err)
	}
	if err := alice.HandleOffer("bbb", bobOffer.sdp); err != nil {
		t.Fatalf("alice handling bob's offer: %v", err)
	}

	// Bob, the larger ID, must have answered; alice must not have.
	bobAnswers := bobSignaler.sentAnswers()
	if len(bobAnswers) != 1 || bobAnswers[0].to != "aaa" {
		t.Fatalf("bob answers = %+v, want exactly one to aaa", bobAnswers)
	}
	if got := aliceSignaler.sentAnswers(); len(got) != 0 {
		t.Fatalf("alice answered a crossed offer: %+v", got)
	}

	if err := alice.HandleAnswer("bbb", bobAnswers[0].sdp); err != nil {
		t.Fatalf("alice handling bob's answer: %v", err)
	}

	if got := alice.LinkCount(); got != 1 {
		t.Errorf("alice link count = %d, want 1", got)
	}
	if got := bob.LinkCount(); got != 1 {
		t.Errorf("bob link count = %d, want 1", got)
	}
	if got := aliceSignaler.sentOffers(); len(got) != 1 {
		t.Errorf("alice re-offered after glare: %d offers", len(got))
	}
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	manager, signaler := newTestManager(t, "aaa")
	manager.HandleParticipantJoined(api.Participant{ConnectionID: "bbb"})

	candidate := webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2130706431 192.0.2.10 54321 typ host",
	}
	if err := manager.HandleCandidate("bbb", candidate); err != nil {
		t.Fatalf("candidate before remote description: %v", err)
	}

	manager.mu.Lock()
	link := manager.links["bbb"]
	manager.mu.Unlock()
	if got := link.pendingCandidateCount(); got != 1 {
		t.Fatalf("pending candidates = %d, want 1", got)
	}

	// Answer the in-flight offer from a bare peer connection.
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	remote, err := engine.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("remote pc: %v", err)
	}
	defer remote.Close()
	if err := remote.SetRemoteDescription(signaler.sentOffers()[0].sdp); err != nil {
		t.Fatalf("remote set offer: %v", err)
	}
	answer, err := remote.CreateAnswer(nil)
	if err != nil {
		t.Fatalf("remote answer: %v", err)
	}
	if err := remote.SetLocalDescription(answer); err != nil {
		t.Fatalf("remote set answer: %v", err)
	}

	if err := manager.HandleAnswer("bbb", answer); err != nil {
		t.Fatalf("handle answer: %v", err)
	}
	if got := link.pendingCandidateCount(); got != 0 {
		t.Errorf("pending candidates after answer = %d, want 0", got)
	}
}

// A peer that never answers must not hold a link in negotiating forever: the
// deadline closes the link and removes it from the active set.
func TestNegotiationTimeoutTearsDownLink(t *testing.T) {
	manager, signaler := newTestManagerTimeout(t, "aaa", 50*time.Millisecond)

	manager.HandleParticipantJoined(api.Participant{ConnectionID: "bbb"})
	if len(signaler.sentOffers()) != 1 {
		t.Fatal("expected an offer before the deadline")
	}
	manager.mu.Lock()
	link := manager.links["bbb"]
	manager.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for manager.LinkCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("link still in active set after timeout, state %s", manager.LinkState("bbb"))
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := link.State(); got != StateClosed {
		t.Errorf("timed-out link state = %s, want %s", got, StateClosed)
	}
}

func TestAnswerFromUnknownPeerDropped(t *testing.T) {
	manager, _ := newTestManager(t, "aaa")

	err := manager.HandleAnswer("ghost", webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n",
	})
	if err != nil {
		t.Errorf("unknown answer must be dropped silently, got %v", err)
	}
	if got := manager.LinkCount(); got != 0 {
		t.Errorf("link count = %d, want 0", got)
	}
}

func TestParticipantLeftReleasesLink(t *testing.T) {
	manager, _ := newTestManager(t, "aaa")
	manager.HandleParticipantJoined(api.Participant{ConnectionID: "bbb"})

	manager.mu.Lock()
	link := manager.links["bbb"]
	manager.mu.Unlock()

	manager.HandleParticipantLeft("bbb")
	manager.HandleParticipantLeft("bbb")

	if got := manager.LinkCount(); got != 0 {
		t.Errorf("link count = %d, want 0", got)
	}
	if got := link.State(); got != StateClosed {
		t.Errorf("released link state = %s, want %s", got, StateClosed)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	manager, _ := newTestManager(t, "aaa")
	manager.HandleRoster([]api.Participant{{ConnectionID: "bbb"}, {ConnectionID: "ccc"}})

	manager.Close()
	manager.Close()

	if got := manager.LinkCount(); got != 0 {
		t.Errorf("link count after close = %d, want 0", got)
	}
	manager.HandleParticipantJoined(api.Participant{ConnectionID: "ddd"})
	if got := manager.LinkCount(); got != 0 {
		t.Errorf("closed manager opened a link")
	}
}

func TestReplaceVideoTrackAppliesToActiveLinks(t *testing.T) {
	manager, _ := newTestManager(t, "aaa")
	manager.HandleParticipantJoined(api.Participant{ConnectionID: "bbb"})

	if err := manager.ReplaceVideoTrack(nil); err != nil {
		t.Fatalf("mute video: %v", err)
	}

	screen, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "screen", "aaa")
	if err != nil {
		t.Fatalf("screen track: %v", err)
	}
	if err := manager.ReplaceVideoTrack(screen); err != nil {
		t.Fatalf("substitute video: %v", err)
	}
}

func TestRejectedTransition(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	pc, err := engine.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("pc: %v", err)
	}
	defer pc.Close()

	link := newLink("bbb", pc)
	err = link.transition(StateConnected)

	var rejected *RejectedTransitionError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedTransitionError, got %v", err)
	}
	if rejected.From != StateIdle || rejected.To != StateConnected {
		t.Errorf("rejected %s -> %s, want %s -> %s", rejected.From, rejected.To, StateIdle, StateConnected)
	}

	link.close()
	if err := link.transition(StateNegotiating); err == nil {
		t.Error("transition out of closed must be rejected")
	}
}
