package media

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

type fakeSwitcher struct {
	video []webrtc.TrackLocal
	audio []webrtc.TrackLocal
	err   error
}

func (f *fakeSwitcher) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	if f.err != nil {
		return f.err
	}
	f.video = append(f.video, track)
	return nil
}

func (f *fakeSwitcher) ReplaceAudioTrack(track webrtc.TrackLocal) error {
	if f.err != nil {
		return f.err
	}
	f.audio = append(f.audio, track)
	return nil
}

func newTrack(t *testing.T, mime, id string) webrtc.TrackLocal {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, "test")
	if err != nil {
		t.Fatalf("track %s: %v", id, err)
	}
	return track
}

func TestMuteAndUnmuteAudio(t *testing.T) {
	switcher := &fakeSwitcher{}
	mic := newTrack(t, webrtc.MimeTypeOpus, "mic")
	ctrl := NewController(switcher, nil, mic)

	if err := ctrl.SetAudioEnabled(false); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if err := ctrl.SetAudioEnabled(false); err != nil {
		t.Fatalf("double mute: %v", err)
	}
	if err := ctrl.SetAudioEnabled(true); err != nil {
		t.Fatalf("unmute: %v", err)
	}

	if len(switcher.audio) != 2 {
		t.Fatalf("audio substitutions = %d, want 2 (idempotent mute)", len(switcher.audio))
	}
	if switcher.audio[0] != nil {
		t.Error("mute must substitute nil")
	}
	if switcher.audio[1] != mic {
		t.Error("unmute must restore the microphone track")
	}
}

func TestScreenShareSubstitutesAndRestores(t *testing.T) {
	switcher := &fakeSwitcher{}
	camera := newTrack(t, webrtc.MimeTypeVP8, "camera")
	screen := newTrack(t, webrtc.MimeTypeVP8, "screen")
	ctrl := NewController(switcher, camera, nil)

	if err := ctrl.StartScreenShare(screen); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !ctrl.Sharing() {
		t.Error("Sharing() = false during share")
	}
	if got := ctrl.ActiveVideoTrack(); got != screen {
		t.Errorf("active track during share = %v, want screen", got)
	}

	if err := ctrl.StopScreenShare(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := ctrl.ActiveVideoTrack(); got != camera {
		t.Errorf("active track after share = %v, want camera", got)
	}

	if len(switcher.video) != 2 || switcher.video[0] != screen || switcher.video[1] != camera {
		t.Errorf("video substitutions = %v, want [screen camera]", switcher.video)
	}
}

func TestStopWithoutShare(t *testing.T) {
	ctrl := NewController(&fakeSwitcher{}, newTrack(t, webrtc.MimeTypeVP8, "camera"), nil)
	if err := ctrl.StopScreenShare(); !errors.Is(err, ErrNoScreenShare) {
		t.Errorf("err = %v, want ErrNoScreenShare", err)
	}
}

func TestVideoMuteDuringShareDefersToShareEnd(t *testing.T) {
	switcher := &fakeSwitcher{}
	camera := newTrack(t, webrtc.MimeTypeVP8, "camera")
	screen := newTrack(t, webrtc.MimeTypeVP8, "screen")
	ctrl := NewController(switcher, camera, nil)

	if err := ctrl.StartScreenShare(screen); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := ctrl.SetVideoEnabled(false); err != nil {
		t.Fatalf("mute during share: %v", err)
	}
	// The share keeps streaming; only the recorded camera state changes.
	if len(switcher.video) != 1 {
		t.Fatalf("substitutions during share = %d, want 1", len(switcher.video))
	}

	if err := ctrl.StopScreenShare(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := switcher.video[len(switcher.video)-1]; got != nil {
		t.Errorf("share end with muted camera restored %v, want nil", got)
	}
	if got := ctrl.ActiveVideoTrack(); got != nil {
		t.Errorf("active track = %v, want nil while muted", got)
	}
}

func TestSwitcherErrorLeavesStateUnchanged(t *testing.T) {
	boom := errors.New("boom")
	switcher := &fakeSwitcher{err: boom}
	ctrl := NewController(switcher, newTrack(t, webrtc.MimeTypeVP8, "camera"), nil)

	if err := ctrl.SetVideoEnabled(false); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got := ctrl.ActiveVideoTrack(); got == nil {
		t.Error("failed mute must not change recorded state")
	}
}
