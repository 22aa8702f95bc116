package media

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

var ErrNoScreenShare = errors.New("no screen share in progress")

// TrackSwitcher is the slice of the peer manager the controller drives:
// substituting an outgoing track on every active link in one call.
type TrackSwitcher interface {
	ReplaceVideoTrack(track webrtc.TrackLocal) error
	ReplaceAudioTrack(track webrtc.TrackLocal) error
}

// Controller flips local capture state across all peer links at once, so no
// peer ever sees a different track than another. Mute and screen share both
// work by track substitution and never trigger renegotiation.
type Controller struct {
	switcher TrackSwitcher

	mu           sync.Mutex
	camera       webrtc.TrackLocal
	microphone   webrtc.TrackLocal
	screen       webrtc.TrackLocal
	videoEnabled bool
	audioEnabled bool
}

// NewController takes ownership of the captured camera and microphone
// tracks. Either may be nil for audio-only or video-only clients.
func NewController(switcher TrackSwitcher, camera, microphone webrtc.TrackLocal) *Controller {
	return &Controller{
		switcher:     switcher,
		camera:       camera,
		microphone:   microphone,
		videoEnabled: camera != nil,
		audioEnabled: microphone != nil,
	}
}

// SetAudioEnabled mutes or unmutes the microphone on every link.
func (c *Controller) SetAudioEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled == c.audioEnabled {
		return nil
	}
	track := webrtc.TrackLocal(nil)
	if enabled {
		track = c.microphone
	}
	if err := c.switcher.ReplaceAudioTrack(track); err != nil {
		return err
	}
	c.audioEnabled = enabled
	slog.Debug("audio toggled", "enabled", enabled)
	return nil
}

// SetVideoEnabled mutes or unmutes the camera. While a screen share is
// active the camera state is only recorded; the share keeps streaming.
func (c *Controller) SetVideoEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled == c.videoEnabled {
		return nil
	}
	if c.screen == nil {
		track := webrtc.TrackLocal(nil)
		if enabled {
			track = c.camera
		}
		if err := c.switcher.ReplaceVideoTrack(track); err != nil {
			return err
		}
	}
	c.videoEnabled = enabled
	slog.Debug("video toggled", "enabled", enabled)
	return nil
}

// StartScreenShare substitutes the screen track for the outgoing video on
// every link. Starting a new share while one is active swaps the share.
func (c *Controller) StartScreenShare(screen webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.switcher.ReplaceVideoTrack(screen); err != nil {
		return err
	}
	c.screen = screen
	slog.Info("screen share started", "trackID", screen.ID())
	return nil
}

// StopScreenShare restores the camera track, honoring the recorded mute
// state. Returns ErrNoScreenShare when nothing is being shared.
func (c *Controller) StopScreenShare() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen == nil {
		return ErrNoScreenShare
	}
	track := webrtc.TrackLocal(nil)
	if c.videoEnabled {
		track = c.camera
	}
	if err := c.switcher.ReplaceVideoTrack(track); err != nil {
		return err
	}
	c.screen = nil
	slog.Info("screen share stopped")
	return nil
}

// Sharing reports whether a screen share is active.
func (c *Controller) Sharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen != nil
}

// ActiveVideoTrack is the track peers currently receive: the screen share
// when one is active, otherwise the camera, or nil when video is muted.
func (c *Controller) ActiveVideoTrack() webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != nil {
		return c.screen
	}
	if !c.videoEnabled {
		return nil
	}
	return c.camera
}
