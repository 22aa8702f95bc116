// Package recorder writes remote media tracks to disk, one file per track.
// The agent uses it to keep a local copy of what each peer sent.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/meshconf/meshconf/internal/api"
)

// Recorder fans remote tracks out to per-track files under Dir. Tracks with
// codecs it cannot contain are skipped, not errors: a conference may mix
// codecs and recording is best effort.
type Recorder struct {
	dir string
	now func() time.Time

	mu      sync.Mutex
	writers []media.Writer
	closed  bool
}

func New(dir string) *Recorder {
	return &Recorder{dir: dir, now: time.Now}
}

// Record drains the track into a new file until the track ends or the
// recorder closes. It blocks; run it from the OnRemoteTrack goroutine.
func (r *Recorder) Record(remote api.ConnectionID, track *webrtc.TrackRemote) {
	name, ok := outputName(r.dir, string(remote), track.ID(), track.Codec().MimeType, r.now())
	if !ok {
		slog.Warn("not recording unsupported codec", "remote", remote, "mimeType", track.Codec().MimeType)
		return
	}

	writer, err := newWriter(name, track.Codec().MimeType)
	if err != nil {
		slog.Error("failed to create recording", "file", name, "error", err)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = writer.Close()
		return
	}
	r.writers = append(r.writers, writer)
	r.mu.Unlock()

	slog.Info("recording track", "remote", remote, "file", name)
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("recording stopped", "file", name, "error", err)
			}
			return
		}
		if err := writer.WriteRTP(packet); err != nil {
			slog.Error("failed to write recording", "file", name, "error", err)
			return
		}
	}
}

// Close flushes and closes every open file. Tracks still being read will
// stop at their next write. Idempotent.
func (r *Recorder) Close() {
	r.mu.Lock()
	writers := r.writers
	r.writers = nil
	r.closed = true
	r.mu.Unlock()

	for _, w := range writers {
		if err := w.Close(); err != nil {
			slog.Error("failed to close recording", "error", err)
		}
	}
}

func newWriter(name, mimeType string) (media.Writer, error) {
	switch mimeType {
	case webrtc.MimeTypeOpus:
		return oggwriter.New(name, 48000, 2)
	case webrtc.MimeTypeAV1:
		return ivfwriter.New(name, ivfwriter.WithCodec(mimeType))
	default:
		return ivfwriter.New(name)
	}
}

// outputName builds the per-track file name, false for codecs that cannot be
// containerized here.
func outputName(dir, remote, trackID, mimeType string, now time.Time) (string, bool) {
	var ext string
	switch mimeType {
	case webrtc.MimeTypeOpus:
		ext = "ogg"
	case webrtc.MimeTypeVP8, webrtc.MimeTypeAV1:
		ext = "ivf"
	default:
		return "", false
	}
	base := fmt.Sprintf("%s_%s_%s.%s",
		now.Format("2006_01_02_15_04_05"), sanitize(remote), sanitize(trackID), ext)
	return filepath.Join(dir, base), true
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
