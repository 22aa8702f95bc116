// The agent is a headless conference participant: it joins a room, streams
// pre-recorded media to every peer and bridges chat to the terminal. Lines
// typed on stdin are sent as chat; a few /commands drive media control.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/meshconf/meshconf/internal/api"
	"github.com/meshconf/meshconf/internal/client"
	mediactl "github.com/meshconf/meshconf/internal/media"
	"github.com/meshconf/meshconf/internal/recorder"
)

const oggPageDuration = 20 * time.Millisecond

func main() {
	relayURL := flag.String("relay", "http://localhost:5000", "relay base URL")
	roomID := flag.String("room", "lobby", "room to join")
	userID := flag.String("user", "agent", "user ID to present")
	displayName := flag.String("name", "Agent", "display name to present")
	videoFile := flag.String("video", "", "IVF file streamed as the camera track")
	audioFile := flag.String("audio", "", "Ogg file streamed as the microphone track")
	recordDir := flag.String("record", "", "directory to record remote tracks into (empty disables)")
	flag.Parse()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.TimeOnly,
	})))

	if err := run(*relayURL, *roomID, *userID, *displayName, *videoFile, *audioFile, *recordDir); err != nil {
		slog.Error("agent failed", "error", err)
		os.Exit(1)
	}
}

func run(relayURL, roomID, userID, displayName, videoFile, audioFile, recordDir string) error {
	var rec *recorder.Recorder
	if recordDir != "" {
		if err := os.MkdirAll(recordDir, 0o755); err != nil {
			return fmt.Errorf("recordings directory: %w", err)
		}
		rec = recorder.New(recordDir)
		defer rec.Close()
	}

	cl, err := client.Dial(relayURL, client.Options{
		OnChat: func(chat api.ChatMessage) {
			fmt.Printf("[%s] %s: %s\n",
				time.UnixMilli(chat.Timestamp).Format(time.TimeOnly), chat.DisplayName, chat.Message)
		},
		OnRooms: func(rooms []api.RoomSummary) {
			for _, r := range rooms {
				fmt.Printf("room %s: %d participant(s)\n", r.RoomID, len(r.Participants))
			}
		},
		OnParticipantJoined: func(p api.Participant) {
			fmt.Printf("* %s joined\n", p.DisplayName)
		},
		OnParticipantLeft: func(id api.ConnectionID) {
			fmt.Printf("* %s left\n", id)
		},
		OnRemoteTrack: func(remote api.ConnectionID, track *webrtc.TrackRemote) {
			slog.Info("receiving media", "remote", remote, "kind", track.Kind())
			if rec != nil {
				go rec.Record(remote, track)
				return
			}
			go discardTrack(track)
		},
	})
	if err != nil {
		return err
	}
	defer cl.Close()

	stop := make(chan struct{})
	defer close(stop)

	var camera, microphone webrtc.TrackLocal
	if videoFile != "" {
		track, err := newVideoTrack("camera", string(cl.ConnectionID()))
		if err != nil {
			return err
		}
		go streamIVF(track, videoFile, stop)
		camera = track
	}
	if audioFile != "" {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "microphone", string(cl.ConnectionID()))
		if err != nil {
			return fmt.Errorf("microphone track: %w", err)
		}
		go streamOgg(track, audioFile, stop)
		microphone = track
	}
	cl.Peers().SetLocalTracks(camera, microphone)
	ctrl := mediactl.NewController(cl.Peers(), camera, microphone)

	if err := cl.JoinRoom(roomID, userID, displayName); err != nil {
		return err
	}
	slog.Info("joined room", "roomID", roomID, "connectionID", cl.ConnectionID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	commands := make(chan string)
	go readCommands(commands)

	for {
		select {
		case <-sigCh:
			fmt.Println("leaving")
			_ = cl.LeaveRoom(roomID)
			return nil
		case <-cl.Done():
			return errors.New("relay connection closed")
		case line, ok := <-commands:
			if !ok {
				_ = cl.LeaveRoom(roomID)
				return nil
			}
			if err := handleCommand(cl, ctrl, roomID, line, stop); err != nil {
				fmt.Println("error:", err)
			}
		}
	}
}

func handleCommand(cl *client.Client, ctrl *mediactl.Controller, roomID, line string, stop <-chan struct{}) error {
	switch {
	case line == "/quit":
		_ = cl.LeaveRoom(roomID)
		os.Exit(0)
		return nil
	case line == "/rooms":
		return cl.ListRooms()
	case line == "/mute":
		return ctrl.SetAudioEnabled(false)
	case line == "/unmute":
		return ctrl.SetAudioEnabled(true)
	case line == "/video off":
		return ctrl.SetVideoEnabled(false)
	case line == "/video on":
		return ctrl.SetVideoEnabled(true)
	case strings.HasPrefix(line, "/share "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/share "))
		track, err := newVideoTrack("screen", string(cl.ConnectionID()))
		if err != nil {
			return err
		}
		go streamIVF(track, path, stop)
		return ctrl.StartScreenShare(track)
	case line == "/unshare":
		return ctrl.StopScreenShare()
	case strings.HasPrefix(line, "/"):
		return fmt.Errorf("unknown command %s", line)
	default:
		return cl.SendChat(roomID, line)
	}
}

func readCommands(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out <- line
		}
	}
}

func newVideoTrack(id, stream string) (*webrtc.TrackLocalStaticSample, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, stream)
	if err != nil {
		return nil, fmt.Errorf("%s track: %w", id, err)
	}
	return track, nil
}

// streamIVF loops the file into the track at its native frame rate until
// stop closes. Write errors are expected while the track is substituted out.
func streamIVF(track *webrtc.TrackLocalStaticSample, path string, stop <-chan struct{}) {
	for {
		file, err := os.Open(path)
		if err != nil {
			slog.Error("failed to open video file", "path", path, "error", err)
			return
		}
		ivf, header, err := ivfreader.NewWith(file)
		if err != nil {
			slog.Error("failed to parse IVF", "path", path, "error", err)
			_ = file.Close()
			return
		}

		frameDuration := time.Millisecond *
			time.Duration(float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator)*1000)
		if frameDuration <= 0 {
			frameDuration = 33 * time.Millisecond
		}
		ticker := time.NewTicker(frameDuration)
		for {
			frame, _, err := ivf.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				slog.Error("failed to read frame", "path", path, "error", err)
				break
			}
			if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
				slog.Debug("dropping video sample", "error", err)
			}
			select {
			case <-stop:
				ticker.Stop()
				_ = file.Close()
				return
			case <-ticker.C:
			}
		}
		ticker.Stop()
		_ = file.Close()
	}
}

// streamOgg loops the file into the track, one page per 20ms.
func streamOgg(track *webrtc.TrackLocalStaticSample, path string, stop <-chan struct{}) {
	for {
		file, err := os.Open(path)
		if err != nil {
			slog.Error("failed to open audio file", "path", path, "error", err)
			return
		}
		ogg, _, err := oggreader.NewWith(file)
		if err != nil {
			slog.Error("failed to parse Ogg", "path", path, "error", err)
			_ = file.Close()
			return
		}

		ticker := time.NewTicker(oggPageDuration)
		for {
			page, _, err := ogg.ParseNextPage()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				slog.Error("failed to read page", "path", path, "error", err)
				break
			}
			if err := track.WriteSample(media.Sample{Data: page, Duration: oggPageDuration}); err != nil {
				slog.Debug("dropping audio sample", "error", err)
			}
			select {
			case <-stop:
				ticker.Stop()
				_ = file.Close()
				return
			case <-ticker.C:
			}
		}
		ticker.Stop()
		_ = file.Close()
	}
}

// discardTrack drains RTP so the interceptors keep running.
func discardTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
