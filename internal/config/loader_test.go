package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadAppConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	want := DefaultAppConfig()
	if cfg.Server.Port != want.Server.Port {
		t.Fatalf("expected default port %d, got %d", want.Server.Port, cfg.Server.Port)
	}
	if len(cfg.WebRTC.PeerConnectionConfig.IceServers) == 0 {
		t.Fatal("expected default ICE servers")
	}
}

func TestLoadAppConfigMergesPartialYAML(t *testing.T) {
	dir := t.TempDir()
	data := []byte("server:\n  port: 9000\nwebrtc:\n  negotiationTimeout: 10\n")
	if err := os.WriteFile(filepath.Join(dir, "relay.yaml"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadAppConfig(dir)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.WebRTC.NegotiationTimeout != 10 {
		t.Fatalf("expected timeout 10, got %d", cfg.WebRTC.NegotiationTimeout)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Server.PingInterval != DefaultAppConfig().Server.PingInterval {
		t.Fatalf("ping interval lost its default: %d", cfg.Server.PingInterval)
	}
	if len(cfg.WebRTC.PeerConnectionConfig.IceServers) == 0 {
		t.Fatal("ICE servers lost their default")
	}
}

func TestLoadAppConfigOverridesIceServers(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`webrtc:
  peerConnectionConfig:
    iceServers:
      - urls: ["stun:stun.example.org:3478"]
      - urls: ["turn:turn.example.org:3478"]
        username: mesh
        credential: secret
`)
	if err := os.WriteFile(filepath.Join(dir, "relay.yaml"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadAppConfig(dir)
	if err != nil {
		t.Fatal(err)
	}

	servers := cfg.WebRTC.PeerConnectionConfig.IceServers
	if len(servers) != 2 {
		t.Fatalf("expected 2 ICE servers, got %d", len(servers))
	}
	if servers[1].Username != "mesh" || servers[1].Credential != "secret" {
		t.Fatalf("TURN credentials not parsed: %+v", servers[1])
	}
}

func TestReloadInvokesUpdateCallback(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	ports := make(chan int, 4)
	mgr.SetUpdateCallback(func(c *AppConfig) {
		select {
		case ports <- c.Server.Port:
		default:
		}
	})

	data := []byte("server:\n  port: 9100\n")
	if err := os.WriteFile(filepath.Join(dir, "relay.yaml"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case port := <-ports:
			if port == 9100 {
				return
			}
		case <-deadline:
			t.Fatal("update callback never saw the new port")
		}
	}
}
