package config

import (
	"github.com/meshconf/meshconf/internal/api"
)

type AppConfig struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Security SecurityConfig `json:"security" yaml:"security"`
	WebRTC   WebRTCConfig   `json:"webrtc" yaml:"webrtc"`
}

type ServerConfig struct {
	// Port is the TCP port the relay listens on.
	Port int `json:"port" yaml:"port"`

	// PingInterval is how often, in seconds, the relay pings each socket.
	// Clients answer with pong; the value is also handed out in init.
	PingInterval int `json:"pingInterval" yaml:"pingInterval"`
}

type SecurityConfig struct {
	TLSCrtFile *string `json:"tlsCrtFile" yaml:"tlsCrtFile"`
	TLSKeyFile *string `json:"tlsKeyFile" yaml:"tlsKeyFile"`
}

type WebRTCConfig struct {
	// PeerConnectionConfig is forwarded verbatim to clients in the init
	// message; the relay itself never opens peer connections.
	PeerConnectionConfig api.PeerConnectionConfig `json:"peerConnectionConfig" yaml:"peerConnectionConfig"`

	// NegotiationTimeout bounds, in seconds, how long a client keeps a link
	// in the negotiating state before tearing it down.
	NegotiationTimeout int `json:"negotiationTimeout" yaml:"negotiationTimeout"`
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:         5000,
			PingInterval: 30,
		},
		Security: SecurityConfig{},
		WebRTC: WebRTCConfig{
			PeerConnectionConfig: api.DefaultPeerConnectionConfig(),
			NegotiationTimeout:   30,
		},
	}
}
