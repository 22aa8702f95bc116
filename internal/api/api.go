package api

import "github.com/pion/webrtc/v4"

// ConnectionID identifies one active websocket session. It is assigned by the
// relay when the socket connects and stays stable for the connection's lifetime.
type ConnectionID string

// Participant is the wire representation of a room member.
type Participant struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       string       `json:"userId"`
	DisplayName  string       `json:"displayName"`
}

// RoomSummary describes one active room for the rooms-list response.
type RoomSummary struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
}

// PeerConnectionConfig carries the ICE server list handed to clients in the
// init message. The relay never uses it itself.
type PeerConnectionConfig struct {
	IceServers []IceServer `json:"iceServers" yaml:"iceServers"`
}

type IceServer struct {
	URLs       []string `json:"urls" yaml:"urls"`
	Username   string   `json:"username,omitempty" yaml:"username"`
	Credential string   `json:"credential,omitempty" yaml:"credential"`
}

func DefaultPeerConnectionConfig() PeerConnectionConfig {
	return PeerConnectionConfig{
		IceServers: []IceServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// ToWebRTC converts the wire config into a pion configuration.
func (c PeerConnectionConfig) ToWebRTC() webrtc.Configuration {
	var conf webrtc.Configuration
	for _, s := range c.IceServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		conf.ICEServers = append(conf.ICEServers, server)
	}
	return conf
}
