package client

import "testing"

func TestSignalingURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://localhost:5000", "ws://localhost:5000/ws/rooms"},
		{"https://relay.example.com", "wss://relay.example.com/ws/rooms"},
		{"https://relay.example.com/", "wss://relay.example.com/ws/rooms"},
		{"ws://localhost:5000", "ws://localhost:5000/ws/rooms"},
		{"wss://relay.example.com", "wss://relay.example.com/ws/rooms"},
	}
	for _, c := range cases {
		if got := signalingURL(c.in); got != c.want {
			t.Errorf("signalingURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
