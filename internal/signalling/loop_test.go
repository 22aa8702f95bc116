package signalling

import (
	"sync"
	"testing"
	"time"

	"github.com/meshconf/meshconf/internal/api"
)

type fakeSocket struct {
	mu      sync.Mutex
	written []api.Message
	block   chan struct{} // when set, WriteJSON waits on it
}

func (f *fakeSocket) WriteJSON(v interface{}) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, v.(api.Message))
	return nil
}

func (f *fakeSocket) ReadJSON(interface{}) error { select {} }
func (f *fakeSocket) Close() error               { return nil }

func (f *fakeSocket) writtenEvents() []api.MessageEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]api.MessageEvent, len(f.written))
	for i, m := range f.written {
		events[i] = m.Event
	}
	return events
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestLoopDeliversInOrder(t *testing.T) {
	socket := &fakeSocket{}
	loop := NewConnectionLoop("c1", socket, 0)
	loop.Start()
	defer loop.Stop()

	loop.Send(api.Message{Event: api.MessageEventInit})
	loop.Send(api.Message{Event: api.MessageEventRoomParticipants})
	loop.Send(api.Message{Event: api.MessageEventChat})

	waitFor(t, func() bool { return len(socket.writtenEvents()) == 3 })
	events := socket.writtenEvents()
	want := []api.MessageEvent{api.MessageEventInit, api.MessageEventRoomParticipants, api.MessageEventChat}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestLoopDropsWhenQueueFull(t *testing.T) {
	socket := &fakeSocket{block: make(chan struct{})}
	loop := NewConnectionLoop("c1", socket, 0)
	loop.Start()

	sent := 0
	for i := 0; i < sendQueueSize+8; i++ {
		if loop.Send(api.Message{Event: api.MessageEventChat}) {
			sent++
		}
	}
	if sent > sendQueueSize+1 {
		t.Errorf("accepted %d messages with a blocked writer, want at most %d", sent, sendQueueSize+1)
	}

	close(socket.block)
	loop.Stop()
	loop.Stop()

	if loop.Send(api.Message{Event: api.MessageEventChat}) {
		t.Error("send after stop must report failure")
	}
}
