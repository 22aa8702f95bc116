package signalling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meshconf/meshconf/internal/api"
	"github.com/meshconf/meshconf/internal/metrics"
	"github.com/meshconf/meshconf/internal/sockets"
)

const sendQueueSize = 32

// ConnectionLoop owns all writes to a single client socket. Messages are
// queued on a buffered channel and written by a dedicated goroutine, so
// handlers fanning out to many connections never block on one slow peer.
type ConnectionLoop struct {
	id           api.ConnectionID
	socket       sockets.Socket
	messages     chan api.Message
	pingInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewConnectionLoop(id api.ConnectionID, socket sockets.Socket, pingInterval time.Duration) *ConnectionLoop {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionLoop{
		id:           id,
		socket:       socket,
		messages:     make(chan api.Message, sendQueueSize),
		pingInterval: pingInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (l *ConnectionLoop) Start() {
	l.wg.Add(1)
	go l.writeLoop()
	if l.pingInterval > 0 {
		l.wg.Add(1)
		go l.pingLoop()
	}
}

// Send queues a message for delivery. It never blocks: when the queue is
// full or the loop is stopped the message is dropped and false is returned.
func (l *ConnectionLoop) Send(msg api.Message) bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.messages <- msg:
		return true
	default:
		metrics.DroppedMessagesTotal.WithLabelValues("slow_consumer").Inc()
		slog.Warn("send queue full, dropping message", "connectionID", l.id, "event", msg.Event)
		return false
	}
}

func (l *ConnectionLoop) Stop() {
	l.once.Do(func() {
		l.cancel()
		l.wg.Wait()
	})
}

func (l *ConnectionLoop) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case msg := <-l.messages:
			if err := l.socket.WriteJSON(msg); err != nil {
				slog.Warn("write failed, stopping loop", "connectionID", l.id, "error", err)
				l.cancel()
				return
			}
			metrics.SignalMessagesTotal.WithLabelValues(string(msg.Event), "out").Inc()
		}
	}
}

func (l *ConnectionLoop) pingLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.Send(api.Message{Event: api.MessageEventPing, Ping: &api.PingMessage{}})
		}
	}
}
