package sockets

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/meshconf/meshconf/internal/api"
)

// SocketPool tracks active sockets by their relay-assigned connection ID.
type SocketPool struct {
	mutex   sync.Mutex
	sockets map[api.ConnectionID]Socket
}

func NewSocketPool() *SocketPool {
	return &SocketPool{
		sockets: make(map[api.ConnectionID]Socket),
	}
}

func (p *SocketPool) AddSocket(id api.ConnectionID, conn *websocket.Conn) Socket {
	soc := NewSocket(conn)

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if old, contains := p.sockets[id]; contains {
		_ = old.Close()
	}
	p.sockets[id] = soc
	return soc
}

func (p *SocketPool) CloseSocket(id api.ConnectionID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if soc, contains := p.sockets[id]; contains {
		_ = soc.Close()
		delete(p.sockets, id)
	}
}

func (p *SocketPool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, soc := range p.sockets {
		_ = soc.Close()
	}
	p.sockets = make(map[api.ConnectionID]Socket)
}
