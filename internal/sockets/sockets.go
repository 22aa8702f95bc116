package sockets

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// Socket is the minimal connection surface the signalling layer needs.
// Writes are serialized; reads stay single-consumer (the connection's own
// read loop).
type Socket interface {
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
	Close() error
}

type socketImpl struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func NewSocket(conn *websocket.Conn) Socket {
	return &socketImpl{ws: conn}
}

func (s *socketImpl) WriteJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(v)
}

func (s *socketImpl) ReadJSON(v interface{}) error {
	return s.ws.ReadJSON(v)
}

func (s *socketImpl) Close() error {
	return s.ws.Close()
}
