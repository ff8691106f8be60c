// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned by Send once the connection is closed.
var ErrConnectionClosed = errors.New("connection closed")

// ErrSendBufferFull is returned by Send when the peer is not draining its
// outbound queue.
var ErrSendBufferFull = errors.New("send buffer full")

// Packet is an inbound client frame: {"event", "ack", "data"}.
// Ack is zero when the client does not expect an acknowledgement.
type Packet struct {
	Event string          `json:"event"`
	Ack   int64           `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope is an outbound frame.
type Envelope struct {
	Event string      `json:"event"`
	Ack   int64       `json:"ack,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

type Connection interface {
	Send(event string, ack int64, data interface{}) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadPacket() (*Packet, error)
}

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// WSConnection frames JSON envelopes over a gorilla websocket. Writes are
// queued and flushed by a single writer goroutine so Send never blocks on
// a slow peer.
type WSConnection struct {
	conn      *websocket.Conn
	send      chan []byte
	closeChan chan struct{}
	closeOnce sync.Once

	heartbeat    time.Duration
	heartbeatSet chan time.Duration
	mutex        sync.Mutex
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	c := &WSConnection{
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		closeChan:    make(chan struct{}),
		heartbeatSet: make(chan time.Duration, 1),
	}
	go c.writePump()
	return c
}

func (c *WSConnection) Send(event string, ack int64, data interface{}) error {
	payload, err := json.Marshal(Envelope{Event: event, Ack: ack, Data: data})
	if err != nil {
		return err
	}

	select {
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	if c.heartbeat > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	}
	c.mutex.Unlock()

	packet := &Packet{}
	if err := json.Unmarshal(data, packet); err != nil {
		return nil, err
	}
	return packet, nil
}

// SetHeartbeat enables server pings every interval; a peer silent for two
// intervals is dropped.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.mutex.Lock()
	c.heartbeat = interval
	c.mutex.Unlock()

	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	})

	select {
	case c.heartbeatSet <- interval:
	default:
	}
}

func (c *WSConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeChan)
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WSConnection) writePump() {
	var ticker *time.Ticker
	var pingC <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case interval := <-c.heartbeatSet:
			if ticker != nil {
				ticker.Stop()
			}
			ticker = time.NewTicker(interval)
			pingC = ticker.C
		case <-pingC:
			if err := c.ping(); err != nil {
				c.Close()
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

func (c *WSConnection) ping() error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}
