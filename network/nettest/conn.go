// Package nettest provides an in-memory network.Connection that records
// every outbound event, for tests of code that talks to clients.
package nettest

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/wfunc/roomserver/network"
)

var ErrBrokenPipe = errors.New("nettest: broken pipe")

// Conn records decoded outbound events. It can be told to fail every send,
// or to start failing after a number of successful sends.
type Conn struct {
	mu        sync.Mutex
	events    []network.Payload
	failAfter int // -1: never fail
	closed    bool
	inbound   chan *network.Packet
}

func NewConn() *Conn {
	return &Conn{failAfter: -1, inbound: make(chan *network.Packet, 64)}
}

// Fail makes every following send return an error.
func (c *Conn) Fail() {
	c.FailAfter(0)
}

// FailAfter lets n more sends succeed, then fails the rest.
func (c *Conn) FailAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAfter = n
}

func (c *Conn) Send(msgID uint16, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failAfter == 0 {
		return ErrBrokenPipe
	}
	if c.failAfter > 0 {
		c.failAfter--
	}
	if _, err := network.EncodePacket(msgID, data); err != nil {
		return err
	}
	event, err := network.DecodeEvent(msgID, data)
	if err != nil {
		return err
	}
	c.events = append(c.events, event)
	return nil
}

// Events returns a copy of everything received so far.
func (c *Conn) Events() []network.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]network.Payload, len(c.events))
	copy(out, c.events)
	return out
}

// Reset forgets the recorded events.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

// Push queues an inbound packet for ReadPacket.
func (c *Conn) Push(p network.Payload) error {
	data, err := network.Encode(p)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.inbound <- &network.Packet{MsgID: p.MsgID(), Data: data, Length: uint16(len(data))}
	return nil
}

func (c *Conn) ReadPacket() (*network.Packet, error) {
	packet, ok := <-c.inbound
	if !ok {
		return nil, net.ErrClosed
	}
	return packet, nil
}

func (c *Conn) RemoteAddr() net.Addr                { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *Conn) SetHeartbeat(interval time.Duration) {}

// Filter returns the recorded events of type T, in order.
func Filter[T network.Payload](c *Conn) []T {
	var out []T
	for _, e := range c.Events() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
