package mocks

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FakeConn is a scripted device.Conn. Frames pushed with Deliver are read in order;
// Fail makes the next read return err.
type FakeConn struct {
	reads  chan fakeRead
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	written  []string
	controls []int
	writeErr error
}

type fakeRead struct {
	data string
	err  error
}

func NewFakeConn() *FakeConn {
	return &FakeConn{reads: make(chan fakeRead, 16), closed: make(chan struct{})}
}

// Deliver queues an inbound text frame.
func (c *FakeConn) Deliver(frame string) {
	c.reads <- fakeRead{data: frame}
}

// Fail queues a read error.
func (c *FakeConn) Fail(err error) {
	c.reads <- fakeRead{err: err}
}

// FailWrites makes every later write return err.
func (c *FakeConn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Written returns the text frames written so far.
func (c *FakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// Controls returns the control frame types written so far.
func (c *FakeConn) Controls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.controls...)
}

// IsClosed reports whether Close was called.
func (c *FakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *FakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-c.reads:
		if r.err != nil {
			return 0, nil, r.err
		}
		return websocket.TextMessage, []byte(r.data), nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *FakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, string(data))
	return nil
}

func (c *FakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *FakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
