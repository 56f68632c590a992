package device

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of *websocket.Conn the manager drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a connection to the device endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebsocketDialer dials plain ws:// endpoints with gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	// The response body on a failed handshake does not need closing.
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
