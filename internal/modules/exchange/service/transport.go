package service

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn минимум от *websocket.Conn, нужный сессии.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer открывает соединение с биржей. В тестах подменяется.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct {
	d *websocket.Dialer
}

func NewDialer() Dialer {
	return &wsDialer{d: &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Proxy:            websocket.DefaultDialer.Proxy,
	}}
}

func (w *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := w.d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}
