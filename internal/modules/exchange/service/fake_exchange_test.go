package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// fakeExchange минимальный WebSocket-сервер с протоколом биржи.
type fakeExchange struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	writeMu  sync.Mutex
	conns    []*websocket.Conn
	received []Request
	tokens   map[string]string // token -> loginid
	silent   map[string]bool
	delay    map[string]time.Duration
}

func newFakeExchange(t *testing.T) *fakeExchange {
	f := &fakeExchange{
		tokens: map[string]string{"good": "VRTC100"},
		silent: map[string]bool{},
		delay:  map[string]time.Duration{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(func() {
		f.DropAll()
		f.srv.Close()
	})
	return f
}

func (f *fakeExchange) URL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeExchange) handle(w http.ResponseWriter, r *http.Request) {
	c, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req Request
		if err := sonic.Unmarshal(data, &req); err != nil {
			continue
		}
		f.mu.Lock()
		f.received = append(f.received, req)
		silent := f.silent[req.MsgType()]
		delay := f.delay[req.MsgType()]
		f.mu.Unlock()
		if silent {
			continue
		}
		reply := f.reply(req)
		if reply == nil {
			continue
		}
		if delay > 0 {
			go func() {
				time.Sleep(delay)
				f.write(c, reply)
			}()
			continue
		}
		f.write(c, reply)
	}
}

func (f *fakeExchange) reply(req Request) map[string]any {
	id := req["req_id"]
	switch req.MsgType() {
	case "authorize":
		f.mu.Lock()
		login, ok := f.tokens[req["authorize"].(string)]
		f.mu.Unlock()
		if !ok {
			return map[string]any{
				"msg_type": "authorize", "req_id": id,
				"error": map[string]any{"code": "InvalidToken", "message": "The token is invalid."},
			}
		}
		return map[string]any{
			"msg_type": "authorize", "req_id": id,
			"authorize": map[string]any{"loginid": login, "balance": 1000.5, "currency": "USD", "is_virtual": 1},
		}
	case "ticks":
		sym := req["ticks"].(string)
		frame := tickFrame(sym, 100.12)
		frame["req_id"] = id
		return frame
	case "forget":
		return map[string]any{"msg_type": "forget", "req_id": id, "forget": 1}
	case "portfolio":
		return map[string]any{"msg_type": "portfolio", "req_id": id, "portfolio": map[string]any{"contracts": []any{}}}
	case "ping":
		return map[string]any{"msg_type": "ping", "req_id": id, "ping": "pong"}
	}
	return nil
}

func tickFrame(symbol string, quote float64) map[string]any {
	return map[string]any{
		"msg_type": "tick",
		"tick": map[string]any{
			"symbol": symbol, "quote": quote, "epoch": time.Now().Unix(), "pip_size": 2, "id": "sub-" + symbol,
		},
		"subscription": map[string]any{"id": "sub-" + symbol},
	}
}

func (f *fakeExchange) write(c *websocket.Conn, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = c.WriteMessage(websocket.TextMessage, b)
}

// PushTick тик в последнее соединение.
func (f *fakeExchange) PushTick(symbol string, quote float64) {
	f.mu.Lock()
	if len(f.conns) == 0 {
		f.mu.Unlock()
		return
	}
	c := f.conns[len(f.conns)-1]
	f.mu.Unlock()
	f.write(c, tickFrame(symbol, quote))
}

// DropAll рвёт все соединения со стороны сервера.
func (f *fakeExchange) DropAll() {
	f.mu.Lock()
	conns := f.conns
	f.conns = nil
	f.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// Count сколько запросов msgType получено (с начала или с последнего Reset).
func (f *fakeExchange) Count(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.received {
		if r.MsgType() == msgType {
			n++
		}
	}
	return n
}

func (f *fakeExchange) Last(msgType string) Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.received) - 1; i >= 0; i-- {
		if f.received[i].MsgType() == msgType {
			return f.received[i]
		}
	}
	return nil
}

func (f *fakeExchange) Reset() {
	f.mu.Lock()
	f.received = nil
	f.mu.Unlock()
}

// flakyDialer отказывает на заданных по счёту попытках.
type flakyDialer struct {
	inner  Dialer
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (d *flakyDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.calls++
	fail := d.failOn[d.calls]
	d.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	return d.inner.Dial(ctx, url)
}

// sleepRecorder мгновенный sleep с записью пауз.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}
