package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"digit_bot/internal/metrics"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func wsURL(u string) string { return "ws" + strings.TrimPrefix(u, "http") }

// echoUpstream возвращает каждый кадр как есть; после closeAfter кадров закрывается.
type echoUpstream struct {
	srv        *httptest.Server
	closeAfter int

	mu    sync.Mutex
	query string

	closed chan struct{} // закрывается, когда upstream-соединение завершено
}

func newEchoUpstream(t *testing.T, closeAfter int) *echoUpstream {
	e := &echoUpstream{closeAfter: closeAfter, closed: make(chan struct{})}
	var once sync.Once
	var up websocket.Upgrader
	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		e.query = r.URL.RawQuery
		e.mu.Unlock()
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer once.Do(func() { close(e.closed) })
		defer c.Close()
		for n := 1; ; n++ {
			mt, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, data); err != nil {
				return
			}
			if e.closeAfter > 0 && n >= e.closeAfter {
				_ = c.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
		}
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func startRelay(t *testing.T, upstream string) *websocket.Conn {
	t.Helper()
	reg := metrics.NewRegistry()
	b := New(upstream, zaptest.NewLogger(t), metrics.New(reg))
	srv := httptest.NewServer(NewRouter(b, reg))
	t.Cleanup(srv.Close)

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL)+"/websockets/v3", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readStatus(t *testing.T, c *websocket.Conn) ConnectionStatus {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	mt, data, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	var st ConnectionStatus
	require.NoError(t, sonic.Unmarshal(data, &st))
	require.Equal(t, "connection_status", st.MsgType)
	return st
}

func TestBridgeForwardsFramesVerbatim(t *testing.T) {
	up := newEchoUpstream(t, 0)
	c := startRelay(t, wsURL(up.srv.URL)+"?app_id=1089")

	assert.Equal(t, StatusConnected, readStatus(t, c).Status)

	frames := []struct {
		mt   int
		data []byte
	}{
		{websocket.TextMessage, []byte(`{"ticks":"R_100","req_id":7}`)},
		{websocket.BinaryMessage, []byte{0x00, 0x01, 0xfe, 0xff}},
		{websocket.TextMessage, []byte(`not even json`)},
	}
	for _, f := range frames {
		require.NoError(t, c.WriteMessage(f.mt, f.data))
	}
	for _, f := range frames {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
		mt, data, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, f.mt, mt)
		assert.Equal(t, f.data, data)
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, "app_id=1089", up.query)
}

func TestBridgeClientCloseTearsDownUpstream(t *testing.T) {
	up := newEchoUpstream(t, 0)
	c := startRelay(t, wsURL(up.srv.URL))
	assert.Equal(t, StatusConnected, readStatus(t, c).Status)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"ping":1}`)))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"ping":1}`, string(data))

	require.NoError(t, c.Close())
	select {
	case <-up.closed:
	case <-time.After(3 * time.Second):
		t.Fatal("upstream connection still open after client left")
	}
}

func TestBridgeReportsUpstreamClose(t *testing.T) {
	up := newEchoUpstream(t, 1)
	c := startRelay(t, wsURL(up.srv.URL))
	readStatus(t, c)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"ping":1}`)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"ping":1}`, string(data))

	assert.Equal(t, StatusDisconnected, readStatus(t, c).Status)

	_, _, err = c.ReadMessage()
	assert.Error(t, err)
}

func TestBridgeReportsDialError(t *testing.T) {
	c := startRelay(t, "ws://127.0.0.1:1/websockets/v3")

	st := readStatus(t, c)
	assert.Equal(t, StatusError, st.Status)
	assert.NotEmpty(t, st.Message)

	_, _, err := c.ReadMessage()
	assert.Error(t, err)
}

func TestRouterLivez(t *testing.T) {
	reg := metrics.NewRegistry()
	b := New("ws://127.0.0.1:1", zaptest.NewLogger(t), metrics.New(reg))
	srv := httptest.NewServer(NewRouter(b, reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/livez")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
