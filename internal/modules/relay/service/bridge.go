package service

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"digit_bot/internal/metrics"
	"digit_bot/internal/modules/config"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnectionStatus управляющий кадр relay для клиента.
type ConnectionStatus struct {
	MsgType string `json:"msg_type"`
	Status  string `json:"status"` // connected | disconnected | error
	Message string `json:"message,omitempty"`
}

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// Bridge прозрачный прокси: на каждое клиентское соединение ровно одно
// соединение к бирже. Кадры идут как есть, в том же порядке и с тем же типом.
type Bridge struct {
	upstream string
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader
	log      *zap.Logger
	metrics  *metrics.Metrics

	pairs sync.WaitGroup
}

func NewBridge(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *Bridge {
	up := config.ExchangeConfig{URL: cfg.Relay.Upstream, AppID: cfg.Relay.AppID}
	return New(up.Endpoint(), log, m)
}

func New(upstream string, log *zap.Logger, m *metrics.Metrics) *Bridge {
	return &Bridge{
		upstream: upstream,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// relay для своих клиентов, origin не проверяем
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:     log.Named("relay"),
		metrics: m,
	}
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	b.pairs.Add(1)
	defer b.pairs.Done()

	log := b.log.With(zap.String("pair", uuid.NewString()), zap.String("remote", r.RemoteAddr))
	b.metrics.RelayPairs.Inc()
	defer b.metrics.RelayPairs.Dec()

	up, _, err := b.dialer.DialContext(r.Context(), b.upstream, nil)
	if err != nil {
		log.Warn("upstream dial failed", zap.Error(err))
		b.status(client, StatusError, err.Error())
		closeConn(client, websocket.CloseTryAgainLater, "upstream unavailable")
		return
	}
	b.status(client, StatusConnected, "")
	log.Info("pair open")

	var clientGone atomic.Bool
	done := make(chan struct{})

	// биржа -> клиент
	go func() {
		defer close(done)
		for {
			mt, data, err := up.ReadMessage()
			if err != nil {
				if clientGone.Load() {
					return
				}
				st := StatusError
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					st = StatusDisconnected
				}
				log.Info("upstream closed", zap.String("status", st), zap.Error(err))
				b.status(client, st, err.Error())
				closeConn(client, websocket.CloseNormalClosure, "upstream closed")
				return
			}
			if err := client.WriteMessage(mt, data); err != nil {
				_ = up.Close()
				return
			}
			b.metrics.RelayFrames.WithLabelValues("downstream").Inc()
		}
	}()

	// клиент -> биржа
	for {
		mt, data, err := client.ReadMessage()
		if err != nil {
			clientGone.Store(true)
			closeConn(up, websocket.CloseNormalClosure, "")
			break
		}
		if err := up.WriteMessage(mt, data); err != nil {
			// читающая горутина увидит ошибку и сообщит клиенту
			_ = up.Close()
			break
		}
		b.metrics.RelayFrames.WithLabelValues("upstream").Inc()
	}

	<-done
	_ = client.Close()
	log.Info("pair closed")
}

// Wait ожидание закрытия всех пар.
func (b *Bridge) Wait() { b.pairs.Wait() }

func (b *Bridge) status(c *websocket.Conn, status, message string) {
	bs, err := sonic.Marshal(ConnectionStatus{MsgType: "connection_status", Status: status, Message: message})
	if err != nil {
		return
	}
	_ = c.WriteMessage(websocket.TextMessage, bs)
}

func closeConn(c *websocket.Conn, code int, reason string) {
	_ = c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = c.Close()
}
