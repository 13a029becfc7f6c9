package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"digit_bot/internal/errs"
	"digit_bot/internal/metrics"
	"digit_bot/internal/models"
	"digit_bot/internal/modules/config"

	"github.com/gorilla/websocket"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrAlreadyStarted = errors.New("session already started")

// кадры этих типов одновременно и ответ на запрос, и элемент потока
var streamTypes = map[string]bool{
	"tick":                   true,
	"balance":                true,
	"proposal_open_contract": true,
}

// InboundKind что лежит в Inbound.
type InboundKind int

const (
	InboundFrame InboundKind = iota
	InboundAuthorized
	InboundDisconnected
	InboundReconnected
)

// Inbound элемент входящей очереди для движка: кадр потока или смена статуса сессии.
type Inbound struct {
	Kind    InboundKind
	Frame   *Frame
	Account models.Account
	Err     error
}

type Config struct {
	URL            string
	RequestTimeout time.Duration
	PingInterval   time.Duration
	Backoff        Backoff
	RateLimit      float64
	RateBurst      int
	InboundBuffer  int
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		URL:            cfg.Exchange.Endpoint(),
		RequestTimeout: cfg.Session.RequestTimeout,
		PingInterval:   cfg.Session.PingInterval,
		Backoff: Backoff{
			Min:    cfg.Session.BackoffMin,
			Max:    cfg.Session.BackoffMax,
			Factor: cfg.Session.BackoffFactor,
		},
		RateLimit: cfg.Session.RateLimit,
		RateBurst: cfg.Session.RateBurst,
	}
}

// Session одно аутентифицированное соединение с биржей.
//
// Ответы на запросы сопоставляются по req_id прямо в читающей горутине,
// всё остальное (тики, баланс, контракты, смена статуса) уходит в Inbound
// в порядке прихода. Ответ на запрос, чьё ожидание истекло, отбрасывается.
type Session struct {
	cfg     Config
	log     *zap.Logger
	dialer  Dialer
	metrics *metrics.Metrics
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error

	inbound chan Inbound
	reqID   atomic.Int64
	subs    *subscriptions

	mu        sync.Mutex
	state     models.SessionState
	account   models.Account
	conn      Conn
	pending   map[int64]chan *Frame
	abandoned map[int64]struct{}
	cancel    context.CancelFunc
	done      chan struct{}

	writeMu sync.Mutex
}

// NewSession конструктор для fx.
func NewSession(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *Session {
	return New(ConfigFrom(cfg), NewDialer(), log, m)
}

func New(cfg Config, dialer Dialer, log *zap.Logger, m *metrics.Metrics) *Session {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = 1024
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Session{
		cfg:       cfg,
		log:       log.Named("session"),
		dialer:    dialer,
		metrics:   m,
		limiter:   rate.NewLimiter(limit, burst),
		sleep:     sleepCtx,
		inbound:   make(chan Inbound, cfg.InboundBuffer),
		subs:      newSubscriptions(),
		pending:   make(map[int64]chan *Frame),
		abandoned: make(map[int64]struct{}),
	}
}

// Inbound очередь для движка. Не закрывается.
func (s *Session) Inbound() <-chan Inbound { return s.inbound }

func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Account() models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Subscribed желаемые подписки на тики.
func (s *Session) Subscribed() []string { return s.subs.Symbols() }

// Start подключается и авторизуется токеном account. Ошибка авторизации
// терминальна: автоматического повтора нет, сессия остаётся Disconnected.
func (s *Session) Start(ctx context.Context, account models.Account) error {
	s.mu.Lock()
	if s.state != models.SessionDisconnected {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.state = models.SessionConnecting
	s.account = account
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	readErr, err := s.connect(ctx, runCtx)
	if err != nil {
		cancel()
		close(done)
		s.teardown(models.SessionDisconnected)
		return err
	}

	go func() {
		defer close(done)
		s.supervise(runCtx, readErr)
	}()
	return nil
}

// Stop закрывает соединение, ожидающие запросы получают TransportError.
// Желаемые подписки сохраняются до следующего Start.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	s.teardown(models.SessionDisconnected)

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("session stopped")
	return nil
}

// Subscribe подписка на тики symbol. Повторный вызов ничего не делает.
func (s *Session) Subscribe(ctx context.Context, symbol string) error {
	if !s.subs.Add(symbol) {
		return nil
	}
	if !s.State().Live() {
		// подпишемся после (пере)подключения
		return nil
	}

	s.setState(models.SessionSubscribing)
	f, err := s.Send(ctx, SubscribeTicks(symbol))
	if err != nil && errs.CodeOf(err) != "AlreadySubscribed" {
		s.subs.Remove(symbol)
		s.settle()
		return err
	}
	if f != nil {
		s.subs.SetID(symbol, f.SubscriptionID())
	}
	s.settle()
	s.log.Info("subscribed", zap.String("symbol", symbol))
	return nil
}

// Unsubscribe отписка. После возврата тики symbol в Inbound не попадают.
func (s *Session) Unsubscribe(ctx context.Context, symbol string) error {
	id, ok := s.subs.Remove(symbol)
	if !ok {
		return nil
	}
	defer s.settle()
	if id == "" || !s.State().Live() {
		return nil
	}
	if _, err := s.Send(ctx, Forget(id)); err != nil {
		return err
	}
	s.log.Info("unsubscribed", zap.String("symbol", symbol))
	return nil
}

// Send запрос с ожиданием ответа по req_id. Ответ с полем error возвращается
// вместе с ошибкой класса APIError.
func (s *Session) Send(ctx context.Context, req Request) (*Frame, error) {
	if !s.State().Live() {
		return nil, errs.New(errs.KindTransport, "%s: session is %s", req.MsgType(), s.State())
	}
	return s.request(ctx, req)
}

func (s *Session) request(ctx context.Context, req Request) (*Frame, error) {
	msgType := req.MsgType()
	span, ctx := opentracing.StartSpanFromContext(ctx, "exchange."+msgType)
	defer span.Finish()

	f, err := s.roundTrip(ctx, span, req)
	if err != nil {
		ext.Error.Set(span, true)
		span.LogKV("error", err.Error())
	}
	return f, err
}

func (s *Session) roundTrip(ctx context.Context, span opentracing.Span, req Request) (*Frame, error) {
	msgType := req.MsgType()
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.KindRequestTimeout, err, msgType+": rate limit wait")
	}

	id := s.reqID.Add(1)
	span.SetTag("req_id", id)
	data, err := encodeRequest(req, id)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, msgType)
	}

	ch := make(chan *Frame, 1)
	s.mu.Lock()
	conn := s.conn
	if conn != nil {
		s.pending[id] = ch
	}
	s.mu.Unlock()
	if conn == nil {
		return nil, errs.New(errs.KindTransport, "%s: no connection", msgType)
	}

	started := time.Now()
	if err := s.write(conn, data); err != nil {
		s.forget(id, false)
		return nil, errs.Wrap(errs.KindTransport, err, msgType+": write")
	}

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case f, ok := <-ch:
		if !ok {
			return nil, errs.New(errs.KindTransport, "%s: connection lost before response", msgType)
		}
		s.metrics.RequestDuration.WithLabelValues(msgType).Observe(time.Since(started).Seconds())
		if f.Error != nil {
			return f, f.Err()
		}
		return f, nil
	case <-timer.C:
		s.forget(id, true)
		return nil, errs.New(errs.KindRequestTimeout, "%s req_id=%d: no response in %s", msgType, id, s.cfg.RequestTimeout)
	case <-ctx.Done():
		s.forget(id, true)
		return nil, errs.Wrap(errs.KindRequestTimeout, ctx.Err(), msgType)
	}
}

// forget снимает ожидание; abandon=true значит поздний ответ надо выбросить.
func (s *Session) forget(id int64, abandon bool) {
	s.mu.Lock()
	delete(s.pending, id)
	if abandon {
		s.abandoned[id] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Session) write(conn Conn, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// connect dial + authorize. Читающая горутина шлёт ошибку чтения в readErr.
func (s *Session) connect(ctx, runCtx context.Context) (<-chan error, error) {
	s.setState(models.SessionConnecting)
	conn, err := s.dialer.Dial(ctx, s.cfg.URL)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "dial")
	}

	readErr := make(chan error, 1)
	s.mu.Lock()
	s.conn = conn
	// req_id прошлого соединения на новом не придут
	s.abandoned = make(map[int64]struct{})
	token := s.account.Token
	s.mu.Unlock()
	go s.readLoop(runCtx, conn, readErr)

	s.setState(models.SessionAuthorizing)
	f, err := s.request(ctx, Authorize(token))
	if err != nil {
		s.dropConn(conn)
		if errs.Is(err, errs.KindAPI) {
			return nil, errs.WithCode(errs.KindAuth, errs.CodeOf(err), "authorize rejected")
		}
		return nil, err
	}

	var resp AuthorizeResponse
	if err := f.Decode(&resp); err != nil {
		s.dropConn(conn)
		return nil, errs.Wrap(errs.KindInternal, err, "authorize")
	}

	s.mu.Lock()
	s.account.LoginID = resp.Authorize.LoginID
	s.account.Currency = resp.Authorize.Currency
	s.account.Balance = resp.Authorize.Balance
	s.account.IsVirtual = resp.Authorize.IsVirtual == 1
	acc := s.account
	s.mu.Unlock()

	s.setState(models.SessionAuthorized)
	s.log.Info("authorized",
		zap.String("loginid", acc.LoginID),
		zap.String("currency", acc.Currency),
		zap.Bool("virtual", acc.IsVirtual),
	)
	s.push(runCtx, Inbound{Kind: InboundAuthorized, Account: acc})
	return readErr, nil
}

// supervise держит соединение: keepalive, при обрыве backoff и переподключение.
func (s *Session) supervise(ctx context.Context, readErr <-chan error) {
	defer func() {
		// Stop мог совпасть с успешным переподключением
		if ctx.Err() != nil {
			s.teardown(models.SessionDisconnected)
		}
	}()
	for {
		err := s.serve(ctx, readErr)
		if ctx.Err() != nil {
			return
		}

		s.failPending()
		s.teardown(models.SessionReconnecting)
		lost := errs.Wrap(errs.KindTransport, err, "connection lost")
		s.log.Warn("connection lost", zap.Error(err))
		s.push(ctx, Inbound{Kind: InboundDisconnected, Err: lost})

		readErr = s.reconnect(ctx)
		if readErr == nil {
			return
		}
		s.push(ctx, Inbound{Kind: InboundReconnected, Account: s.Account()})
	}
}

func (s *Session) serve(ctx context.Context, readErr <-chan error) error {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()

	ping, _ := encodeRequest(Ping(), 0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-t.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := s.write(conn, ping); err != nil {
				_ = conn.Close()
				return errors.Wrap(err, "ping")
			}
		}
	}
}

// reconnect до успеха или остановки. nil значит сессия завершена.
func (s *Session) reconnect(ctx context.Context) <-chan error {
	for attempt := 1; ; attempt++ {
		wait := s.cfg.Backoff.Next(attempt)
		s.log.Info("reconnecting", zap.Int("attempt", attempt), zap.Duration("wait", wait))
		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
		s.metrics.Reconnects.Inc()

		readErr, err := s.connect(ctx, ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errs.Is(err, errs.KindAuth) {
				// токен отозван: дальше пробовать бессмысленно
				s.log.Error("reauthorize rejected, giving up", zap.Error(err))
				s.teardown(models.SessionDisconnected)
				s.push(ctx, Inbound{Kind: InboundDisconnected, Err: err})
				s.mu.Lock()
				cancel := s.cancel
				s.cancel = nil
				s.mu.Unlock()
				if cancel != nil {
					cancel()
				}
				return nil
			}
			s.log.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			s.setState(models.SessionReconnecting)
			continue
		}

		if err := s.resubscribe(ctx); err != nil {
			s.log.Warn("resubscribe failed", zap.Error(err))
			s.failPending()
			s.teardown(models.SessionReconnecting)
			continue
		}
		return readErr
	}
}

func (s *Session) resubscribe(ctx context.Context) error {
	s.subs.ClearIDs()
	symbols := s.subs.Symbols()
	if len(symbols) == 0 {
		return nil
	}
	s.setState(models.SessionSubscribing)
	for _, sym := range symbols {
		f, err := s.request(ctx, SubscribeTicks(sym))
		if err != nil && errs.CodeOf(err) != "AlreadySubscribed" {
			return err
		}
		if f != nil {
			s.subs.SetID(sym, f.SubscriptionID())
		}
	}
	s.setState(models.SessionTrading)
	s.log.Info("resubscribed", zap.Strings("symbols", symbols))
	return nil
}

func (s *Session) readLoop(ctx context.Context, conn Conn, readErr chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		f, err := DecodeFrame(data)
		if err != nil {
			s.log.Warn("skip malformed frame", zap.Error(err))
			continue
		}
		s.route(ctx, f)
	}
}

func (s *Session) route(ctx context.Context, f *Frame) {
	if f.MsgType == "ping" {
		return
	}
	if f.ReqID != 0 {
		s.mu.Lock()
		ch, waiting := s.pending[f.ReqID]
		_, dropped := s.abandoned[f.ReqID]
		if waiting {
			delete(s.pending, f.ReqID)
		}
		s.mu.Unlock()

		if waiting {
			ch <- f
			if !streamTypes[f.MsgType] || f.Error != nil {
				return
			}
		} else if dropped && !streamTypes[f.MsgType] {
			s.log.Debug("drop late response", zap.Int64("req_id", f.ReqID), zap.String("msg_type", f.MsgType))
			return
		}
	}

	if f.MsgType == "tick" && !s.wantTick(f) {
		return
	}
	s.push(ctx, Inbound{Kind: InboundFrame, Frame: f})
}

// wantTick тики отписанных символов не пропускаем.
func (s *Session) wantTick(f *Frame) bool {
	var t TickResponse
	if err := f.Decode(&t); err != nil {
		return false
	}
	return s.subs.Has(t.Tick.Symbol)
}

func (s *Session) push(ctx context.Context, in Inbound) {
	select {
	case s.inbound <- in:
	case <-ctx.Done():
	}
}

// failPending ожидающие запросы получают TransportError (канал закрывается).
func (s *Session) failPending() {
	s.mu.Lock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
		s.abandoned[id] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Session) dropConn(conn Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

// teardown закрывает текущее соединение и выставляет state.
func (s *Session) teardown(state models.SessionState) {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
	if state == models.SessionDisconnected {
		s.failPending()
	}
	s.setState(state)
}

// settle Trading при наличии подписок, иначе Authorized.
func (s *Session) settle() {
	if !s.State().Live() {
		return
	}
	if s.subs.Count() > 0 {
		s.setState(models.SessionTrading)
		return
	}
	s.setState(models.SessionAuthorized)
}

func (s *Session) setState(st models.SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Debug("state", zap.Stringer("from", prev), zap.Stringer("to", st))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
