package service

import (
	"context"
	"testing"
	"time"

	"digit_bot/internal/errs"
	"digit_bot/internal/metrics"
	"digit_bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSession(t *testing.T, url string, dialer Dialer) *Session {
	t.Helper()
	if dialer == nil {
		dialer = NewDialer()
	}
	s := New(Config{
		URL:            url,
		RequestTimeout: 2 * time.Second,
		PingInterval:   time.Hour,
		Backoff:        DefaultBackoff(),
	}, dialer, zaptest.NewLogger(t), metrics.New(metrics.NewRegistry()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func waitInbound(t *testing.T, s *Session, match func(Inbound) bool) Inbound {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case in := <-s.Inbound():
			if match(in) {
				return in
			}
		case <-deadline:
			t.Fatal("expected inbound item did not arrive")
			return Inbound{}
		}
	}
}

func isKind(k InboundKind) func(Inbound) bool {
	return func(in Inbound) bool { return in.Kind == k }
}

func isTick(symbol string) func(Inbound) bool {
	return func(in Inbound) bool {
		if in.Kind != InboundFrame || in.Frame.MsgType != "tick" {
			return false
		}
		var tr TickResponse
		return in.Frame.Decode(&tr) == nil && tr.Tick.Symbol == symbol
	}
}

func TestSessionAuthorizes(t *testing.T) {
	fx := newFakeExchange(t)
	s := newTestSession(t, fx.URL(), nil)

	require.NoError(t, s.Start(context.Background(), models.Account{Token: "good"}))
	assert.Equal(t, models.SessionAuthorized, s.State())

	in := waitInbound(t, s, isKind(InboundAuthorized))
	assert.Equal(t, "VRTC100", in.Account.LoginID)
	assert.Equal(t, "USD", in.Account.Currency)
	assert.True(t, in.Account.IsVirtual)
	assert.InDelta(t, 1000.5, in.Account.Balance, 1e-9)

	assert.ErrorIs(t, s.Start(context.Background(), models.Account{Token: "good"}), ErrAlreadyStarted)
}

func TestSessionAuthRejectedIsTerminal(t *testing.T) {
	fx := newFakeExchange(t)
	s := newTestSession(t, fx.URL(), nil)

	err := s.Start(context.Background(), models.Account{Token: "bad"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAuth))
	assert.Equal(t, "InvalidToken", errs.CodeOf(err))
	assert.Equal(t, models.SessionDisconnected, s.State())
	assert.Equal(t, 1, fx.Count("authorize"))
}

func TestSessionRequestTimeoutDropsLateResponse(t *testing.T) {
	fx := newFakeExchange(t)
	fx.delay["portfolio"] = 300 * time.Millisecond

	s := newTestSession(t, fx.URL(), nil)
	s.cfg.RequestTimeout = 100 * time.Millisecond
	require.NoError(t, s.Start(context.Background(), models.Account{Token: "good"}))
	waitInbound(t, s, isKind(InboundAuthorized))

	_, err := s.Send(context.Background(), Portfolio())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindRequestTimeout))

	// поздний ответ не должен всплыть ни как ответ, ни в Inbound
	select {
	case in := <-s.Inbound():
		t.Fatalf("late response leaked: %+v", in.Frame)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestSessionAPIErrorIsReturned(t *testing.T) {
	fx := newFakeExchange(t)
	s := newTestSession(t, fx.URL(), nil)
	require.NoError(t, s.Start(context.Background(), models.Account{Token: "good"}))

	f, err := s.Send(context.Background(), Request{"authorize": "bad"})
	require.Error(t, err)
	require.NotNil(t, f)
	assert.True(t, errs.Is(err, errs.KindAPI))
	assert.Equal(t, "InvalidToken", errs.CodeOf(err))
}

func TestSessionSendRequiresLiveSession(t *testing.T) {
	s := newTestSession(t, "ws://127.0.0.1:1", nil)
	_, err := s.Send(context.Background(), Ping())
	assert.True(t, errs.Is(err, errs.KindTransport))
}

func TestSessionSubscribeIsIdempotent(t *testing.T) {
	fx := newFakeExchange(t)
	s := newTestSession(t, fx.URL(), nil)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, models.Account{Token: "good"}))

	require.NoError(t, s.Subscribe(ctx, "R_100"))
	require.NoError(t, s.Subscribe(ctx, "R_100"))

	assert.Equal(t, 1, fx.Count("ticks"))
	assert.Equal(t, []string{"R_100"}, s.Subscribed())
	assert.Equal(t, models.SessionTrading, s.State())

	// первый тик приходит ответом на subscribe и всё равно попадает в поток
	waitInbound(t, s, isTick("R_100"))

	fx.PushTick("R_100", 101.57)
	waitInbound(t, s, isTick("R_100"))
}

func TestSessionUnsubscribeStopsTicks(t *testing.T) {
	fx := newFakeExchange(t)
	s := newTestSession(t, fx.URL(), nil)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, models.Account{Token: "good"}))
	require.NoError(t, s.Subscribe(ctx, "R_50"))
	waitInbound(t, s, isTick("R_50"))

	require.NoError(t, s.Unsubscribe(ctx, "R_50"))
	assert.Equal(t, "sub-R_50", fx.Last("forget")["forget"])
	assert.Equal(t, models.SessionAuthorized, s.State())

	fx.PushTick("R_50", 55.55)
	select {
	case in := <-s.Inbound():
		t.Fatalf("tick after unsubscribe: %+v", in)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSessionReconnectsWithBackoffAndResubscribes(t *testing.T) {
	fx := newFakeExchange(t)
	dialer := &flakyDialer{inner: NewDialer(), failOn: map[int]bool{2: true, 3: true}}
	s := newTestSession(t, fx.URL(), dialer)
	rec := &sleepRecorder{}
	s.sleep = rec.Sleep

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, models.Account{Token: "good"}))
	require.NoError(t, s.Subscribe(ctx, "R_100"))
	waitInbound(t, s, isTick("R_100"))
	fx.Reset()

	fx.DropAll()

	lost := waitInbound(t, s, isKind(InboundDisconnected))
	assert.True(t, errs.Is(lost.Err, errs.KindTransport))
	waitInbound(t, s, isKind(InboundReconnected))

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.Waits())
	assert.Equal(t, models.SessionTrading, s.State())
	assert.Equal(t, 1, fx.Count("authorize"))
	assert.Equal(t, 1, fx.Count("ticks"))

	fx.PushTick("R_100", 99.99)
	waitInbound(t, s, isTick("R_100"))
}

func TestSessionStopFailsPendingRequests(t *testing.T) {
	fx := newFakeExchange(t)
	fx.silent["portfolio"] = true
	s := newTestSession(t, fx.URL(), nil)
	require.NoError(t, s.Start(context.Background(), models.Account{Token: "good"}))

	errc := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), Portfolio())
		errc <- err
	}()

	require.Eventually(t, func() bool { return fx.Count("portfolio") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	select {
	case err := <-errc:
		assert.True(t, errs.Is(err, errs.KindTransport))
	case <-time.After(time.Second):
		t.Fatal("pending request was not released by Stop")
	}
	assert.Equal(t, models.SessionDisconnected, s.State())
}
