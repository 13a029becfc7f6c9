package service

import (
	"sync/atomic"
	"time"

	"digit_bot/internal/errs"
	"digit_bot/internal/models"
)

// State то, что видно снаружи через /readyz и /healthz.
// Обновляется слушателем шины, читается http-хендлерами.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  atomic.Bool
	lastTickUnix atomic.Int64 // unix seconds
	running      atomic.Bool
	loginID      atomic.Pointer[string]
	lastError    atomic.Pointer[string]
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Running() bool { return s.running.Load() }

func (s *State) LoginID() string {
	if p := s.loginID.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *State) LastError() string {
	if p := s.lastError.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

// Observe слушатель шины. Готовность = сессия авторизована хотя бы раз.
func (s *State) Observe(ev models.TradingEvent) {
	switch p := ev.Payload.(type) {
	case models.AuthorizedPayload:
		login := p.Account.LoginID
		s.loginID.Store(&login)
		s.wsConnected.Store(true)
		s.ready.Store(true)
	case models.TickPayload:
		s.wsConnected.Store(true)
		s.TouchTick(ev.At)
	case models.BalancePayload:
		s.wsConnected.Store(true)
	case models.ErrorPayload:
		msg := p.Message
		s.lastError.Store(&msg)
		if p.Kind == string(errs.KindTransport) || p.Kind == string(errs.KindAuth) {
			s.wsConnected.Store(false)
		}
	case models.RunPayload:
		s.running.Store(ev.Kind == models.EventBotStarted)
	case models.AccountChangedPayload:
		login := p.Current
		s.loginID.Store(&login)
	}
}
