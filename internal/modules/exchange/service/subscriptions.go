package service

import (
	"sort"
	"sync"
)

// subscriptions желаемые подписки на тики (symbol) и их id на текущем соединении.
// Желаемое переживает реконнект, id сбрасываются.
type subscriptions struct {
	mu      sync.Mutex
	desired map[string]string // symbol -> subscription id ("" пока не подтверждена)
}

func newSubscriptions() *subscriptions {
	return &subscriptions{desired: make(map[string]string)}
}

// Add true, если символ добавлен впервые.
func (s *subscriptions) Add(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.desired[symbol]; ok {
		return false
	}
	s.desired[symbol] = ""
	return true
}

// Remove возвращает id подписки и был ли символ.
func (s *subscriptions) Remove(symbol string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.desired[symbol]
	if ok {
		delete(s.desired, symbol)
	}
	return id, ok
}

func (s *subscriptions) Has(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.desired[symbol]
	return ok
}

// SetID запоминает id, только если символ всё ещё желаем.
func (s *subscriptions) SetID(symbol, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.desired[symbol]; ok {
		s.desired[symbol] = id
	}
}

func (s *subscriptions) ClearIDs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym := range s.desired {
		s.desired[sym] = ""
	}
}

// Symbols отсортированный список желаемых символов.
func (s *subscriptions) Symbols() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.desired))
	for sym := range s.desired {
		out = append(out, sym)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

func (s *subscriptions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.desired)
}
