package service

import (
	"sync"
	"sync/atomic"

	"digit_bot/internal/models"

	"go.uber.org/zap"
)

// Listener получает каждое событие ровно один раз, в порядке Emit.
type Listener func(ev models.TradingEvent)

// ListenerID хэндл для RemoveListener (функции в Go не сравниваются).
type ListenerID uint64

type entry struct {
	id      ListenerID
	fn      Listener
	removed atomic.Bool
}

// Bus синхронная pub/sub шина движка.
// Список слушателей copy-on-write: Emit идёт по снимку, поэтому
// добавить/удалить слушателя можно прямо из колбэка.
type Bus struct {
	log *zap.Logger

	mu        sync.Mutex // только для писателей списка
	nextID    ListenerID
	listeners atomic.Pointer[[]*entry]
}

func NewBus(log *zap.Logger) *Bus {
	b := &Bus{log: log.Named("eventbus")}
	empty := make([]*entry, 0)
	b.listeners.Store(&empty)
	return b
}

func (b *Bus) AddListener(fn Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	e := &entry{id: b.nextID, fn: fn}

	cur := *b.listeners.Load()
	next := make([]*entry, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, e)
	b.listeners.Store(&next)
	return e.id
}

// RemoveListener false, если такого id нет.
// Удалённый во время рассылки слушатель текущее событие уже не получит.
func (b *Bus) RemoveListener(id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.listeners.Load()
	next := make([]*entry, 0, len(cur))
	found := false
	for _, e := range cur {
		if e.id == id {
			e.removed.Store(true)
			found = true
			continue
		}
		next = append(next, e)
	}
	if found {
		b.listeners.Store(&next)
	}
	return found
}

func (b *Bus) Len() int {
	return len(*b.listeners.Load())
}

// Emit рассылает событие всем слушателям из текущего снимка.
// Паника слушателя логируется и не мешает остальным.
func (b *Bus) Emit(ev models.TradingEvent) {
	snapshot := *b.listeners.Load()
	for _, e := range snapshot {
		if e.removed.Load() {
			continue
		}
		b.call(e, ev)
	}
}

func (b *Bus) call(e *entry, ev models.TradingEvent) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error("listener panic",
				zap.Uint64("listener", uint64(e.id)),
				zap.String("event", string(ev.Kind)),
				zap.Any("panic", p),
			)
		}
	}()
	e.fn(ev)
}
