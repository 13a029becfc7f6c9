package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"digit_bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func tickEvent(digit int) models.TradingEvent {
	return models.NewEvent(models.EventTick, models.TickPayload{Tick: models.Tick{Symbol: "R_100", Digit: digit}})
}

func TestBusDeliversToAllListenersOnce(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	var a, b []models.TradingEvent
	bus.AddListener(func(ev models.TradingEvent) { a = append(a, ev) })
	bus.AddListener(func(ev models.TradingEvent) { b = append(b, ev) })

	bus.Emit(tickEvent(3))

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, models.EventTick, a[0].Kind)
}

func TestBusRemoveBeforeEmit(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	var a, b int
	idA := bus.AddListener(func(models.TradingEvent) { a++ })
	bus.AddListener(func(models.TradingEvent) { b++ })

	require.True(t, bus.RemoveListener(idA))
	require.False(t, bus.RemoveListener(idA))

	bus.Emit(tickEvent(1))
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 1, bus.Len())
}

func TestBusSelfRemovalDuringDispatch(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	var order []string
	var selfID ListenerID
	bus.AddListener(func(models.TradingEvent) { order = append(order, "first") })
	selfID = bus.AddListener(func(models.TradingEvent) {
		order = append(order, "self")
		bus.RemoveListener(selfID)
	})
	bus.AddListener(func(models.TradingEvent) { order = append(order, "last") })

	bus.Emit(tickEvent(1))
	bus.Emit(tickEvent(2))

	assert.Equal(t, []string{"first", "self", "last", "first", "last"}, order)
}

func TestBusPreservesEmissionOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	var digits []int
	bus.AddListener(func(ev models.TradingEvent) {
		digits = append(digits, ev.Payload.(models.TickPayload).Tick.Digit)
	})
	for d := 0; d < 10; d++ {
		bus.Emit(tickEvent(d))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, digits)
}

func TestBusListenerPanicDoesNotBreakOthers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	got := 0
	bus.AddListener(func(models.TradingEvent) { panic("boom") })
	bus.AddListener(func(models.TradingEvent) { got++ })

	require.NotPanics(t, func() { bus.Emit(tickEvent(1)) })
	assert.Equal(t, 1, got)
}

func TestAsyncListenerKeepsOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan int, 16)
	bus := NewBus(zaptest.NewLogger(t))
	bus.AddListener(Async(ctx, zaptest.NewLogger(t), func(ev models.TradingEvent) {
		out <- ev.Payload.(models.TickPayload).Tick.Digit
	}))

	for d := 0; d < 5; d++ {
		bus.Emit(tickEvent(d))
	}
	for want := 0; want < 5; want++ {
		select {
		case got := <-out:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("async listener did not deliver digit %d", want)
		}
	}
}

func TestAsyncListenerDeliversEverythingToSlowListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	var (
		mu  sync.Mutex
		got []int
	)
	bus := NewBus(zaptest.NewLogger(t))
	bus.AddListener(Async(ctx, zaptest.NewLogger(t), func(ev models.TradingEvent) {
		<-release
		mu.Lock()
		got = append(got, ev.Payload.(models.TickPayload).Tick.Digit)
		mu.Unlock()
	}))

	const n = 50
	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		for i := 0; i < n; i++ {
			bus.Emit(tickEvent(i % 10))
		}
	}()
	select {
	case <-emitted:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a stalled async listener")
	}

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == n
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, d := range got {
		assert.Equal(t, i%10, d)
	}
}
