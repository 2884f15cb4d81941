package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	ev, err := NewEnvelope("server", TypeChat, 1, ChatEvent{Username: "alice", World: "default", Text: "hi", Scope: "world"})
	require.NoError(t, err)

	_, err = uuid.Parse(ev.ID)
	assert.NoError(t, err, "ID должен быть UUID")
	assert.Equal(t, TypeChat, ev.EventType)
	assert.Equal(t, 1, ev.Version)

	var chat ChatEvent
	require.NoError(t, ev.Decode(&chat))
	assert.Equal(t, "hi", chat.Text)
}

func TestMemoryBusDeliversInOrder(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{TypePlayerJoin}}, func(ctx context.Context, ev *Envelope) {
		var p PlayerEvent
		_ = ev.Decode(&p)
		mu.Lock()
		got = append(got, p.Username)
		mu.Unlock()
	})
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		ev, err := NewEnvelope("server", TypePlayerJoin, 1, PlayerEvent{Username: name})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	// Событие другого типа фильтруется
	other, _ := NewEnvelope("server", TypeChat, 1, ChatEvent{})
	require.NoError(t, bus.Publish(context.Background(), other))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
	mu.Unlock()
	assert.Equal(t, uint64(4), bus.Metrics().Published)
}

func TestMemoryBusDropsLowPriorityWhenFull(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()

	block := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		<-block
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		ev, _ := NewEnvelope("server", TypeChat, 0, ChatEvent{})
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	assert.Greater(t, bus.Metrics().Dropped, uint64(0))
	close(block)
}

func TestMemoryBusUnsubscribeAndClose(t *testing.T) {
	bus := NewMemoryBus(4)

	var mu sync.Mutex
	count := 0
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	sub.Unsubscribe()

	ev, _ := NewEnvelope("server", TypeChat, 1, ChatEvent{})
	require.NoError(t, bus.Publish(context.Background(), ev))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, count)
	mu.Unlock()

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrClosed)
}

func TestMetricsExporterCollect(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)

	ev, _ := NewEnvelope("server", TypeChat, 1, ChatEvent{})
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Publish(context.Background(), ev))

	prev := me.collect(Stats{})
	assert.Equal(t, float64(2), testutil.ToFloat64(me.published))
	me.collect(prev)
	assert.Equal(t, float64(2), testutil.ToFloat64(me.published), "повторный сбор не удваивает счётчик")
}

func TestJetStreamSubjects(t *testing.T) {
	assert.Equal(t, "blockverse.*", subject(""))
	assert.Equal(t, "blockverse.Chat", subject(TypeChat))
}
