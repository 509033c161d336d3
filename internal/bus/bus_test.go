package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliveredInOrder(t *testing.T) {
	b := New(16)
	defer b.Stop()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	b.Subscribe(TopicStrategySignal, func(evt Event) {
		mu.Lock()
		got = append(got, evt.Payload.(int))
		if len(got) == 5 {
			close(done)
		}
		mu.Unlock()
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, TopicStrategySignal, i))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for delivery")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New(16)
	defer b.Stop()

	strategy := make(chan Event, 1)
	ai := make(chan Event, 1)
	b.Subscribe(TopicStrategySignal, func(evt Event) { strategy <- evt })
	b.Subscribe(TopicAIDecision, func(evt Event) { ai <- evt })

	require.NoError(t, b.Publish(context.Background(), TopicAIDecision, "decision"))

	select {
	case evt := <-ai:
		assert.Equal(t, "decision", evt.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("ai subscriber never received event")
	}
	select {
	case <-strategy:
		t.Fatal("strategy subscriber received event from other topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	b := New(16)
	defer b.Stop()

	got := make(chan int, 4)
	b.Subscribe(TopicTradeResult, func(Event) { panic("boom") })
	b.Subscribe(TopicTradeResult, func(evt Event) { got <- evt.Payload.(int) })

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, TopicTradeResult, 1))
	require.NoError(t, b.Publish(ctx, TopicTradeResult, 2))

	for _, want := range []int{1, 2} {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(2 * time.Second):
			t.Fatal("second handler starved after panic in first")
		}
	}
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	b := New(16)
	defer b.Stop()

	// Ensure the dispatch goroutine consumes the event before subscribing.
	sink := make(chan Event, 1)
	b.Subscribe(TopicFusionDecision, func(evt Event) { sink <- evt })
	require.NoError(t, b.Publish(context.Background(), TopicFusionDecision, "early"))
	<-sink

	late := make(chan Event, 1)
	b.Subscribe(TopicFusionDecision, func(evt Event) { late <- evt })
	select {
	case <-late:
		t.Fatal("late subscriber replayed old event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishAfterStopReturnsErrClosed(t *testing.T) {
	b := New(4)
	b.Stop()
	err := b.Publish(context.Background(), TopicStrategySignal, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublishBlocksUntilContextCancelled(t *testing.T) {
	b := New(1)
	defer b.Stop()

	release := make(chan struct{})
	b.Subscribe(TopicStrategySignal, func(Event) { <-release })
	defer close(release)

	ctx := context.Background()
	// First event occupies the handler, second fills the buffer.
	require.NoError(t, b.Publish(ctx, TopicStrategySignal, 1))
	require.NoError(t, b.Publish(ctx, TopicStrategySignal, 2))

	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := b.Publish(cctx, TopicStrategySignal, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
