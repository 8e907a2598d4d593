package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSubscribeReceivesPublishedState(t *testing.T) {
	trk := NewTracker(zap.NewNop())
	events, cancel := trk.Subscribe()
	defer cancel()

	trk.Publish(ShardState{ShardName: "orders", Position: 42, Action: ActionUpdated})

	select {
	case e := <-events:
		assert.Equal(t, "orders", e.ShardName)
		assert.Equal(t, int64(42), e.Position)
		assert.Equal(t, ActionUpdated, e.Action)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for progress event")
	}
}

func TestSubscriberSeesOnlyFuturePublications(t *testing.T) {
	trk := NewTracker(zap.NewNop())
	trk.MarkHighWater(10)

	events, cancel := trk.Subscribe()
	defer cancel()

	select {
	case e := <-events:
		t.Fatalf("unexpected replayed event %+v", e)
	default:
	}

	trk.MarkHighWater(20)
	e := <-events
	assert.Equal(t, int64(20), e.Position)
}

func TestMarkHighWaterIsMonotonic(t *testing.T) {
	trk := NewTracker(zap.NewNop())
	events, cancel := trk.Subscribe()
	defer cancel()

	trk.MarkHighWater(100)
	trk.MarkHighWater(100) // no-op
	trk.MarkHighWater(50)  // ignored
	trk.MarkHighWater(150)

	assert.Equal(t, int64(150), trk.HighWater())

	var positions []int64
	for len(events) > 0 {
		positions = append(positions, (<-events).Position)
	}
	assert.Equal(t, []int64{100, 150}, positions)
}

func TestStartedEventAdvancesPublishedMark(t *testing.T) {
	trk := NewTracker(zap.NewNop())

	trk.Publish(ShardState{ShardName: HighWaterMark, Position: 100, Action: ActionStarted})

	assert.Equal(t, int64(100), trk.HighWater())

	// A later Started at a lower mark reports state without moving the mark
	// backwards.
	trk.Publish(ShardState{ShardName: HighWaterMark, Position: 40, Action: ActionStarted})
	assert.Equal(t, int64(100), trk.HighWater())
}

func TestPerShardPositions(t *testing.T) {
	trk := NewTracker(zap.NewNop())

	trk.MarkHighWater(100)
	trk.Publish(ShardState{ShardName: "orders", Position: 80, Action: ActionUpdated})
	trk.Publish(ShardState{ShardName: "billing", Position: 95, Action: ActionUpdated})

	positions := trk.Positions()
	assert.Equal(t, int64(100), positions[HighWaterMark])
	assert.Equal(t, int64(80), positions["orders"])
	assert.Equal(t, int64(95), positions["billing"])
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	trk := NewTracker(zap.NewNop())
	events, cancel := trk.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= int64(defaultBufferSize)*3; i++ {
			trk.MarkHighWater(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing blocked on a slow subscriber")
	}
	assert.Equal(t, defaultBufferSize, len(events))
}

func TestCancelIsIdempotentAndClosesChannel(t *testing.T) {
	trk := NewTracker(zap.NewNop())
	events, cancel := trk.Subscribe()

	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)

	// Publishing after cancellation must not panic or deliver.
	trk.MarkHighWater(10)
}
