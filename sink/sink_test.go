package sink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidemark-io/tidemark/tracker"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

type capturedPublish struct {
	subject string
	payload []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	published chan capturedPublish
	failed    chan capturedPublish
	err       error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		published: make(chan capturedPublish, 16),
		failed:    make(chan capturedPublish, 16),
	}
}

func (f *fakePublisher) Publish(subject string, payload []byte) error {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		f.failed <- capturedPublish{subject: subject, payload: payload}
		return err
	}
	f.published <- capturedPublish{subject: subject, payload: payload}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) failWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakePublisher) next(t *testing.T) capturedPublish {
	t.Helper()
	select {
	case p := <-f.published:
		return p
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for publish")
		return capturedPublish{}
	}
}

func TestRelayForwardsHighWaterEvents(t *testing.T) {
	trk := tracker.NewTracker(zap.NewNop())
	pub := newFakePublisher()
	relay := NewRelay(trk, pub, "tidemark.progress", "node-1", zap.NewNop())
	relay.clock = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	relay.Start()
	defer relay.Stop()

	trk.MarkHighWater(150)

	p := pub.next(t)
	assert.Equal(t, "tidemark.progress.high-water-mark", p.subject)

	var env Envelope
	require.NoError(t, msgpack.Unmarshal(p.payload, &env))
	assert.Equal(t, tracker.HighWaterMark, env.ShardName)
	assert.Equal(t, int64(150), env.Position)
	assert.Equal(t, string(tracker.ActionUpdated), env.Action)
	assert.Equal(t, "node-1", env.NodeID)
}

func TestRelayForwardsPerShardEvents(t *testing.T) {
	trk := tracker.NewTracker(zap.NewNop())
	pub := newFakePublisher()
	relay := NewRelay(trk, pub, "tidemark.progress", "node-1", zap.NewNop())
	relay.Start()
	defer relay.Stop()

	trk.Publish(tracker.ShardState{ShardName: "orders", Position: 80, Action: tracker.ActionUpdated})

	p := pub.next(t)
	assert.Equal(t, "tidemark.progress.orders", p.subject)
}

func TestRelayDropsOnPublishFailure(t *testing.T) {
	trk := tracker.NewTracker(zap.NewNop())
	pub := newFakePublisher()
	pub.failWith(errors.New("connection reset"))
	relay := NewRelay(trk, pub, "tidemark.progress", "node-1", zap.NewNop())
	relay.Start()

	trk.MarkHighWater(10)
	select {
	case <-pub.failed:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for failed publish")
	}
	pub.failWith(nil)
	trk.MarkHighWater(20)

	// The failed event is dropped, the next one flows.
	p := pub.next(t)
	var env Envelope
	require.NoError(t, msgpack.Unmarshal(p.payload, &env))
	assert.Equal(t, int64(20), env.Position)

	relay.Stop()
	select {
	case <-relay.Done():
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelayStopBeforeStartAndDoubleStop(t *testing.T) {
	trk := tracker.NewTracker(zap.NewNop())
	relay := NewRelay(trk, newFakePublisher(), "tidemark.progress", "node-1", zap.NewNop())

	relay.Stop() // never started

	relay.Start()
	relay.Stop()
	relay.Stop()
}

func TestLogPublisherAcceptsEnvelopes(t *testing.T) {
	pub := NewLogPublisher(zap.NewNop())

	payload, err := msgpack.Marshal(Envelope{ShardName: "orders", Position: 80, Action: "Updated"})
	require.NoError(t, err)

	assert.NoError(t, pub.Publish("tidemark.progress.orders", payload))
	assert.Error(t, pub.Publish("tidemark.progress.orders", []byte("not msgpack")))
	assert.NoError(t, pub.Close())
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "high-water-mark", subjectToken(tracker.HighWaterMark))
	assert.Equal(t, "orders_v2", subjectToken("orders.v2"))
}
