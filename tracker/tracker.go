package tracker

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// defaultBufferSize is the buffer size for subscriber channels. Publishing is
// non-blocking; a subscriber that falls more than this many events behind has
// events dropped rather than stalling the agent.
const defaultBufferSize = 16

// subscription is a single subscriber to progress events.
type subscription struct {
	id     uint64
	ch     chan ShardState
	closed atomic.Bool
}

func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Tracker holds the last published high-water mark and fans progress events
// out to subscribers. One Tracker exists per daemon; it is not persisted.
// Publishing is fire-and-forget broadcast: subscribers see only events
// published after they subscribe.
type Tracker struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	positions     map[string]int64
	nextID        atomic.Uint64
	highWater     atomic.Int64
	logger        *zap.Logger
}

func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		subscriptions: make(map[uint64]*subscription),
		positions:     make(map[string]int64),
		logger:        logger.Named("tracker"),
	}
}

// MarkHighWater broadcasts pos as the published high-water mark. Marks never
// move backwards: a pos at or below the current mark is ignored.
func (t *Tracker) MarkHighWater(pos int64) {
	if pos <= t.highWater.Load() {
		return
	}
	t.Publish(ShardState{
		ShardName: HighWaterMark,
		Position:  pos,
		Action:    ActionUpdated,
	})
}

// HighWater returns the last published high-water mark, 0 if none yet.
func (t *Tracker) HighWater() int64 {
	return t.highWater.Load()
}

// Publish broadcasts state to all current subscribers. Sends are
// non-blocking; a full subscriber buffer drops the event for that subscriber.
// States on the high-water channel advance the published mark, never lower it.
func (t *Tracker) Publish(state ShardState) {
	if state.ShardName == HighWaterMark {
		for {
			current := t.highWater.Load()
			if state.Position <= current || t.highWater.CompareAndSwap(current, state.Position) {
				break
			}
		}
	}

	t.mu.Lock()
	t.positions[state.ShardName] = state.Position
	t.mu.Unlock()

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, sub := range t.subscriptions {
		select {
		case sub.ch <- state:
		default:
			t.logger.Debug("dropped progress event for slow subscriber",
				zap.Uint64("subscription", sub.id),
				zap.String("shard", state.ShardName))
		}
	}
}

// Positions returns a copy of the last reported position per shard.
func (t *Tracker) Positions() map[string]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int64, len(t.positions))
	for k, v := range t.positions {
		out[k] = v
	}
	return out
}

// Subscribe registers a new subscriber and returns its event channel along
// with a cancel function. Cancel is idempotent and closes the channel.
func (t *Tracker) Subscribe() (<-chan ShardState, func()) {
	sub := &subscription{
		id: t.nextID.Add(1),
		ch: make(chan ShardState, defaultBufferSize),
	}

	t.mu.Lock()
	t.subscriptions[sub.id] = sub
	t.mu.Unlock()

	cancel := func() {
		t.unsubscribe(sub.id)
	}
	return sub.ch, cancel
}

func (t *Tracker) unsubscribe(id uint64) {
	t.mu.Lock()
	sub, ok := t.subscriptions[id]
	if ok {
		delete(t.subscriptions, id)
	}
	t.mu.Unlock()

	if ok {
		sub.close()
	}
}
