package sink

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidemark-io/tidemark/telemetry"
	"github.com/tidemark-io/tidemark/tracker"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Publisher delivers an encoded progress event to an external system.
type Publisher interface {
	Publish(subject string, payload []byte) error
	Close() error
}

// Envelope is the wire form of a progress event.
type Envelope struct {
	ShardName string    `msgpack:"shard"`
	Position  int64     `msgpack:"position"`
	Action    string    `msgpack:"action"`
	NodeID    string    `msgpack:"node_id"`
	Timestamp time.Time `msgpack:"ts"`
}

// Relay forwards progress events from the tracker to a Publisher. Publish
// failures are logged and dropped; downstream consumers that need a reliable
// feed reconcile from the tracker's current state on reconnect.
type Relay struct {
	trk           *tracker.Tracker
	pub           Publisher
	subjectPrefix string
	nodeID        string
	logger        *zap.Logger
	clock         func() time.Time
	events        <-chan tracker.ShardState
	cancelSub     func()
	started       bool
	stopped       bool
	stop          chan struct{}
	done          chan struct{}
}

func NewRelay(trk *tracker.Tracker, pub Publisher, subjectPrefix, nodeID string, logger *zap.Logger) *Relay {
	return &Relay{
		trk:           trk,
		pub:           pub,
		subjectPrefix: subjectPrefix,
		nodeID:        nodeID,
		logger:        logger.Named("sink").With(zap.String("subject-prefix", subjectPrefix)),
		clock:         time.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (r *Relay) Start() {
	r.started = true
	r.events, r.cancelSub = r.trk.Subscribe()
	go func() {
		defer close(r.done)
		for {
			select {
			case <-r.stop:
				r.logger.Info("progress relay stopped")
				return
			case e, ok := <-r.events:
				if !ok {
					return
				}
				r.forward(e)
			}
		}
	}()
}

// Stop is safe to call before Start and safe to call more than once.
func (r *Relay) Stop() {
	if !r.started || r.stopped {
		return
	}
	r.stopped = true
	close(r.stop)
	<-r.done
	r.cancelSub()
}

func (r *Relay) Done() <-chan struct{} {
	return r.done
}

func (r *Relay) forward(e tracker.ShardState) {
	payload, err := msgpack.Marshal(Envelope{
		ShardName: e.ShardName,
		Position:  e.Position,
		Action:    string(e.Action),
		NodeID:    r.nodeID,
		Timestamp: r.clock(),
	})
	if err != nil {
		r.logger.Error("failed to encode progress event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s", r.subjectPrefix, subjectToken(e.ShardName))
	if err := r.pub.Publish(subject, payload); err != nil {
		telemetry.ProgressPublishFailures.Inc()
		r.logger.Warn("failed to publish progress event",
			zap.String("subject", subject),
			zap.Int64("position", e.Position),
			zap.Error(err))
		return
	}
	telemetry.ProgressPublished.Inc()
}

// subjectToken turns a shard name into a valid subject token: no "."
// (subject separator) and no "$" (reserved for system subjects).
func subjectToken(shard string) string {
	token := strings.TrimPrefix(shard, "$")
	return strings.ReplaceAll(token, ".", "_")
}
