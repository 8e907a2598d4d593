package sink

import (
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// LogPublisher writes progress events to the log instead of an external
// system. Used when no NATS sink is configured, so progress is still
// observable on a standalone node.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("progress")}
}

func (l *LogPublisher) Publish(subject string, payload []byte) error {
	var env Envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return err
	}
	l.logger.Info("progress",
		zap.String("subject", subject),
		zap.String("shard", env.ShardName),
		zap.Int64("position", env.Position),
		zap.String("action", env.Action))
	return nil
}

func (l *LogPublisher) Close() error {
	return nil
}
