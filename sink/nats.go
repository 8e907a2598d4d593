package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const natsOpTimeout = 5 * time.Second

// NatsPublisher publishes progress events to a NATS JetStream stream.
type NatsPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewNatsPublisher connects to NATS and ensures a stream covering every
// subject under subjectPrefix.
func NewNatsPublisher(url, subjectPrefix string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), natsOpTimeout)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      sanitizeStreamName(subjectPrefix),
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream for %s: %w", subjectPrefix, err)
	}

	return &NatsPublisher{nc: nc, js: js}, nil
}

func (n *NatsPublisher) Publish(subject string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), natsOpTimeout)
	defer cancel()

	_, err := n.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (n *NatsPublisher) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// sanitizeStreamName converts a subject prefix to a valid JetStream stream
// name; stream names cannot contain ".".
func sanitizeStreamName(prefix string) string {
	return strings.ToUpper(strings.ReplaceAll(prefix, ".", "_"))
}
