package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config configures the NATS JetStream-backed Bus.
type Config struct {
	URL           string
	Source        string
	StreamName    string
	DurableName   string
	MaxAckPending int
}

// NATSBus is the production Bus: a JetStream stream stands in for the
// topic exchange, durable consumers with explicit ack stand in for durable
// queues, and MaxAckPending bounds prefetch (spec.md §4.2: "prefetch is
// bounded to avoid unbounded in-flight work").
type NATSBus struct {
	cfg    Config
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// subjects the stream captures — one wildcard per routing-key family from
// spec.md §4.2 (agent.heartbeat included via "agent.>").
var streamSubjects = []string{"optimization.>", "backtest.>", "strategy.>", "agent.>"}

// DialNATSBus connects to cfg.URL and ensures the orchestrator's stream
// exists, creating it if necessary.
func DialNATSBus(ctx context.Context, cfg Config) (*NATSBus, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to event bus at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: streamSubjects,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("declaring stream %s: %w", cfg.StreamName, err)
	}

	return &NATSBus{cfg: cfg, nc: nc, js: js, stream: stream}, nil
}

func (b *NATSBus) Publish(ctx context.Context, routingKey string, payload map[string]any) error {
	env := NewEnvelope(routingKey, b.cfg.Source, payload)
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope for %s: %w", routingKey, err)
	}
	if _, err := b.js.Publish(ctx, routingKey, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", routingKey, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, pattern string, handler Handler) (func() error, error) {
	durable := sanitizeDurableName(b.cfg.DurableName + "-" + pattern)
	consumer, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: pattern,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxAckPending: b.cfg.MaxAckPending,
	})
	if err != nil {
		return nil, fmt.Errorf("creating consumer for %s: %w", pattern, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			// malformed message — cannot be retried into validity, drop it
			// rather than requeue forever.
			_ = msg.Term()
			return
		}
		if err := handler(ctx, env); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("starting consumer for %s: %w", pattern, err)
	}

	return func() error {
		consumeCtx.Stop()
		return nil
	}, nil
}

func (b *NATSBus) Close() error {
	b.nc.Close()
	return nil
}

// sanitizeDurableName strips characters NATS consumer names forbid
// (".", "*", ">") so a routing-key pattern can be embedded in a durable name.
func sanitizeDurableName(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '*', '>':
			out[i] = '_'
		default:
			out[i] = s[i]
		}
	}
	return string(out)
}
