// Package bus implements the Message Bus Adapter (spec §4.6): topic
// provisioning, durable per-topic consumer groups, and publish/subscribe
// over NATS JetStream. It is grounded on
// station/internal/workflows/runtime/nats_engine.go, generalized from a
// single run/step subject hierarchy to the spec's arbitrary topic names and
// durable-per-topic consumer-group semantics.
package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Handler processes one delivered message. Returning nil acks the message;
// a non-nil error nacks it so JetStream redelivers (spec §4.6 "at-least-once").
type Handler func(ctx context.Context, topic string, body []byte) error

// Bus is the narrow contract the mediator needs against the message
// transport: provision a topic's subject into the stream, publish to it,
// and subscribe a durable consumer group to it.
type Bus interface {
	EnsureTopic(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Topics(ctx context.Context) (map[string]struct{}, error)
	Close()
}

// Options controls how NATSBus connects to and provisions JetStream.
type Options struct {
	URL           string
	Stream        string
	ConsumerGroup string // prefix for durable consumer names, spec §4.6 "mediator-<topic>"
	Embedded      bool
	AckWait       time.Duration
}

// DefaultOptions mirrors the teacher's runtime.Options defaults, renamed to
// this module's domain.
func DefaultOptions() Options {
	return Options{
		URL:           "nats://127.0.0.1:4222",
		Stream:        "MEDIATOR_EVENTS",
		ConsumerGroup: "mediator",
		Embedded:      false,
		AckWait:       30 * time.Second,
	}
}

// NATSBus is a Bus backed by NATS JetStream.
type NATSBus struct {
	opts   Options
	server *natsserver.Server
	conn   *nats.Conn
	js     nats.JetStreamContext
}

// Connect opens (and, if opts.Embedded, first starts) a JetStream connection
// and ensures the stream exists.
func Connect(opts Options) (*NATSBus, error) {
	b := &NATSBus{opts: opts}

	url := opts.URL
	if opts.Embedded {
		srv, err := natsserver.NewServer(&natsserver.Options{Port: -1, JetStream: true})
		if err != nil {
			return nil, fmt.Errorf("bus: starting embedded nats: %w", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(5 * time.Second) {
			return nil, fmt.Errorf("bus: embedded nats did not become ready")
		}
		b.server = srv
		url = fmt.Sprintf("nats://%s", srv.Addr().String())
	}

	conn, err := nats.Connect(url)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("bus: connecting to %s: %w", url, err)
	}
	b.conn = conn

	js, err := conn.JetStream()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("bus: initializing jetstream: %w", err)
	}
	b.js = js

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     opts.Stream,
		Subjects: []string{opts.Stream + ".>"},
		Storage:  nats.FileStorage,
	}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		b.Close()
		return nil, fmt.Errorf("bus: creating stream %s: %w", opts.Stream, err)
	}

	return b, nil
}

// subject maps an application-level topic name to its wire subject, keeping
// every topic inside the single provisioned stream regardless of how the
// workflow author named it.
func (b *NATSBus) subject(topic string) string {
	return b.opts.Stream + "." + topic
}

// EnsureTopic is idempotent: AddStream already owns every subject under the
// stream's wildcard, so a topic needs no separate provisioning step beyond
// existing. It is kept as an explicit call so the Mediator can diff its
// required topics against the bus's inventory before subscribing (spec
// "idempotent topic provisioning").
func (b *NATSBus) EnsureTopic(ctx context.Context, topic string) error {
	if b.js == nil {
		return fmt.Errorf("bus: not connected")
	}
	return nil
}

// Topics reports the topics currently known to have at least one published
// message, by inspecting the stream's subject list.
func (b *NATSBus) Topics(ctx context.Context) (map[string]struct{}, error) {
	if b.js == nil {
		return nil, fmt.Errorf("bus: not connected")
	}
	info, err := b.js.StreamInfo(b.opts.Stream, nats.SubjectFilter(b.opts.Stream+".>"))
	if err != nil {
		return nil, fmt.Errorf("bus: stream info: %w", err)
	}
	out := make(map[string]struct{}, len(info.State.Subjects))
	prefix := b.opts.Stream + "."
	for subj := range info.State.Subjects {
		out[subj[len(prefix):]] = struct{}{}
	}
	return out, nil
}

// Publish emits body on topic (spec §4.6 publish).
func (b *NATSBus) Publish(ctx context.Context, topic string, body []byte) error {
	if b.js == nil {
		return fmt.Errorf("bus: not connected")
	}
	_, err := b.js.Publish(b.subject(topic), body)
	if err != nil {
		return fmt.Errorf("bus: publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe binds a durable pull consumer named "<group>-<topic>" to topic,
// with every character of topic outside [A-Za-z0-9_-] replaced by "_"
// (so "a.success.x" gives "<group>-a_success_x"), and runs handler for every delivered message, acking on success and
// nacking (triggering JetStream redelivery) on handler error (spec §4.6
// "named consumer groups per response topic").
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if b.js == nil {
		return fmt.Errorf("bus: not connected")
	}

	durable := fmt.Sprintf("%s-%s", b.opts.ConsumerGroup, sanitizeConsumerName(topic))
	sub, err := b.js.PullSubscribe(
		b.subject(topic),
		durable,
		nats.AckExplicit(),
		nats.ManualAck(),
		nats.AckWait(b.opts.AckWait),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("bus: subscribing to %s: %w", topic, err)
	}

	go b.fetchLoop(ctx, topic, sub, handler)
	return nil
}

func (b *NATSBus) fetchLoop(ctx context.Context, topic string, sub *nats.Subscription, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !sub.IsValid() {
			return
		}

		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil {
			switch err {
			case nats.ErrTimeout:
				continue
			case nats.ErrConnectionClosed, nats.ErrConsumerDeleted, nats.ErrBadSubscription:
				return
			default:
				log.Printf("bus: fetch on %s: %v", topic, err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}

		for _, msg := range msgs {
			if err := handler(ctx, topic, msg.Data); err != nil {
				log.Printf("bus: handler for %s failed, nacking: %v", topic, err)
				if nakErr := msg.Nak(); nakErr != nil {
					log.Printf("bus: nak failed for %s: %v", topic, nakErr)
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Printf("bus: ack failed for %s: %v", topic, ackErr)
			}
		}
	}
}

// Close drains and closes the connection, shutting down the embedded server
// if one was started.
func (b *NATSBus) Close() {
	if b == nil {
		return
	}
	if b.conn != nil {
		b.conn.Drain()
		b.conn.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
	}
}

func sanitizeConsumerName(topic string) string {
	out := make([]byte, len(topic))
	for i := 0; i < len(topic); i++ {
		c := topic[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
