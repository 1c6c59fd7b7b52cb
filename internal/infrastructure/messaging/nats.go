package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NATS JETSTREAM FORWARDER
// ══════════════════════════════════════════════════════════════════════════════

// NATSConfig holds JetStream forwarding configuration.
type NATSConfig struct {
	URL string

	// Stream is the JetStream stream name (default "KT_EVENTS").
	Stream string

	// SubjectPrefix prefixes every subject (default "kthub").
	SubjectPrefix string

	Timeout time.Duration
	Logger  *slog.Logger
}

// StreamPublisher is the subset of nats.JetStreamContext used for publishing.
type StreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSForwarder re-publishes domain events to a JetStream stream as
// shared.EventEnvelope JSON on subject "<prefix>.<event type>".
type NATSForwarder struct {
	conn   *nats.Conn
	js     StreamPublisher
	prefix string
	logger *slog.Logger
}

// NewNATSForwarder connects to NATS and makes sure the stream exists.
func NewNATSForwarder(cfg NATSConfig) (*NATSForwarder, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Stream == "" {
		cfg.Stream = "KT_EVENTS"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "kthub"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger

	nc, err := nats.Connect(cfg.URL,
		nats.Name("kt-hub"),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if err := ensureStream(js, cfg.Stream, cfg.SubjectPrefix); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("nats forwarder connected", "url", cfg.URL, "stream", cfg.Stream)
	return &NATSForwarder{conn: nc, js: js, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// NewNATSForwarderWithPublisher builds a forwarder around an existing publisher.
func NewNATSForwarderWithPublisher(js StreamPublisher, prefix string, logger *slog.Logger) *NATSForwarder {
	if prefix == "" {
		prefix = "kthub"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSForwarder{js: js, prefix: prefix, logger: logger}
}

func ensureStream(js nats.JetStreamContext, name, prefix string) error {
	cfg := &nats.StreamConfig{
		Name:      name,
		Subjects:  []string{prefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	}
	if _, err := js.StreamInfo(name); err != nil {
		if _, err := js.AddStream(cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", name, err)
		}
		return nil
	}
	if _, err := js.UpdateStream(cfg); err != nil {
		return fmt.Errorf("update stream %s: %w", name, err)
	}
	return nil
}

// Subject returns the subject an event type is published on.
func (f *NATSForwarder) Subject(t shared.EventType) string {
	return f.prefix + "." + strings.ReplaceAll(string(t), " ", "_")
}

// Handle is a shared.EventHandler; register it with SubscribeAll.
func (f *NATSForwarder) Handle(event shared.Event) error {
	env, err := shared.NewEventEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("build envelope: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if _, err := f.js.Publish(f.Subject(event.EventType()), data, nats.MsgId(env.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}
	return nil
}

// Close drains the connection.
func (f *NATSForwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Drain()
}
