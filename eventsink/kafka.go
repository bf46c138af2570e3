package eventsink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	goGrant "github.com/MrEthical07/goGrant"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrNoBrokers is returned by NewKafka without seed brokers.
var ErrNoBrokers = errors.New("eventsink: no kafka brokers configured")

// Producer is the subset of *kgo.Client the sink uses.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaConfig configures [NewKafka].
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	// RedactSessionKeys replaces session keys with a SHA-256 fingerprint
	// before the record leaves the process.
	RedactSessionKeys bool
	// FlushTimeout bounds Close. Zero means 5s.
	FlushTimeout time.Duration
}

// Kafka is a goGrant.EventSink producing to one topic.
type Kafka struct {
	producer     Producer
	topic        string
	redact       bool
	flushTimeout time.Duration
	logger       *slog.Logger

	produced atomic.Uint64
	failed   atomic.Uint64
	closed   atomic.Bool
}

var _ goGrant.EventSink = (*Kafka)(nil)

// NewKafka dials the seed brokers lazily and returns a sink for cfg.Topic.
func NewKafka(cfg KafkaConfig, logger *slog.Logger) (*Kafka, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("eventsink: kafka topic required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(10 * time.Millisecond),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("eventsink: kafka client: %w", err)
	}
	return NewKafkaWithProducer(client, cfg, logger), nil
}

// NewKafkaWithProducer wraps an existing producer. cfg.Brokers is ignored.
func NewKafkaWithProducer(p Producer, cfg KafkaConfig, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.FlushTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Kafka{
		producer:     p,
		topic:        cfg.Topic,
		redact:       cfg.RedactSessionKeys,
		flushTimeout: timeout,
		logger:       logger,
	}
}

// Emit implements goGrant.EventSink. It never blocks on the broker.
func (k *Kafka) Emit(ctx context.Context, event goGrant.Event) {
	if k == nil || k.producer == nil || k.closed.Load() {
		return
	}

	if k.redact {
		event.SessionKey = fingerprint(event.SessionKey)
		event.PreviousSessionKey = fingerprint(event.PreviousSessionKey)
	}

	value, err := json.Marshal(event)
	if err != nil {
		k.failed.Add(1)
		k.logger.Error("event encode failed", "event", event.Name, "err", err)
		return
	}

	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.UserID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(event.Name)},
		},
		Timestamp: event.Timestamp,
	}

	// The engine's context may end before the broker acks.
	k.producer.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err != nil {
			k.failed.Add(1)
			k.logger.Warn("event produce failed", "event", event.Name, "topic", r.Topic, "err", err)
			return
		}
		k.produced.Add(1)
	})
}

// Produced reports records acknowledged by the broker.
func (k *Kafka) Produced() uint64 { return k.produced.Load() }

// Failed reports events that could not be encoded or delivered.
func (k *Kafka) Failed() uint64 { return k.failed.Load() }

// Close flushes buffered records and closes the producer. Later Emit calls
// are dropped.
func (k *Kafka) Close() error {
	if k == nil || k.producer == nil || !k.closed.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.flushTimeout)
	defer cancel()
	err := k.producer.Flush(ctx)
	k.producer.Close()
	if err != nil {
		return fmt.Errorf("eventsink: flush: %w", err)
	}
	return nil
}

func fingerprint(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return "sha256:" + hex.EncodeToString(sum[:8])
}
