// Package kafka publishes snapshot refresh events and listens for cache
// invalidation hints. Both sides are optional: with no brokers configured
// the producer is a no-op and no consumer is started.
package kafka

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/playerstats-proxy/internal/config"
	"github.com/playerstats-proxy/internal/storage"
)

// EventType represents the type of bus event
type EventType string

const (
	EventSnapshotRefreshed EventType = "snapshot_refreshed"
	EventInvalidate        EventType = "invalidate"
)

// Event is the envelope of every message on either topic.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// InvalidateData optionally explains an invalidation.
type InvalidateData struct {
	Reason string `json:"reason"`
}

// Producer handles Kafka event production
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	enabled  bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewProducer connects to the configured brokers. An unreachable cluster is
// not fatal: the returned producer is simply disabled.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled() {
		return &Producer{logger: logger}
	}

	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3

	sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		logger.Warn("kafka producer not available, refresh events disabled", "tag", "kafka", "error", err)
		return &Producer{logger: logger}
	}

	logger.Info("kafka producer connected", "tag", "kafka", "topic", cfg.SnapshotTopic)
	return newProducer(sp, cfg.SnapshotTopic, logger)
}

func newProducer(sp sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		producer: sp,
		topic:    topic,
		enabled:  true,
		logger:   logger,
		now:      time.Now,
	}
}

// EmitSnapshotRefreshed publishes ev keyed by its generation. It is shaped
// to be registered with storage.Store.OnRefresh.
func (p *Producer) EmitSnapshotRefreshed(ev storage.RefreshEvent) {
	if !p.enabled {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal refresh event", "tag", "kafka", "error", err)
		return
	}
	p.send(strconv.FormatUint(ev.Generation, 10), Event{
		Type:      EventSnapshotRefreshed,
		Timestamp: p.now().UTC(),
		Data:      data,
	})
}

// send sends an event to Kafka
func (p *Producer) send(key string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal event", "tag", "kafka", "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Warn("send event failed", "tag", "kafka", "type", string(event.Type), "error", err)
		return
	}
	p.logger.Debug("event sent", "tag", "kafka", "type", string(event.Type), "partition", partition, "offset", offset)
}

// Close closes the producer
func (p *Producer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// IsEnabled returns whether Kafka is enabled
func (p *Producer) IsEnabled() bool {
	return p.enabled
}
