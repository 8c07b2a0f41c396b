package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/playerstats-proxy/internal/config"
)

// Consumer reads invalidation hints and drops the proxy's cached state when
// one arrives.
type Consumer struct {
	group      sarama.ConsumerGroup
	topic      string
	invalidate func()
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer joins the configured consumer group. invalidate is called once
// per invalidation message.
func NewConsumer(cfg config.KafkaConfig, invalidate func(), logger *slog.Logger) (*Consumer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka: no brokers configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	sc := sarama.NewConfig()
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	// Hints published while the proxy was down are moot: its cache is empty.
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, err
	}

	return newConsumer(group, cfg.InvalidationTopic, invalidate, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, topic string, invalidate func(), logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		group:      group,
		topic:      topic,
		invalidate: invalidate,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins consuming events
func (c *Consumer) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.group.Consume(c.ctx, []string{c.topic}, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Warn("consumer error", "tag", "kafka", "error", err)
			}
			if c.ctx.Err() != nil {
				return
			}
		}
	}()
	c.logger.Info("kafka consumer started", "tag", "kafka", "topic", c.topic)
}

// Setup is called at the beginning of a new session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is called at the end of a session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a partition
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.processMessage(msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage handles a single event message. It reports whether the
// cache was invalidated.
func (c *Consumer) processMessage(msg *sarama.ConsumerMessage) bool {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Warn("malformed event", "tag", "kafka", "offset", msg.Offset, "error", err)
		return false
	}

	switch event.Type {
	case EventInvalidate:
		var data InvalidateData
		if len(event.Data) > 0 {
			_ = json.Unmarshal(event.Data, &data)
		}
		c.logger.Info("invalidation received", "tag", "kafka", "reason", data.Reason, "offset", msg.Offset)
		c.invalidate()
		return true
	default:
		c.logger.Debug("ignoring event", "tag", "kafka", "type", string(event.Type))
		return false
	}
}

// Stop stops the consumer and waits for the consume loop to exit.
func (c *Consumer) Stop() error {
	c.cancel()
	err := c.group.Close()
	c.wg.Wait()
	return err
}
