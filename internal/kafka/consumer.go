package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Handler processes one consumed record.
type Handler func(ctx context.Context, key, value []byte)

// Consumer reads a topic as part of a consumer group.
type Consumer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer joins group and subscribes to topic from the earliest offset.
func NewConsumer(brokers []string, topic, group string, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(group),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &Consumer{
		client: client,
		topic:  topic,
		logger: logger.With("component", "kafka_consumer", "topic", topic, "group", group),
	}, nil
}

// Start polls in a background goroutine until ctx is done or Stop is called.
func (c *Consumer) Start(ctx context.Context, handler Handler) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Info("consumer started")

		for {
			fetches := c.client.PollFetches(ctx)
			if fetches.IsClientClosed() || ctx.Err() != nil {
				c.logger.Info("consumer stopped")
				return
			}
			fetches.EachError(func(topic string, partition int32, err error) {
				c.logger.Error("kafka fetch error", "partition", partition, "error", err)
			})

			iter := fetches.RecordIter()
			for !iter.Done() {
				record := iter.Next()
				handler(ctx, record.Key, record.Value)
			}
		}
	}()
}

// Stop ends polling and closes the client.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.client.Close()
}
