package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const publishTimeout = 10 * time.Second

// Producer publishes records to one topic.
type Producer struct {
	topic  string
	client *kgo.Client
}

// NewProducer creates a producer for topic. franz-go connects lazily, so this
// does not fail on unreachable brokers.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{topic: topic, client: client}, nil
}

// Topic returns the topic records are published to.
func (p *Producer) Topic() string {
	return p.topic
}

// Publish writes one record and waits for the broker acknowledgement.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	record := &kgo.Record{
		Topic: p.topic,
		Key:   key,
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
