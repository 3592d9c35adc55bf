package events

import (
	"context"
	"log"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
			Async:        true,
			Completion:   logDelivery,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := sonic.Marshal(e)
	if err != nil {
		return err
	}

	// Async writer: returns once queued, delivery errors reach logDelivery.
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   e.Key(),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
}

func logDelivery(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		log.Printf("[ERROR] kafka delivery failed key=%s: %v", m.Key, err)
	}
}

// Close flushes queued messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// New picks kafka when brokers are configured, otherwise the log publisher.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return LogPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}
