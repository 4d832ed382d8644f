package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer represents a Kafka producer
type Producer struct {
	writer messageWriter
	config *KafkaConfig
	now    func() time.Time
}

// NewProducer creates a new Kafka producer with the given configuration
func NewProducer(config *KafkaConfig) (*Producer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		// retries are handled by Produce
		MaxAttempts:  1,
		WriteTimeout: config.WriteTimeout,
		Transport: &kafka.Transport{
			ClientID: config.ClientID,
		},
	}

	return newProducer(writer, config), nil
}

func newProducer(w messageWriter, config *KafkaConfig) *Producer {
	return &Producer{
		writer: w,
		config: config,
		now:    time.Now,
	}
}

// Produce sends a message to Kafka with retries and exponential backoff
func (p *Producer) Produce(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	msg := kafka.Message{
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    p.now(),
	}

	var err error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		err = p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}

		if attempt == p.config.MaxRetries {
			break
		}

		backoff := p.config.RetryBackoff * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("failed to write message after %d attempts: %w", p.config.MaxRetries+1, err)
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
