package kafka

import (
	"errors"
	"time"
)

// KafkaConfig holds the configuration for the login event producer
type KafkaConfig struct {
	// Broker addresses
	Brokers []string

	// Topic receiving login events
	Topic string

	// Producer configuration
	MaxRetries   int           // Number of retries for producer
	RetryBackoff time.Duration // Backoff time between retries
	WriteTimeout time.Duration // Timeout for a single write
	ClientID     string        // Client ID for the producer
}

// NewDefaultConfig returns a default configuration
func NewDefaultConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "sso.logins",
		MaxRetries:   3,
		RetryBackoff: 200 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		ClientID:     "socialauth",
	}
}

// Validate checks the configuration.
func (c *KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka: topic is required")
	}
	if c.MaxRetries < 0 {
		return errors.New("kafka: max retries cannot be negative")
	}
	return nil
}
