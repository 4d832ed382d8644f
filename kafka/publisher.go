package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"socialauth/sso"
)

var _ sso.EventPublisher = (*LoginPublisher)(nil)

// LoginEventType is sent in the event-type header of every login message.
const LoginEventType = "sso.login"

// LoginPublisher writes login events as JSON, keyed by provider and account
// id so that one user's logins stay ordered within a partition.
type LoginPublisher struct {
	producer *Producer
}

// NewLoginPublisher creates a publisher on top of producer.
func NewLoginPublisher(producer *Producer) *LoginPublisher {
	return &LoginPublisher{producer: producer}
}

// PublishLogin sends event.
func (p *LoginPublisher) PublishLogin(ctx context.Context, event sso.LoginEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := []byte(event.Provider + ":" + event.UniqueID)
	return p.producer.Produce(ctx, key, value,
		kafka.Header{Key: "event-type", Value: []byte(LoginEventType)},
	)
}

// Close closes the underlying producer.
func (p *LoginPublisher) Close() error {
	return p.producer.Close()
}
