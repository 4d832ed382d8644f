package sso

import (
	"context"
	"time"
)

// LoginEvent announces a successful login.
type LoginEvent struct {
	Provider   string    `json:"provider"`
	UniqueID   string    `json:"unique_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewLoginEvent builds the event for identity.
func NewLoginEvent(identity *CanonicalIdentity, at time.Time) LoginEvent {
	return LoginEvent{
		Provider:   identity.Provider,
		UniqueID:   identity.UniqueID,
		Username:   identity.Username,
		Email:      identity.Email,
		OccurredAt: at.UTC(),
	}
}

// EventPublisher delivers login events to downstream consumers.
type EventPublisher interface {
	PublishLogin(ctx context.Context, event LoginEvent) error
}
