// Package sso implements OAuth2 login backends: authorization code exchange,
// profile retrieval and normalization of the provider's answer into a
// CanonicalIdentity.
package sso

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Provider is a pluggable login backend.
type Provider interface {
	// Name returns the backend name (e.g. "bitbucket")
	Name() string

	// AuthURL returns the provider URL the user is redirected to for consent
	AuthURL(state, redirectURI string) string

	// Authenticate exchanges an authorization code and resolves the identity
	Authenticate(ctx context.Context, code, redirectURI string) (*CanonicalIdentity, error)
}

// FieldMapping names the provider profile fields used during normalization.
type FieldMapping struct {
	// ID is the immutable account identifier field
	ID string

	// Username is the login/handle field
	Username string

	// DisplayName is the single full-name field
	DisplayName string
}

// ProviderConfig contains the provider endpoints and client credentials.
type ProviderConfig struct {
	Name             string
	AuthorizationURL string
	AccessTokenURL   string
	UserDataURL      string
	ClientKey        string
	ClientSecret     string
	// RedirectURL is used when a call does not supply its own redirect URI
	RedirectURL  string
	DefaultScope []string
	Fields       FieldMapping
}

// Validate checks that all endpoints and credentials are present.
func (c ProviderConfig) Validate() error {
	if c.Name == "" {
		return newError(KindInvalidConfig, StageStart, "provider name is required", nil)
	}
	endpoints := []struct {
		name  string
		value string
	}{
		{"authorization URL", c.AuthorizationURL},
		{"access token URL", c.AccessTokenURL},
		{"user data URL", c.UserDataURL},
	}
	for _, ep := range endpoints {
		if ep.value == "" {
			return newError(KindInvalidConfig, StageStart, ep.name+" is required", nil)
		}
		u, err := url.Parse(ep.value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return newError(KindInvalidConfig, StageStart, ep.name+" must be an absolute URL", err)
		}
	}
	if c.ClientKey == "" || c.ClientSecret == "" {
		return newError(KindInvalidConfig, StageStart, "client key and secret are required", nil)
	}
	if c.Fields.ID == "" {
		return newError(KindInvalidConfig, StageStart, "identifier field is required", nil)
	}
	return nil
}

// AccessToken is the bearer credential returned by the token endpoint.
type AccessToken struct {
	Value        string
	TokenType    string
	RefreshToken string
	Scope        string
	// ExpiresIn is the lifetime as sent by the provider; zero when absent
	ExpiresIn time.Duration
	// ExpiresAt is the absolute expiry; zero when the provider sent none
	ExpiresAt time.Time
}

// HasExpiry reports whether the provider supplied an expiry.
func (t AccessToken) HasExpiry() bool {
	return !t.ExpiresAt.IsZero()
}

// String keeps token values out of logs.
func (t AccessToken) String() string {
	if t.HasExpiry() {
		return fmt.Sprintf("AccessToken{type=%s expires_at=%s}", t.TokenType, t.ExpiresAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("AccessToken{type=%s}", t.TokenType)
}

// Keys of CanonicalIdentity.ExtraData.
const (
	ExtraUsername  = "username"
	ExtraExpires   = "expires"
	ExtraEmail     = "email"
	ExtraFirstName = "first_name"
	ExtraLastName  = "last_name"
)

// CanonicalIdentity is the provider-independent description of the user.
type CanonicalIdentity struct {
	Provider  string                 `json:"provider"`
	UniqueID  string                 `json:"unique_id"`
	Username  string                 `json:"username"`
	Email     string                 `json:"email"`
	FirstName string                 `json:"first_name"`
	LastName  string                 `json:"last_name"`
	ExtraData map[string]interface{} `json:"extra_data,omitempty"`
}

// FullName joins first and last name.
func (i *CanonicalIdentity) FullName() string {
	if i.LastName == "" {
		return i.FirstName
	}
	return i.FirstName + " " + i.LastName
}
