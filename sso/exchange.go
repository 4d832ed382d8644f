package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"socialauth/logger"
)

// TokenExchanger turns an authorization code into an AccessToken. It keeps no
// per-call state and is safe for concurrent use.
type TokenExchanger struct {
	config ProviderConfig
	oauth  *oauth2.Config
	client *http.Client
	log    *logger.Logger
	now    func() time.Time
}

// NewTokenExchanger creates an exchanger for cfg. A nil client uses
// http.DefaultClient and a nil log discards output.
func NewTokenExchanger(cfg ProviderConfig, client *http.Client, log *logger.Logger) *TokenExchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenExchanger{
		config: cfg,
		oauth:  oauthConfig(cfg),
		client: client,
		log:    log,
		now:    time.Now,
	}
}

func oauthConfig(cfg ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientKey,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.DefaultScope,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizationURL,
			TokenURL:  cfg.AccessTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL returns the authorization endpoint URL for state.
func (e *TokenExchanger) AuthCodeURL(state, redirectURI string) string {
	var opts []oauth2.AuthCodeOption
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}
	return e.oauth.AuthCodeURL(state, opts...)
}

// Exchange posts the authorization code to the token endpoint. A nil scope
// falls back to the provider's default scope. The call is made exactly once.
func (e *TokenExchanger) Exchange(ctx context.Context, code, redirectURI string, scope []string) (AccessToken, error) {
	if code == "" {
		return AccessToken{}, newError(KindTokenExchange, StageStart, "authorization code is required", nil)
	}
	if scope == nil {
		scope = e.config.DefaultScope
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("scope", strings.Join(scope, " ")),
	}
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	e.log.Debug(ctx, "exchanging authorization code",
		logger.F("provider", e.config.Name),
		logger.F("token_url", e.config.AccessTokenURL),
	)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	tok, err := e.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return AccessToken{}, classifyExchangeError(err)
	}
	if tok.AccessToken == "" {
		return AccessToken{}, newError(KindTokenExchange, StageCodeReceived, "token response has no access_token", nil)
	}

	token := AccessToken{
		Value:        tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Scope:        extraString(tok, "scope", "scopes"),
	}
	if d, ok := tokenLifetime(tok); ok {
		token.ExpiresIn = d
		token.ExpiresAt = tok.Expiry
		if token.ExpiresAt.IsZero() {
			token.ExpiresAt = e.now().Add(d)
		}
	}

	e.log.Info(ctx, "authorization code exchanged",
		logger.F("provider", e.config.Name),
		logger.F("has_refresh_token", token.RefreshToken != ""),
		logger.F("has_expiry", token.HasExpiry()),
	)
	return token, nil
}

// tokenLifetime reads expires_in (or the older expires) from the raw token
// response.
func tokenLifetime(tok *oauth2.Token) (time.Duration, bool) {
	for _, key := range []string{"expires_in", "expires"} {
		var seconds int64
		switch v := tok.Extra(key).(type) {
		case float64:
			seconds = int64(v)
		case int64:
			seconds = v
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				continue
			}
			seconds = n
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				continue
			}
			seconds = n
		default:
			continue
		}
		if seconds > 0 {
			return time.Duration(seconds) * time.Second, true
		}
	}
	return 0, false
}

func extraString(tok *oauth2.Token, keys ...string) string {
	for _, key := range keys {
		if s, ok := tok.Extra(key).(string); ok && s != "" {
			return s
		}
	}
	return ""
}
