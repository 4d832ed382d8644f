// Package config loads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"socialauth/logger"
)

// Config is the full service configuration.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"socialauth"`
	// PublicURL is the externally visible base URL; callback URLs are built
	// from it
	PublicURL       string        `env:"PUBLIC_URL"       envDefault:"http://localhost:8080"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	HTTP      HTTPConfig      `envPrefix:"HTTP_"`
	Bitbucket BitbucketConfig `envPrefix:"BITBUCKET_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	OTel      OTelConfig      `envPrefix:"OTEL_"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr            string        `env:"ADDR"             envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT"     envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT"    envDefault:"10s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT"     envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CertFile        string        `env:"CERT_FILE"`
	KeyFile         string        `env:"KEY_FILE"`
	// RateLimit requests per RateWindow per client IP on /auth routes
	RateLimit  int           `env:"RATE_LIMIT"  envDefault:"10"`
	RateWindow time.Duration `env:"RATE_WINDOW" envDefault:"1s"`
}

// BitbucketConfig holds the OAuth consumer credentials.
type BitbucketConfig struct {
	ConsumerKey    string `env:"CONSUMER_KEY,required"`
	ConsumerSecret string `env:"CONSUMER_SECRET,required"`
	// RedirectURL overrides the callback URL derived from PublicURL
	RedirectURL string   `env:"REDIRECT_URL"`
	Scopes      []string `env:"SCOPES" envSeparator:","`
}

// SessionConfig configures cookies and state signing.
type SessionConfig struct {
	Secret               string        `env:"SECRET,required"`
	PreviousSecrets      []string      `env:"PREVIOUS_SECRETS"       envSeparator:","`
	CookieName           string        `env:"COOKIE_NAME"            envDefault:"sso_session"`
	CookieDomain         string        `env:"COOKIE_DOMAIN"`
	MaxAge               time.Duration `env:"MAX_AGE"                envDefault:"24h"`
	Secure               bool          `env:"SECURE"                 envDefault:"true"`
	StateTTL             time.Duration `env:"STATE_TTL"              envDefault:"10m"`
	DefaultRedirectURL   string        `env:"DEFAULT_REDIRECT_URL"   envDefault:"/"`
	AllowedRedirectHosts []string      `env:"ALLOWED_REDIRECT_HOSTS" envSeparator:","`
}

// RedisConfig enables the shared state store when Addr is set.
type RedisConfig struct {
	Addr      string `env:"ADDR"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB"         envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"socialauth:"`
}

// KafkaConfig enables login event publication when Brokers is set.
type KafkaConfig struct {
	Brokers      []string      `env:"BROKERS"       envSeparator:","`
	Topic        string        `env:"TOPIC"         envDefault:"sso.logins"`
	ClientID     string        `env:"CLIENT_ID"     envDefault:"socialauth"`
	MaxRetries   int           `env:"MAX_RETRIES"   envDefault:"3"`
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"200ms"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// OTelConfig controls telemetry export.
type OTelConfig struct {
	Enabled        bool          `env:"ENABLED"         envDefault:"false"`
	MetricInterval time.Duration `env:"METRIC_INTERVAL" envDefault:"1m"`
}

// MinSecretLength is the shortest accepted session secret.
const MinSecretLength = 32

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFromMap reads the configuration from environment, ignoring the process
// environment.
func LoadFromMap(environment map[string]string) (Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the tags cannot express.
func (c Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("PUBLIC_URL must be an absolute URL"))
	}
	if len(c.Session.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes", MinSecretLength))
	}
	for _, s := range c.Session.PreviousSecrets {
		if len(s) < MinSecretLength {
			errs = append(errs, fmt.Errorf("SESSION_PREVIOUS_SECRETS entries must be at least %d bytes", MinSecretLength))
			break
		}
	}
	if c.Session.StateTTL <= 0 {
		errs = append(errs, errors.New("SESSION_STATE_TTL must be positive"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if c.HTTP.RateLimit <= 0 {
		errs = append(errs, errors.New("HTTP_RATE_LIMIT must be positive"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// CallbackURL returns the Bitbucket redirect URL.
func (c Config) CallbackURL() string {
	if c.Bitbucket.RedirectURL != "" {
		return c.Bitbucket.RedirectURL
	}
	u, err := url.JoinPath(c.PublicURL, "auth", "bitbucket", "callback")
	if err != nil {
		return ""
	}
	return u
}
