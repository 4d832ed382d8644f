package sso

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"socialauth/logger"
)

const instrumentationName = "socialauth/sso"

// Stage is a state of a single login attempt.
type Stage string

// A login attempt moves through these stages in order. A failure is reported
// with the last stage reached.
const (
	StageStart          Stage = "start"
	StageCodeReceived   Stage = "code_received"
	StageTokenObtained  Stage = "token_obtained"
	StageProfileFetched Stage = "profile_fetched"
	StageEmailResolved  Stage = "email_resolved"
	StageIdentityReady  Stage = "identity_ready"
)

// Compile-time interface compliance check.
var _ Provider = (*Backend)(nil)

// Backend composes a TokenExchanger and an IdentityResolver into a login
// backend for one provider.
type Backend struct {
	config    ProviderConfig
	exchanger *TokenExchanger
	resolver  *IdentityResolver
	log       *logger.Logger
	tracer    trace.Tracer
	attempts  metric.Int64Counter
}

type backendOptions struct {
	client         *http.Client
	log            *logger.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Backend.
type Option func(*backendOptions)

// WithHTTPClient sets the client used for every provider call. Its timeout
// bounds each call; callers may also bound the whole attempt via ctx.
func WithHTTPClient(client *http.Client) Option {
	return func(o *backendOptions) {
		o.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(o *backendOptions) {
		o.log = log
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *backendOptions) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *backendOptions) {
		o.meterProvider = mp
	}
}

// NewBackend validates cfg and creates a backend.
func NewBackend(cfg ProviderConfig, opts ...Option) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &backendOptions{
		client:         http.DefaultClient,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	attempts, err := o.meterProvider.Meter(instrumentationName).Int64Counter(
		"sso.login.attempts",
		metric.WithDescription("Login attempts by provider and outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Backend{
		config:    cfg,
		exchanger: NewTokenExchanger(cfg, o.client, o.log),
		resolver:  NewIdentityResolver(cfg, o.client, o.log),
		log:       o.log,
		tracer:    o.tracerProvider.Tracer(instrumentationName),
		attempts:  attempts,
	}, nil
}

// Name returns the provider name.
func (b *Backend) Name() string {
	return b.config.Name
}

// Config returns the provider configuration.
func (b *Backend) Config() ProviderConfig {
	return b.config
}

// AuthURL returns the provider authorization URL carrying state.
func (b *Backend) AuthURL(state, redirectURI string) string {
	return b.exchanger.AuthCodeURL(state, redirectURI)
}

// Authenticate runs one login attempt: code exchange, profile fetch and
// normalization. Nothing is retried. A profile that cannot be read is treated
// as empty, which then fails at identifier extraction.
func (b *Backend) Authenticate(ctx context.Context, code, redirectURI string) (identity *CanonicalIdentity, err error) {
	ctx, span := b.tracer.Start(ctx, "sso.Authenticate",
		trace.WithAttributes(attribute.String("sso.provider", b.config.Name)))
	defer func() {
		b.finish(ctx, span, err)
	}()

	b.transition(ctx, StageStart)
	if code != "" {
		b.transition(ctx, StageCodeReceived)
	}

	var token AccessToken
	err = b.step(ctx, "sso.exchange", func(ctx context.Context) error {
		var err error
		token, err = b.exchanger.Exchange(ctx, code, redirectURI, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.transition(ctx, StageTokenObtained)

	var raw RawProfile
	err = b.step(ctx, "sso.fetch_profile", func(ctx context.Context) error {
		var err error
		raw, err = b.resolver.FetchProfile(ctx, token)
		return err
	})
	if err != nil {
		if !IsProfileFetch(err) {
			return nil, err
		}
		b.log.Warn(ctx, "profile unavailable, continuing with empty profile",
			logger.F("provider", b.config.Name),
			logger.Err(err),
		)
		raw = RawProfile{}
	}
	b.transition(ctx, StageProfileFetched)

	err = b.step(ctx, "sso.normalize", func(ctx context.Context) error {
		var err error
		identity, err = b.resolver.Normalize(ctx, raw, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.transition(ctx, StageEmailResolved)
	b.transition(ctx, StageIdentityReady)

	b.log.Info(ctx, "identity resolved",
		logger.F("provider", b.config.Name),
		logger.F("unique_id", identity.UniqueID),
		logger.F("has_email", identity.Email != ""),
	)
	return identity, nil
}

func (b *Backend) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := b.tracer.Start(ctx, name)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	return err
}

func (b *Backend) transition(ctx context.Context, stage Stage) {
	trace.SpanFromContext(ctx).AddEvent(string(stage))
	b.log.Debug(ctx, "login stage reached",
		logger.F("provider", b.config.Name),
		logger.F("stage", string(stage)),
	)
}

func (b *Backend) finish(ctx context.Context, span trace.Span, err error) {
	defer span.End()

	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "unknown"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)

		fields := []logger.Field{
			logger.F("provider", b.config.Name),
			logger.F("kind", outcome),
			logger.F("retryable", Retryable(err)),
			logger.Err(err),
		}
		var e *Error
		if errors.As(err, &e) {
			fields = append(fields, logger.F("stage", string(e.Stage)))
		}
		b.log.Error(ctx, "login attempt failed", fields...)
	}

	b.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", b.config.Name),
		attribute.String("outcome", outcome),
	))
}
