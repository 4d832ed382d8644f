package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"socialauth/cache"
	"socialauth/config"
	"socialauth/cryptoutils/hmac"
	apphttp "socialauth/http"
	"socialauth/kafka"
	"socialauth/logger"
	"socialauth/sso"
	"socialauth/telemetry"
	"socialauth/workerpool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		Enabled:        cfg.OTel.Enabled,
		MetricInterval: cfg.OTel.MetricInterval,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	log := newLogger(cfg, providers)
	defer func() { _ = log.Close() }()

	var previous [][]byte
	for _, s := range cfg.Session.PreviousSecrets {
		previous = append(previous, []byte(s))
	}
	signer, err := hmac.NewSigner([]byte(cfg.Session.Secret), hmac.WithPreviousKeys(previous...))
	if err != nil {
		return fmt.Errorf("session signer: %w", err)
	}

	bitbucket, err := sso.NewBitbucket(
		cfg.Bitbucket.ConsumerKey,
		cfg.Bitbucket.ConsumerSecret,
		cfg.CallbackURL(),
		cfg.Bitbucket.Scopes,
		sso.WithHTTPClient(telemetry.NewHTTPClient(cfg.ProviderTimeout, providers)),
		sso.WithLogger(log),
		sso.WithTracerProvider(providers.TracerProvider),
		sso.WithMeterProvider(providers.MeterProvider),
	)
	if err != nil {
		return fmt.Errorf("bitbucket backend: %w", err)
	}
	registry, err := sso.NewRegistry(bitbucket)
	if err != nil {
		return err
	}

	states, closeStates, err := newStateStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	defer closeStates()

	var publisher sso.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(&kafka.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			ClientID:     cfg.Kafka.ClientID,
		})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		loginPublisher := kafka.NewLoginPublisher(producer)
		defer func() { _ = loginPublisher.Close() }()

		pool := workerpool.NewWorkerPool(2,
			workerpool.WithName("login-events"),
			workerpool.WithLogger(log),
			workerpool.WithQueueCapacity(256),
		)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = pool.Shutdown(drainCtx)
		}()
		publisher = workerpool.NewAsyncPublisher(pool, loginPublisher, 30*time.Second)
	}

	sessions := sso.NewCookieSessionManager(signer, cfg.Session.CookieName, cfg.Session.CookieDomain, "/",
		cfg.Session.MaxAge, cfg.Session.Secure)

	// an explicit redirect URL is registered with the consumer as-is
	publicURL := cfg.PublicURL
	if cfg.Bitbucket.RedirectURL != "" {
		publicURL = ""
	}
	handler, err := sso.NewHandler(sso.HandlerConfig{
		Registry:             registry,
		Sessions:             sessions,
		States:               states,
		Signer:               signer,
		Publisher:            publisher,
		Logger:               log,
		PublicURL:            publicURL,
		DefaultRedirectURL:   cfg.Session.DefaultRedirectURL,
		AllowedRedirectHosts: cfg.Session.AllowedRedirectHosts,
		StateTTL:             cfg.Session.StateTTL,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handler.RegisterHandlers(mux)
	auth := sso.NewAuthMiddleware(sessions, "")
	mux.Handle("GET /{$}", auth.OptionalAuth(http.HandlerFunc(home)))

	app := apphttp.Chain(mux,
		apphttp.RequestIDMiddleware,
		apphttp.LoggingMiddleware(log),
		apphttp.RecoveryMiddleware(log),
		apphttp.SecurityHeadersMiddleware,
		apphttp.RateLimiterMiddleware(apphttp.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)),
	)

	server := apphttp.NewServer(apphttp.Config{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		CertFile:        cfg.HTTP.CertFile,
		KeyFile:         cfg.HTTP.KeyFile,
	}, app, log)

	log.Info(ctx, "login service configured",
		logger.F("providers", registry.Names()),
		logger.F("redis", cfg.Redis.Addr != ""),
		logger.F("kafka", publisher != nil),
	)
	return server.Run(ctx)
}

func newLogger(cfg config.Config, providers *telemetry.Providers) *logger.Logger {
	level, _ := logger.ParseLevel(cfg.Log.Level)

	var formatter logger.Formatter = &logger.JsonFormatter{}
	if cfg.Log.Format == "text" {
		formatter = &logger.TextFormatter{IncludeTimestamp: true}
	}

	opts := []logger.LoggerOption{
		logger.WithLevel(level),
		logger.WithService(cfg.ServiceName),
		logger.WithTracing(),
		logger.WithHandler(logger.NewConsoleHandler(formatter)),
	}
	if cfg.OTel.Enabled {
		opts = append(opts, logger.WithHandler(logger.NewOTelHandler(providers.LoggerProvider, cfg.ServiceName)))
	}
	return logger.NewLogger(opts...)
}

func newStateStore(ctx context.Context, cfg config.Config) (sso.StateStore, func(), error) {
	if cfg.Redis.Addr == "" {
		return sso.NewMemoryStateStore(), func() {}, nil
	}
	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Address:   cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return cache.NewRedisStateStore(rc), func() { _ = rc.Close() }, nil
}

func home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if user := sso.GetUserFromContext(r.Context()); user != nil {
		fmt.Fprintf(w, "Signed in as %s (%s)\n", user.Username, user.Provider)
		return
	}
	fmt.Fprintln(w, "Not signed in. Visit /auth/bitbucket/login")
}
