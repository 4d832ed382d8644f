package sso

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"socialauth/logger"
)

const defaultStateTTL = 10 * time.Minute

// HandlerConfig wires the HTTP login flow.
type HandlerConfig struct {
	Registry *Registry
	Sessions SessionManager
	States   StateStore
	Signer   Signer
	// Publisher is optional; publish failures never fail a login
	Publisher EventPublisher
	Logger    *logger.Logger

	// PublicURL is the externally visible base URL used to build callback
	// URLs. When empty, each provider's configured redirect URL is used.
	PublicURL string
	// DefaultRedirectURL is where users land after login or logout
	DefaultRedirectURL string
	// AllowedRedirectHosts lists hosts accepted in absolute redirect URLs
	AllowedRedirectHosts []string
	StateTTL             time.Duration
}

// Handler serves the login, callback, logout and session endpoints.
type Handler struct {
	cfg HandlerConfig
	log *logger.Logger
	now func() time.Time
}

// NewHandler creates a new Handler
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Registry == nil || cfg.Sessions == nil || cfg.States == nil || cfg.Signer == nil {
		return nil, errors.New("registry, sessions, states and signer are required")
	}
	if cfg.DefaultRedirectURL == "" {
		cfg.DefaultRedirectURL = "/"
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = defaultStateTTL
	}
	return &Handler{cfg: cfg, log: cfg.Logger, now: time.Now}, nil
}

// RegisterHandlers registers the handlers with the provided ServeMux
func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/{provider}/login", h.LoginHandler)
	mux.HandleFunc("GET /auth/{provider}/callback", h.CallbackHandler)
	mux.HandleFunc("GET /auth/logout", h.LogoutHandler)
	mux.HandleFunc("GET /auth/me", h.MeHandler)
}

// LoginHandler starts the authorization flow for a provider.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	provider, err := h.cfg.Registry.Get(r.PathValue("provider"))
	if err != nil {
		http.Error(w, "Provider not supported", http.StatusNotFound)
		return
	}

	redirectURL := r.URL.Query().Get("redirect_url")
	if redirectURL == "" {
		redirectURL = h.cfg.DefaultRedirectURL
	}
	if !IsValidRedirectURL(redirectURL, h.cfg.AllowedRedirectHosts) {
		http.Error(w, "Invalid redirect URL", http.StatusBadRequest)
		return
	}

	nonce, err := GenerateRandomString(32)
	if err != nil {
		http.Error(w, "Failed to generate state token", http.StatusInternalServerError)
		return
	}
	if err := h.cfg.States.Save(r.Context(), nonce, h.cfg.StateTTL); err != nil {
		h.log.Error(r.Context(), "failed to store state", logger.Err(err))
		http.Error(w, "Failed to store state token", http.StatusServiceUnavailable)
		return
	}
	state, err := SealState(h.cfg.Signer, nonce, redirectURL)
	if err != nil {
		http.Error(w, "Failed to sign state token", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, provider.AuthURL(state, h.callbackURL(provider.Name())), http.StatusFound)
}

// CallbackHandler handles the redirect back from the provider.
func (h *Handler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	provider, err := h.cfg.Registry.Get(r.PathValue("provider"))
	if err != nil {
		http.Error(w, "Provider not supported", http.StatusNotFound)
		return
	}

	if errParam := query.Get("error"); errParam != "" {
		h.log.Warn(ctx, "provider denied authorization",
			logger.F("provider", provider.Name()),
			logger.F("error", errParam),
			logger.F("error_description", query.Get("error_description")),
		)
		http.Error(w, "Authorization denied: "+errParam, http.StatusBadRequest)
		return
	}

	nonce, redirectURL, err := OpenState(h.cfg.Signer, query.Get("state"))
	if err != nil {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}
	valid, err := h.cfg.States.Consume(ctx, nonce)
	if err != nil {
		h.log.Error(ctx, "failed to read state", logger.Err(err))
		http.Error(w, "Failed to validate state token", http.StatusServiceUnavailable)
		return
	}
	if !valid {
		http.Error(w, "Invalid or expired state token", http.StatusBadRequest)
		return
	}
	if redirectURL == "" || !IsValidRedirectURL(redirectURL, h.cfg.AllowedRedirectHosts) {
		redirectURL = h.cfg.DefaultRedirectURL
	}

	identity, err := provider.Authenticate(ctx, query.Get("code"), h.callbackURL(provider.Name()))
	if err != nil {
		status, message := statusForError(err)
		http.Error(w, message, status)
		return
	}

	if err := h.cfg.Sessions.SaveSession(w, identity); err != nil {
		h.log.Error(ctx, "failed to save session", logger.Err(err))
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	if h.cfg.Publisher != nil {
		if err := h.cfg.Publisher.PublishLogin(ctx, NewLoginEvent(identity, h.now())); err != nil {
			h.log.Warn(ctx, "failed to publish login event",
				logger.F("provider", identity.Provider),
				logger.Err(err),
			)
		}
	}

	h.log.Info(ctx, "user authenticated",
		logger.F("provider", identity.Provider),
		logger.F("unique_id", identity.UniqueID),
		logger.F("username", identity.Username),
	)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// LogoutHandler handles user logout
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Sessions.ClearSession(w); err != nil {
		http.Error(w, "Failed to clear session", http.StatusInternalServerError)
		return
	}

	redirectURL := r.URL.Query().Get("redirect_url")
	if redirectURL == "" || !IsValidRedirectURL(redirectURL, h.cfg.AllowedRedirectHosts) {
		redirectURL = h.cfg.DefaultRedirectURL
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// MeHandler returns the session identity as JSON.
func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := h.cfg.Sessions.GetSession(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(identity)
}

func (h *Handler) callbackURL(provider string) string {
	if h.cfg.PublicURL == "" {
		return ""
	}
	return strings.TrimSuffix(h.cfg.PublicURL, "/") + "/auth/" + provider + "/callback"
}

// statusForError maps a login failure to an HTTP status and a user-facing
// message.
func statusForError(err error) (int, string) {
	switch KindOf(err) {
	case KindTransport:
		return http.StatusServiceUnavailable, "Provider unavailable, please try again"
	case KindTokenExchange:
		return http.StatusUnauthorized, "Authorization failed, please sign in again"
	case KindMissingIdentifier, KindProfileFetch:
		return http.StatusBadGateway, "Provider did not identify the account"
	default:
		return http.StatusInternalServerError, "Authentication failed"
	}
}
