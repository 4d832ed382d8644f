package sso

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNoSession is returned when the request carries no session cookie.
	ErrNoSession = errors.New("no session")

	// ErrInvalidSession is returned for malformed or tampered cookies.
	ErrInvalidSession = errors.New("invalid session")
)

// SessionManager defines the interface for managing user sessions
type SessionManager interface {
	// SaveSession saves the user session
	SaveSession(w http.ResponseWriter, identity *CanonicalIdentity) error

	// GetSession retrieves the user session from the request
	GetSession(r *http.Request) (*CanonicalIdentity, error)

	// ClearSession removes the user session
	ClearSession(w http.ResponseWriter) error
}

// CookieSessionManager stores the identity in a signed cookie.
type CookieSessionManager struct {
	CookieName   string
	CookieDomain string
	CookiePath   string
	MaxAge       time.Duration
	SecureCookie bool
	signer       Signer
}

// NewCookieSessionManager creates a new CookieSessionManager
func NewCookieSessionManager(signer Signer, cookieName, cookieDomain, cookiePath string, maxAge time.Duration, secure bool) *CookieSessionManager {
	return &CookieSessionManager{
		CookieName:   cookieName,
		CookieDomain: cookieDomain,
		CookiePath:   cookiePath,
		MaxAge:       maxAge,
		SecureCookie: secure,
		signer:       signer,
	}
}

// SaveSession saves the identity as a signed cookie
func (sm *CookieSessionManager) SaveSession(w http.ResponseWriter, identity *CanonicalIdentity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	sig, err := sm.signer.Sign(data)
	if err != nil {
		return err
	}

	http.SetCookie(w, sm.cookie(base64.RawURLEncoding.EncodeToString(data)+"."+sig, int(sm.MaxAge.Seconds())))
	return nil
}

// GetSession retrieves and verifies the identity from the request cookie
func (sm *CookieSessionManager) GetSession(r *http.Request) (*CanonicalIdentity, error) {
	cookie, err := r.Cookie(sm.CookieName)
	if err != nil {
		return nil, ErrNoSession
	}

	encoded, sig, ok := strings.Cut(cookie.Value, ".")
	if !ok {
		return nil, ErrInvalidSession
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if err := sm.signer.Verify(data, sig); err != nil {
		return nil, ErrInvalidSession
	}

	var identity CanonicalIdentity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, ErrInvalidSession
	}
	return &identity, nil
}

// ClearSession removes the session cookie
func (sm *CookieSessionManager) ClearSession(w http.ResponseWriter) error {
	http.SetCookie(w, sm.cookie("", -1))
	return nil
}

func (sm *CookieSessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sm.CookieName,
		Value:    value,
		Domain:   sm.CookieDomain,
		Path:     sm.CookiePath,
		MaxAge:   maxAge,
		Secure:   sm.SecureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
