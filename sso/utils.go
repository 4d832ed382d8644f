package sso

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidState is returned when a state parameter is malformed or its
// signature does not verify.
var ErrInvalidState = errors.New("invalid state parameter")

// Signer signs and verifies short messages (state parameters, cookies).
type Signer interface {
	// Sign creates a signature for message
	Sign(message []byte) (string, error)

	// Verify checks signature against message
	Verify(message []byte, signature string) error
}

// GenerateRandomBytes returns securely generated random bytes
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateRandomString returns a URL-safe, base64 encoded
// securely generated random string
func GenerateRandomString(s int) (string, error) {
	b, err := GenerateRandomBytes(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IsValidRedirectURL accepts site-relative paths and absolute http(s) URLs
// whose host is in allowedHosts.
func IsValidRedirectURL(redirectURL string, allowedHosts []string) bool {
	if redirectURL == "" {
		return false
	}

	u, err := url.Parse(redirectURL)
	if err != nil {
		return false
	}

	if !u.IsAbs() {
		// "//host" is protocol-relative, and browsers treat a backslash as "/"
		return u.Host == "" && strings.HasPrefix(redirectURL, "/") &&
			!strings.HasPrefix(redirectURL, "//") && !strings.Contains(redirectURL, "\\")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	for _, host := range allowedHosts {
		if strings.EqualFold(u.Host, strings.TrimSpace(host)) {
			return true
		}
	}
	return false
}

// EncodeState encodes a state token with a redirect URL
func EncodeState(state, redirectURL string) string {
	return fmt.Sprintf("%s:%s", state, redirectURL)
}

// DecodeState decodes a state token with a redirect URL
func DecodeState(encodedState string) (state, redirectURL string) {
	if i := strings.IndexByte(encodedState, ':'); i >= 0 {
		return encodedState[:i], encodedState[i+1:]
	}
	return encodedState, ""
}

// SealState binds nonce and redirectURL into a signed, URL-safe state
// parameter.
func SealState(signer Signer, nonce, redirectURL string) (string, error) {
	payload := EncodeState(nonce, redirectURL)
	sig, err := signer.Sign([]byte(payload))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig, nil
}

// OpenState verifies a sealed state parameter and returns its parts.
func OpenState(signer Signer, sealed string) (nonce, redirectURL string, err error) {
	i := strings.LastIndexByte(sealed, '.')
	if i <= 0 || i == len(sealed)-1 {
		return "", "", ErrInvalidState
	}
	payload, err := base64.RawURLEncoding.DecodeString(sealed[:i])
	if err != nil {
		return "", "", ErrInvalidState
	}
	if err := signer.Verify(payload, sealed[i+1:]); err != nil {
		return "", "", ErrInvalidState
	}
	nonce, redirectURL = DecodeState(string(payload))
	if nonce == "" {
		return "", "", ErrInvalidState
	}
	return nonce, redirectURL, nil
}
