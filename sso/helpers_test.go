package sso

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

const (
	testTokenPath   = "/site/oauth2/access_token"
	testProfilePath = "/api/2.0/user"
	testEmailsPath  = "/api/2.0/user/emails"
)

// fakeBitbucket serves the token, user and emails endpoints. Zero status
// fields mean 200.
type fakeBitbucket struct {
	server *httptest.Server

	mu            sync.Mutex
	tokenStatus   int
	tokenBody     string
	profileStatus int
	profileBody   string
	emailsStatus  int
	emailsBody    string

	tokenForms     []url.Values
	profileQueries []url.Values
	emailQueries   []url.Values
}

func newFakeBitbucket(t *testing.T) *fakeBitbucket {
	t.Helper()

	f := &fakeBitbucket{
		tokenBody:   `{"access_token":"tok-1","token_type":"bearer","refresh_token":"ref-1","scopes":"account email","expires_in":7200}`,
		profileBody: `{"username":"grace","uuid":"abc-123","display_name":"Grace Hopper"}`,
		emailsBody:  `{"values":[{"email":"g@x.com","is_primary":false},{"email":"grace@x.com","is_primary":true}]}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+testTokenPath, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.tokenForms = append(f.tokenForms, r.PostForm)
		status, body := f.tokenStatus, f.tokenBody
		f.mu.Unlock()
		write(w, status, body)
	})
	mux.HandleFunc("GET "+testProfilePath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.profileQueries = append(f.profileQueries, r.URL.Query())
		status, body := f.profileStatus, f.profileBody
		f.mu.Unlock()
		write(w, status, body)
	})
	mux.HandleFunc("GET "+testEmailsPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.emailQueries = append(f.emailQueries, r.URL.Query())
		status, body := f.emailsStatus, f.emailsBody
		f.mu.Unlock()
		write(w, status, body)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func write(w http.ResponseWriter, status int, body string) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeBitbucket) config() ProviderConfig {
	cfg := BitbucketConfig("key", "secret", "https://app.example.com/auth/bitbucket/callback", nil)
	cfg.AuthorizationURL = f.server.URL + "/site/oauth2/authorize"
	cfg.AccessTokenURL = f.server.URL + testTokenPath
	cfg.UserDataURL = f.server.URL + testProfilePath
	return cfg
}

func (f *fakeBitbucket) tokenCalls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.tokenForms...)
}

func (f *fakeBitbucket) emailCalls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.emailQueries...)
}

func (f *fakeBitbucket) profileCalls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.profileQueries...)
}

// testSigner is an HMAC-SHA256 hex signer.
type testSigner struct {
	key []byte
}

func (s testSigner) Sign(message []byte) (string, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s testSigner) Verify(message []byte, signature string) error {
	expected, _ := s.Sign(message)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New("signature mismatch")
	}
	return nil
}
