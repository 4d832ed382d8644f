package hmac

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialauth/sso"
)

var _ sso.Signer = (*Signer)(nil)

var (
	testKey    = []byte(strings.Repeat("k", 32))
	retiredKey = []byte(strings.Repeat("r", 32))
)

func TestNewSigner(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		opts    []Option
		wantErr bool
	}{
		{"defaults", testKey, nil, false},
		{"sha512 hex", testKey, []Option{WithAlgorithm(SHA512), WithEncoding(HEX)}, false},
		{"with previous key", testKey, []Option{WithPreviousKeys(retiredKey)}, false},
		{"empty key", nil, nil, true},
		{"short key", []byte("test-key"), nil, true},
		{"short previous key", testKey, []Option{WithPreviousKeys([]byte("old"))}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSigner(tt.key, tt.opts...)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestSigner_Sign(t *testing.T) {
	message := []byte("n0nce:/dashboard")

	mac256 := hmac.New(sha256.New, testKey)
	mac256.Write(message)
	mac512 := hmac.New(sha512.New, testKey)
	mac512.Write(message)

	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{"sha256 base64url", nil, base64.RawURLEncoding.EncodeToString(mac256.Sum(nil))},
		{"sha256 hex", []Option{WithEncoding(HEX)}, hex.EncodeToString(mac256.Sum(nil))},
		{"sha512 base64url", []Option{WithAlgorithm(SHA512)}, base64.RawURLEncoding.EncodeToString(mac512.Sum(nil))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSigner(testKey, tt.opts...)
			require.NoError(t, err)

			got, err := s.Sign(message)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	s, err := NewSigner(testKey)
	require.NoError(t, err)
	_, err = s.Sign(nil)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSigner_Verify(t *testing.T) {
	message := []byte(`{"unique_id":"abc-123"}`)
	s, err := NewSigner(testKey)
	require.NoError(t, err)

	sig, err := s.Sign(message)
	require.NoError(t, err)

	assert.NoError(t, s.Verify(message, sig))
	assert.ErrorIs(t, s.Verify([]byte(`{"unique_id":"admin"}`), sig), ErrInvalidSignature)
	assert.ErrorIs(t, s.Verify(message, ""), ErrInvalidSignature)
	assert.ErrorIs(t, s.Verify(message, "not base64!"), ErrInvalidSignature)
	assert.ErrorIs(t, s.Verify(message, sig[:len(sig)-2]), ErrInvalidSignature)
	assert.ErrorIs(t, s.Verify(nil, sig), ErrInvalidMessage)
}

func TestSigner_KeyRotation(t *testing.T) {
	message := []byte("n0nce:/")

	old, err := NewSigner(retiredKey)
	require.NoError(t, err)
	oldSig, err := old.Sign(message)
	require.NoError(t, err)

	rotated, err := NewSigner(testKey, WithPreviousKeys(retiredKey))
	require.NoError(t, err)
	assert.NoError(t, rotated.Verify(message, oldSig))

	newSig, err := rotated.Sign(message)
	require.NoError(t, err)
	assert.NotEqual(t, oldSig, newSig)
	assert.ErrorIs(t, old.Verify(message, newSig), ErrInvalidSignature)

	fresh, err := NewSigner(testKey)
	require.NoError(t, err)
	assert.ErrorIs(t, fresh.Verify(message, oldSig), ErrInvalidSignature)
}

func TestSigner_SealsState(t *testing.T) {
	s, err := NewSigner(testKey)
	require.NoError(t, err)

	sealed, err := sso.SealState(s, "n0nce", "https://app.example.com/home")
	require.NoError(t, err)
	assert.Equal(t, sealed, strings.TrimSpace(sealed))

	nonce, redirect, err := sso.OpenState(s, sealed)
	require.NoError(t, err)
	assert.Equal(t, "n0nce", nonce)
	assert.Equal(t, "https://app.example.com/home", redirect)
}
