// Package hmac signs and verifies the short tokens the login flow hands to
// browsers: the OAuth state parameter and the session cookie.
package hmac

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
)

// MinKeySize is the smallest accepted signing key, in bytes.
const MinKeySize = 32

// Common errors returned by the package
var (
	ErrInvalidKey       = errors.New("hmac: key must be at least 32 bytes")
	ErrInvalidMessage   = errors.New("hmac: message cannot be empty")
	ErrInvalidSignature = errors.New("hmac: invalid signature")
)

// HashAlgorithm represents supported hash algorithms
type HashAlgorithm int

const (
	// SHA256 algorithm
	SHA256 HashAlgorithm = iota
	// SHA512 algorithm
	SHA512
)

// Encoding represents supported encoding formats
type Encoding int

const (
	// BASE64URL is unpadded URL-safe base64, usable in query strings and
	// cookies without escaping.
	BASE64URL Encoding = iota
	// HEX encoding
	HEX
)

// Signer signs with its current key and verifies against the current key and
// any previous keys, so keys can be rotated without invalidating sessions
// issued just before the rotation.
type Signer struct {
	keys      [][]byte
	algorithm HashAlgorithm
	encoding  Encoding
}

// Option configures a Signer.
type Option func(*Signer)

// WithAlgorithm sets the hash algorithm. The default is SHA256.
func WithAlgorithm(algorithm HashAlgorithm) Option {
	return func(s *Signer) {
		s.algorithm = algorithm
	}
}

// WithEncoding sets the signature encoding. The default is BASE64URL.
func WithEncoding(encoding Encoding) Option {
	return func(s *Signer) {
		s.encoding = encoding
	}
}

// WithPreviousKeys accepts signatures made with retired keys.
func WithPreviousKeys(keys ...[]byte) Option {
	return func(s *Signer) {
		for _, k := range keys {
			if len(k) > 0 {
				s.keys = append(s.keys, k)
			}
		}
	}
}

// NewSigner creates a Signer whose current key is key.
func NewSigner(key []byte, opts ...Option) (*Signer, error) {
	if len(key) < MinKeySize {
		return nil, ErrInvalidKey
	}

	s := &Signer{keys: [][]byte{key}}
	for _, opt := range opts {
		opt(s)
	}
	for _, k := range s.keys[1:] {
		if len(k) < MinKeySize {
			return nil, ErrInvalidKey
		}
	}
	return s, nil
}

func (s *Signer) hashFunc() func() hash.Hash {
	switch s.algorithm {
	case SHA512:
		return sha512.New
	default:
		return sha256.New
	}
}

func (s *Signer) mac(key, message []byte) []byte {
	m := hmac.New(s.hashFunc(), key)
	m.Write(message)
	return m.Sum(nil)
}

// Sign creates a signature for message with the current key
func (s *Signer) Sign(message []byte) (string, error) {
	if len(message) == 0 {
		return "", ErrInvalidMessage
	}
	return s.encode(s.mac(s.keys[0], message)), nil
}

// Verify checks signature against message using every known key
func (s *Signer) Verify(message []byte, signature string) error {
	if len(message) == 0 {
		return ErrInvalidMessage
	}

	provided, err := s.decode(signature)
	if err != nil || len(provided) == 0 {
		return ErrInvalidSignature
	}

	for _, key := range s.keys {
		if hmac.Equal(s.mac(key, message), provided) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (s *Signer) encode(signature []byte) string {
	switch s.encoding {
	case HEX:
		return hex.EncodeToString(signature)
	default:
		return base64.RawURLEncoding.EncodeToString(signature)
	}
}

func (s *Signer) decode(signature string) ([]byte, error) {
	switch s.encoding {
	case HEX:
		return hex.DecodeString(signature)
	default:
		return base64.RawURLEncoding.DecodeString(signature)
	}
}
