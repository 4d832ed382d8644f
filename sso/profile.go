package sso

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrProfileNotJSON is returned when a profile body is not valid JSON.
	ErrProfileNotJSON = errors.New("profile body is not valid JSON")

	// ErrProfileNotObject is returned when a profile body is valid JSON but
	// not an object.
	ErrProfileNotObject = errors.New("profile body is not a JSON object")
)

// RawProfile is the provider's profile document. Providers omit fields
// unpredictably, so every accessor reports whether the field was present.
// The zero value is an empty profile.
type RawProfile struct {
	doc gjson.Result
}

// ParseProfile parses a provider profile body.
func ParseProfile(body []byte) (RawProfile, error) {
	if !gjson.ValidBytes(body) {
		return RawProfile{}, ErrProfileNotJSON
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return RawProfile{}, ErrProfileNotObject
	}
	return RawProfile{doc: doc}, nil
}

// IsEmpty reports whether the profile has no fields.
func (p RawProfile) IsEmpty() bool {
	if !p.doc.IsObject() {
		return true
	}
	empty := true
	p.doc.ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}

// Has reports whether key is present and not null.
func (p RawProfile) Has(key string) bool {
	v := p.field(key)
	return v.Exists() && v.Type != gjson.Null
}

// String returns the field as a string. Numbers and booleans are rendered in
// their JSON form.
func (p RawProfile) String(key string) (string, bool) {
	v := p.field(key)
	if !v.Exists() || v.Type == gjson.Null {
		return "", false
	}
	switch v.Type {
	case gjson.String:
		return v.Str, true
	case gjson.JSON:
		return v.Raw, true
	default:
		return v.String(), true
	}
}

// Bool returns the field as a boolean; ok is false unless the field is a JSON
// boolean.
func (p RawProfile) Bool(key string) (bool, bool) {
	v := p.field(key)
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	default:
		return false, false
	}
}

// Map returns the profile as a generic map, or nil for an empty profile.
func (p RawProfile) Map() map[string]interface{} {
	if !p.doc.IsObject() {
		return nil
	}
	m, _ := p.doc.Value().(map[string]interface{})
	return m
}

func (p RawProfile) field(key string) gjson.Result {
	if !p.doc.IsObject() || key == "" {
		return gjson.Result{}
	}
	return p.doc.Get(escapePath(key))
}

// escapePath makes key a literal gjson path component.
func escapePath(key string) string {
	if !strings.ContainsAny(key, `.*?|#@\!=<>%`) {
		return key
	}
	var b strings.Builder
	for _, r := range key {
		if strings.ContainsRune(`.*?|#@\!=<>%`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
