package sso

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToken = AccessToken{
	Value:     "tok-1",
	TokenType: "bearer",
	ExpiresIn: 2 * time.Hour,
	ExpiresAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
}

func mustProfile(t *testing.T, body string) RawProfile {
	t.Helper()
	p, err := ParseProfile([]byte(body))
	require.NoError(t, err)
	return p
}

func TestFetchProfile(t *testing.T) {
	fake := newFakeBitbucket(t)
	r := NewIdentityResolver(fake.config(), nil, nil)

	profile, err := r.FetchProfile(context.Background(), testToken)
	require.NoError(t, err)

	username, ok := profile.String("username")
	assert.True(t, ok)
	assert.Equal(t, "grace", username)

	calls := fake.profileCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "-links", calls[0].Get("fields"))
	assert.Equal(t, "tok-1", calls[0].Get("access_token"))
}

func TestFetchProfile_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{"non-json body", http.StatusOK, `<html>maintenance</html>`, KindProfileFetch},
		{"json array", http.StatusOK, `[1,2]`, KindProfileFetch},
		{"unauthorized", http.StatusUnauthorized, `{"type":"error"}`, KindProfileFetch},
		{"server error", http.StatusBadGateway, ``, KindProfileFetch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeBitbucket(t)
			fake.profileStatus = tt.status
			fake.profileBody = tt.body
			r := NewIdentityResolver(fake.config(), nil, nil)

			profile, err := r.FetchProfile(context.Background(), testToken)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.True(t, profile.IsEmpty())
		})
	}
}

func TestFetchProfile_TransportErrorHidesToken(t *testing.T) {
	fake := newFakeBitbucket(t)
	cfg := fake.config()
	fake.server.Close()

	_, err := NewIdentityResolver(cfg, nil, nil).FetchProfile(context.Background(), testToken)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.NotContains(t, err.Error(), "tok-1")
	assert.Contains(t, err.Error(), "REDACTED")
}

func TestResolveEmail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "primary after secondary",
			body: `{"values":[{"email":"g@x.com","is_primary":false},{"email":"grace@x.com","is_primary":true}]}`,
			want: "grace@x.com",
		},
		{
			name: "primary first",
			body: `{"values":[{"email":"grace@x.com","is_primary":true},{"email":"g@x.com","is_primary":false}]}`,
			want: "grace@x.com",
		},
		{
			name: "first of several primaries",
			body: `{"values":[{"email":"a@x.com","is_primary":false},{"email":"b@x.com","is_primary":true},{"email":"c@x.com","is_primary":true}]}`,
			want: "b@x.com",
		},
		{
			name: "no primary",
			body: `{"values":[{"email":"a@x.com","is_primary":false},{"email":"b@x.com"}]}`,
			want: "",
		},
		{
			name: "string flag is not primary",
			body: `{"values":[{"email":"a@x.com","is_primary":"true"}]}`,
			want: "",
		},
		{name: "empty list", body: `{"values":[]}`, want: ""},
		{name: "no values", body: `{}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeBitbucket(t)
			fake.emailsBody = tt.body
			r := NewIdentityResolver(fake.config(), nil, nil)

			got, err := r.ResolveEmail(context.Background(), testToken)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveEmail_Query(t *testing.T) {
	fake := newFakeBitbucket(t)
	r := NewIdentityResolver(fake.config(), nil, nil)

	_, err := r.ResolveEmail(context.Background(), testToken)
	require.NoError(t, err)

	calls := fake.emailCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "-values.links", calls[0].Get("fields"))
	assert.Equal(t, "100", calls[0].Get("pagelen"))
	assert.Equal(t, "tok-1", calls[0].Get("access_token"))
}

func TestResolveEmail_Failures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		fake := newFakeBitbucket(t)
		fake.emailsStatus = http.StatusForbidden
		_, err := NewIdentityResolver(fake.config(), nil, nil).ResolveEmail(context.Background(), testToken)
		assert.True(t, IsProfileFetch(err))
	})

	t.Run("malformed", func(t *testing.T) {
		fake := newFakeBitbucket(t)
		fake.emailsBody = `{"values":[`
		_, err := NewIdentityResolver(fake.config(), nil, nil).ResolveEmail(context.Background(), testToken)
		assert.True(t, IsProfileFetch(err))
		assert.True(t, errors.Is(err, ErrProfileNotJSON))
	})
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Madonna", "Madonna", ""},
		{"  ", "", ""},
		{"", "", ""},
		{"  Grace   Hopper  ", "Grace", "Hopper"},
		{"Grace Brewster Murray Hopper", "Grace", "Brewster Murray Hopper"},
		{"Ada\tLovelace", "Ada", "Lovelace"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			first, last := SplitName(tt.in)
			assert.Equal(t, tt.first, first)
			assert.Equal(t, tt.last, last)
		})
	}
}

func TestUniqueID(t *testing.T) {
	r := NewIdentityResolver(BitbucketConfig("key", "secret", "", nil), nil, nil)

	id, err := r.UniqueID(mustProfile(t, `{"uuid":"{abc-123}"}`))
	require.NoError(t, err)
	assert.Equal(t, "{abc-123}", id)

	for _, body := range []string{`{}`, `{"uuid":null}`, `{"uuid":"  "}`, `{"username":"grace","display_name":"Grace Hopper"}`} {
		_, err := r.UniqueID(mustProfile(t, body))
		assert.True(t, IsMissingIdentifier(err), body)
	}

	_, err = r.UniqueID(RawProfile{})
	assert.True(t, IsMissingIdentifier(err))
}

func TestNormalize(t *testing.T) {
	fake := newFakeBitbucket(t)
	r := NewIdentityResolver(fake.config(), nil, nil)
	raw := mustProfile(t, `{"username":"grace","uuid":"abc-123","display_name":"Grace Hopper"}`)

	got, err := r.Normalize(context.Background(), raw, testToken)
	require.NoError(t, err)

	want := &CanonicalIdentity{
		Provider:  BitbucketName,
		UniqueID:  "abc-123",
		Username:  "grace",
		Email:     "grace@x.com",
		FirstName: "Grace",
		LastName:  "Hopper",
		ExtraData: map[string]interface{}{
			ExtraUsername:  "grace",
			ExtraEmail:     "grace@x.com",
			ExtraFirstName: "Grace",
			ExtraLastName:  "Hopper",
			ExtraExpires:   int64(7200),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_MissingIdentifierSkipsEmailCall(t *testing.T) {
	fake := newFakeBitbucket(t)
	r := NewIdentityResolver(fake.config(), nil, nil)
	raw := mustProfile(t, `{"username":"grace","display_name":"Grace Hopper"}`)

	_, err := r.Normalize(context.Background(), raw, testToken)
	require.Error(t, err)
	assert.True(t, IsMissingIdentifier(err))
	assert.Empty(t, fake.emailCalls())
}

func TestNormalize_EmailFailureDegrades(t *testing.T) {
	fake := newFakeBitbucket(t)
	fake.emailsStatus = http.StatusInternalServerError
	r := NewIdentityResolver(fake.config(), nil, nil)
	raw := mustProfile(t, `{"username":"grace","uuid":"abc-123","display_name":"Grace Hopper"}`)

	got, err := r.Normalize(context.Background(), raw, testToken)
	require.NoError(t, err)
	assert.Equal(t, "", got.Email)
	assert.Equal(t, "", got.ExtraData[ExtraEmail])
	assert.Equal(t, "abc-123", got.UniqueID)
}

func TestNormalize_OmitsExpiryWhenAbsent(t *testing.T) {
	fake := newFakeBitbucket(t)
	r := NewIdentityResolver(fake.config(), nil, nil)
	raw := mustProfile(t, `{"uuid":"abc-123"}`)

	got, err := r.Normalize(context.Background(), raw, AccessToken{Value: "tok-1"})
	require.NoError(t, err)
	_, ok := got.ExtraData[ExtraExpires]
	assert.False(t, ok)
	assert.Equal(t, "", got.Username)
	assert.Equal(t, "", got.FirstName)
}

func TestNormalize_Idempotent(t *testing.T) {
	fake := newFakeBitbucket(t)
	r := NewIdentityResolver(fake.config(), nil, nil)
	raw := mustProfile(t, `{"username":"grace","uuid":"abc-123","display_name":"Grace Hopper"}`)

	first, err := r.Normalize(context.Background(), raw, testToken)
	require.NoError(t, err)
	second, err := r.Normalize(context.Background(), raw, testToken)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalize_CancelledContextIsTransport(t *testing.T) {
	fake := newFakeBitbucket(t)
	r := NewIdentityResolver(fake.config(), nil, nil)
	raw := mustProfile(t, `{"username":"grace","uuid":"abc-123","display_name":"Grace Hopper"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := r.Normalize(ctx, raw, testToken)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, context.Canceled)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, StageProfileFetched, e.Stage)
}

func TestNormalize_ExpiresFollowsLifetime(t *testing.T) {
	tests := []struct {
		name   string
		token  AccessToken
		want   int64
		wantOK bool
	}{
		{"relative and absolute", testToken, 7200, true},
		{"relative only", AccessToken{Value: "tok-1", ExpiresIn: time.Minute}, 60, true},
		{"absolute only", AccessToken{Value: "tok-1", ExpiresAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeBitbucket(t)
			r := NewIdentityResolver(fake.config(), nil, nil)

			got, err := r.Normalize(context.Background(), mustProfile(t, `{"uuid":"abc-123"}`), tt.token)
			require.NoError(t, err)

			expires, ok := got.ExtraData[ExtraExpires]
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, expires)
			}
		})
	}
}
