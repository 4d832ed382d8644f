package sso

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"socialauth/logger"
)

const (
	// maxResponseSize bounds every provider response body.
	maxResponseSize = 1 << 20

	// emailPageLen is the single page size requested from the emails
	// sub-resource. Later pages are not followed.
	emailPageLen = "100"
)

// IdentityResolver fetches a user's profile with an access token and
// normalizes it into a CanonicalIdentity. It is safe for concurrent use.
type IdentityResolver struct {
	config ProviderConfig
	client *http.Client
	log    *logger.Logger
}

// NewIdentityResolver creates a resolver for cfg. A nil client uses
// http.DefaultClient and a nil log discards output.
func NewIdentityResolver(cfg ProviderConfig, client *http.Client, log *logger.Logger) *IdentityResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &IdentityResolver{
		config: cfg,
		client: client,
		log:    log,
	}
}

// FetchProfile retrieves the primary profile document. Network failures are
// KindTransport; a non-2xx status or a body that is not a JSON object is
// KindProfileFetch, which callers may downgrade to an empty profile.
func (r *IdentityResolver) FetchProfile(ctx context.Context, token AccessToken) (RawProfile, error) {
	endpoint, err := withQuery(r.config.UserDataURL, url.Values{
		"fields":       {"-links"},
		"access_token": {token.Value},
	})
	if err != nil {
		return RawProfile{}, newError(KindInvalidConfig, StageTokenObtained, "invalid user data URL", err)
	}

	body, err := r.get(ctx, StageTokenObtained, endpoint)
	if err != nil {
		return RawProfile{}, err
	}

	profile, err := ParseProfile(body)
	if err != nil {
		return RawProfile{}, newError(KindProfileFetch, StageTokenObtained, "unreadable profile", err)
	}
	return profile, nil
}

// ResolveEmail fetches the emails sub-resource and returns the first address
// flagged primary, in response order. It returns "" when no address is
// primary. Only the first page is read.
func (r *IdentityResolver) ResolveEmail(ctx context.Context, token AccessToken) (string, error) {
	endpoint, err := withQuery(strings.TrimSuffix(r.config.UserDataURL, "/")+"/emails", url.Values{
		"fields":       {"-values.links"},
		"pagelen":      {emailPageLen},
		"access_token": {token.Value},
	})
	if err != nil {
		return "", newError(KindInvalidConfig, StageProfileFetched, "invalid user data URL", err)
	}

	body, err := r.get(ctx, StageProfileFetched, endpoint)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", newError(KindProfileFetch, StageProfileFetched, "unreadable email list", ErrProfileNotJSON)
	}
	return primaryEmail(gjson.GetBytes(body, "values")), nil
}

func primaryEmail(values gjson.Result) string {
	if !values.IsArray() {
		return ""
	}
	var primary string
	values.ForEach(func(_, rec gjson.Result) bool {
		if rec.Get("is_primary").Type == gjson.True {
			primary = rec.Get("email").String()
			return false
		}
		return true
	})
	return primary
}

// UniqueID returns the provider's immutable account id.
func (r *IdentityResolver) UniqueID(raw RawProfile) (string, error) {
	id, ok := raw.String(r.config.Fields.ID)
	if !ok || strings.TrimSpace(id) == "" {
		return "", newError(KindMissingIdentifier, StageProfileFetched,
			fmt.Sprintf("profile has no %q field", r.config.Fields.ID), nil)
	}
	return id, nil
}

// Normalize maps raw onto a CanonicalIdentity. The email is resolved through
// the emails sub-resource; a failure there yields an empty email rather than
// an error unless ctx itself is done. A profile without an account id is
// always an error.
func (r *IdentityResolver) Normalize(ctx context.Context, raw RawProfile, token AccessToken) (*CanonicalIdentity, error) {
	id, err := r.UniqueID(raw)
	if err != nil {
		return nil, err
	}

	username, _ := raw.String(r.config.Fields.Username)

	email, err := r.ResolveEmail(ctx, token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, newError(KindTransport, StageProfileFetched, "email request abandoned", ctxErr)
		}
		r.log.Warn(ctx, "primary email unavailable, continuing without it",
			logger.F("provider", r.config.Name),
			logger.Err(err),
		)
		email = ""
	}

	displayName, _ := raw.String(r.config.Fields.DisplayName)
	first, last := SplitName(displayName)

	identity := &CanonicalIdentity{
		Provider:  r.config.Name,
		UniqueID:  id,
		Username:  username,
		Email:     email,
		FirstName: first,
		LastName:  last,
	}
	identity.ExtraData = extraData(identity, token)
	return identity, nil
}

// SplitName splits a single display name on its first whitespace run. A name
// without whitespace is all first name; surrounding whitespace is trimmed.
func SplitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	i := strings.IndexFunc(name, unicode.IsSpace)
	if i < 0 {
		return name, ""
	}
	return name[:i], strings.TrimLeftFunc(name[i:], unicode.IsSpace)
}

func extraData(identity *CanonicalIdentity, token AccessToken) map[string]interface{} {
	extra := map[string]interface{}{
		ExtraUsername:  identity.Username,
		ExtraEmail:     identity.Email,
		ExtraFirstName: identity.FirstName,
		ExtraLastName:  identity.LastName,
	}
	if token.ExpiresIn > 0 {
		extra[ExtraExpires] = int64(token.ExpiresIn.Seconds())
	}
	return extra
}

func (r *IdentityResolver) get(ctx context.Context, stage Stage, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newError(KindInvalidConfig, stage, "failed to create request", redact(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, newError(KindTransport, stage, "request failed", redact(err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, newError(KindTransport, stage, "failed to read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(KindProfileFetch, stage, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	return body, nil
}

func withQuery(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact strips the access_token query parameter from URLs carried in err.
func redact(err error) error {
	uerr, ok := err.(*url.Error)
	if !ok {
		return err
	}
	clean := *uerr
	if u, perr := url.Parse(uerr.URL); perr == nil {
		q := u.Query()
		if q.Has("access_token") {
			q.Set("access_token", "REDACTED")
			u.RawQuery = q.Encode()
		}
		clean.URL = u.String()
	}
	return &clean
}
