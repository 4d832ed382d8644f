package sso

// Bitbucket endpoints and defaults.
const (
	BitbucketName             = "bitbucket"
	BitbucketAuthorizationURL = "https://bitbucket.org/site/oauth2/authorize"
	BitbucketAccessTokenURL   = "https://bitbucket.org/site/oauth2/access_token"
	BitbucketUserDataURL      = "https://bitbucket.org/api/2.0/user"
)

// BitbucketDefaultScope is requested when no scope is configured.
var BitbucketDefaultScope = []string{"email", "account", "webhook", "repository", "issue"}

// BitbucketFields maps Bitbucket's user resource. Bitbucket only exposes a
// single display name and identifies accounts by uuid.
var BitbucketFields = FieldMapping{
	ID:          "uuid",
	Username:    "username",
	DisplayName: "display_name",
}

// BitbucketConfig returns the provider configuration for a Bitbucket OAuth
// consumer. A nil or empty scope uses BitbucketDefaultScope.
func BitbucketConfig(consumerKey, consumerSecret, redirectURL string, scope []string) ProviderConfig {
	if len(scope) == 0 {
		scope = append([]string(nil), BitbucketDefaultScope...)
	}
	return ProviderConfig{
		Name:             BitbucketName,
		AuthorizationURL: BitbucketAuthorizationURL,
		AccessTokenURL:   BitbucketAccessTokenURL,
		UserDataURL:      BitbucketUserDataURL,
		ClientKey:        consumerKey,
		ClientSecret:     consumerSecret,
		RedirectURL:      redirectURL,
		DefaultScope:     scope,
		Fields:           BitbucketFields,
	}
}

// NewBitbucket creates a Bitbucket login backend.
func NewBitbucket(consumerKey, consumerSecret, redirectURL string, scope []string, opts ...Option) (*Backend, error) {
	return NewBackend(BitbucketConfig(consumerKey, consumerSecret, redirectURL, scope), opts...)
}
