// Package integrations runs the OAuth 2.0 authorization-code flows for data providers
// and hands out fresh access tokens for stored connections.
package integrations

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmehdipour/data-moodboard/internal/config"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"golang.org/x/oauth2"
)

var (
	ErrUnknownProvider       = errors.New("unknown provider")
	ErrProviderNotConfigured = errors.New("provider is not configured")
	ErrInvalidShop           = errors.New("shop must be <name>.myshopify.com")
	ErrMissingProject        = errors.New("project is required")
)

const (
	googleAuthURL   = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL  = "https://oauth2.googleapis.com/token"
	stripeAuthURL   = "https://connect.stripe.com/oauth/authorize"
	stripeTokenURL  = "https://connect.stripe.com/oauth/token"
	shopPlaceholder = "{shop}"
)

var (
	shopPattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)
	projectPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)
)

// providerSpec describes one provider's OAuth endpoints and behavior.
type providerSpec struct {
	label    string
	authURL  string
	tokenURL string
	scopes   []string
	style    oauth2.AuthStyle
	// google providers need offline access and a forced consent screen to get a refresh token
	offline bool
	// account is required before redirect: shop domain or gcp project
	account func(string) (string, error)
	// account is the google identity from the id_token returned with the tokens
	identity bool
}

func defaultSpecs() map[model.Provider]*providerSpec {
	return map[model.Provider]*providerSpec{
		model.ProviderGoogleSheets: {
			label:    "Google Sheets",
			authURL:  googleAuthURL,
			tokenURL: googleTokenURL,
			scopes:   []string{"openid", "email", "https://www.googleapis.com/auth/spreadsheets.readonly"},
			style:    oauth2.AuthStyleInParams,
			offline:  true,
			identity: true,
		},
		model.ProviderGoogleAds: {
			label:    "Google Ads",
			authURL:  googleAuthURL,
			tokenURL: googleTokenURL,
			scopes:   []string{"openid", "email", "https://www.googleapis.com/auth/adwords"},
			style:    oauth2.AuthStyleInParams,
			offline:  true,
			identity: true,
		},
		model.ProviderBigQuery: {
			label:    "BigQuery",
			authURL:  googleAuthURL,
			tokenURL: googleTokenURL,
			scopes:   []string{"https://www.googleapis.com/auth/bigquery.readonly"},
			style:    oauth2.AuthStyleInParams,
			offline:  true,
			account:  validateProject,
		},
		model.ProviderShopify: {
			label:    "Shopify",
			authURL:  "https://" + shopPlaceholder + "/admin/oauth/authorize",
			tokenURL: "https://" + shopPlaceholder + "/admin/oauth/access_token",
			// shopify expects a comma separated scope list
			scopes:  []string{"read_orders,read_products"},
			style:   oauth2.AuthStyleInParams,
			account: validateShop,
		},
		model.ProviderStripe: {
			label:    "Stripe",
			authURL:  stripeAuthURL,
			tokenURL: stripeTokenURL,
			scopes:   []string{"read_only"},
			style:    oauth2.AuthStyleInParams,
		},
	}
}

func validateShop(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !shopPattern.MatchString(s) {
		return "", ErrInvalidShop
	}
	return s, nil
}

func validateProject(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrMissingProject
	}
	if !projectPattern.MatchString(s) {
		return "", fmt.Errorf("%w: invalid project id %q", ErrMissingProject, s)
	}
	return s, nil
}

// Registry builds oauth2 configs for the configured providers.
type Registry struct {
	clients     map[string]config.OAuthClientConfig
	specs       map[model.Provider]*providerSpec
	callbackURL string
}

// NewRegistry uses publicURL (this API's base URL) to build callback URLs.
func NewRegistry(cfg config.OAuthConfig, publicURL string) *Registry {
	return &Registry{
		clients:     cfg.Providers,
		specs:       defaultSpecs(),
		callbackURL: strings.TrimRight(publicURL, "/") + "/api/integrations/%s/callback",
	}
}

func (r *Registry) spec(p model.Provider) (*providerSpec, error) {
	s, ok := r.specs[p]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return s, nil
}

// NormalizeAccount validates the pre-redirect account hint for providers that need one.
func (r *Registry) NormalizeAccount(p model.Provider, account string) (string, error) {
	s, err := r.spec(p)
	if err != nil {
		return "", err
	}
	if s.account == nil {
		return "", nil
	}
	return s.account(account)
}

// Config returns the oauth2 config for p; shopify endpoints are bound to account.
func (r *Registry) Config(p model.Provider, account string) (*oauth2.Config, error) {
	s, err := r.spec(p)
	if err != nil {
		return nil, err
	}
	client, ok := r.clients[string(p)]
	if !ok || client.ClientID == "" || client.ClientSecret == "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, p)
	}
	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURL:  fmt.Sprintf(r.callbackURL, p),
		Scopes:       s.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   strings.ReplaceAll(s.authURL, shopPlaceholder, account),
			TokenURL:  strings.ReplaceAll(s.tokenURL, shopPlaceholder, account),
			AuthStyle: s.style,
		},
	}, nil
}

// AuthCodeURL is the provider URL the browser is sent to.
func (r *Registry) AuthCodeURL(p model.Provider, state, account string) (string, error) {
	cfg, err := r.Config(p, account)
	if err != nil {
		return "", err
	}
	s := r.specs[p]
	var opts []oauth2.AuthCodeOption
	if s.offline {
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"),
			oauth2.SetAuthURLParam("include_granted_scopes", "true"))
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// Label is the human readable provider name.
func (r *Registry) Label(p model.Provider) string {
	if s, ok := r.specs[p]; ok {
		return s.label
	}
	return string(p)
}

// ClientSecret is used for callback signature checks (shopify hmac).
func (r *Registry) ClientSecret(p model.Provider) string {
	return r.clients[string(p)].ClientSecret
}

// DeveloperToken returns the extra google ads header credential.
func (r *Registry) DeveloperToken(p model.Provider) string {
	return r.clients[string(p)].DeveloperToken
}
