package model

import "time"

type Provider string

const (
	ProviderGoogleSheets Provider = "google_sheets"
	ProviderGoogleAds    Provider = "google_ads"
	ProviderBigQuery     Provider = "bigquery"
	ProviderShopify      Provider = "shopify"
	ProviderStripe       Provider = "stripe"
)

func (p Provider) String() string { return string(p) }

// AllProviders lists the data providers in display order.
var AllProviders = []Provider{
	ProviderGoogleSheets,
	ProviderGoogleAds,
	ProviderBigQuery,
	ProviderShopify,
	ProviderStripe,
}

func ParseProvider(s string) (Provider, bool) {
	for _, p := range AllProviders {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionExpired ConnectionStatus = "expired" // refresh failed; user must reconnect
)

// DataConnection links a user to an external provider account (data_connections table).
type DataConnection struct {
	ID        string           `db:"id"         json:"id"`
	UserID    string           `db:"user_id"    json:"-"`
	Provider  Provider         `db:"provider"   json:"provider"`
	AccountID string           `db:"account_id" json:"account_id"` // shop domain, stripe account, gcp project; "" for sheets/ads
	Label     string           `db:"label"      json:"label"`
	Status    ConnectionStatus `db:"status"     json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// IntegrationCredential holds the encrypted tokens for a connection (integration_credentials table).
type IntegrationCredential struct {
	ConnectionID string     `db:"connection_id"`
	AccessToken  string     `db:"access_token"`  // encrypted
	RefreshToken string     `db:"refresh_token"` // encrypted, may be empty
	TokenType    string     `db:"token_type"`
	Scope        string     `db:"scope"`
	ExpiresAt    *time.Time `db:"expires_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// OAuthState is a pending authorization (oauth_states table). Rows are single use.
type OAuthState struct {
	State     string    `db:"state"`
	UserID    string    `db:"user_id"`
	Provider  Provider  `db:"provider"`
	Account   string    `db:"account"` // shop domain or bigquery project, chosen before redirect
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
