package credentials

import "time"

// Credentials represents the stored credentials in credentials.toml.
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

// ProviderCredential holds the secret for a single provider. Model providers
// and GitHub use APIKey alone. X stores an OAuth2 user access token in APIKey
// and, when set, the refresh token and client pair used to renew it. X
// rotates the refresh token on every renewal, so renewed tokens are written
// back with their expiry.
type ProviderCredential struct {
	APIKey       string     `toml:"api_key"`
	RefreshToken string     `toml:"refresh_token,omitempty"`
	ClientID     string     `toml:"client_id,omitempty"`
	ClientSecret string     `toml:"client_secret,omitempty"`
	ExpiresAt    *time.Time `toml:"expires_at,omitempty"`
}

// CanRefresh reports whether the credential carries what an OAuth2 refresh
// needs.
func (pc ProviderCredential) CanRefresh() bool {
	return pc.RefreshToken != "" && pc.ClientID != ""
}

// Empty reports whether no secret is held.
func (pc ProviderCredential) Empty() bool {
	return pc.APIKey == "" && pc.RefreshToken == ""
}
