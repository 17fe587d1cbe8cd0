package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/presence/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGitHub    = "github"
	ProviderX         = "x"
)

// providerEnvVars maps provider names to their expected environment variables.
var providerEnvVars = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGitHub:    "GITHUB_TOKEN",
	ProviderX:         "X_ACCESS_TOKEN",
}

// Environment fallbacks for the X refresh flow.
const (
	envXRefreshToken = "X_REFRESH_TOKEN"
	envXClientID     = "X_CLIENT_ID"
	envXClientSecret = "X_CLIENT_SECRET"
)

// Manager manages reading and writing credentials.toml in the .presence/ directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .presence/ directory; otherwise the standard dotdir resolution
// applies. When no .presence/ directory is found, one is created at ~/.presence/.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	if target == "" {
		target, err = mgr.ddm.Init("")
		if err != nil {
			return nil, err
		}
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:   currentVersion,
				Providers: make(map[string]ProviderCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Providers == nil {
		creds.Providers = make(map[string]ProviderCredential)
	}

	return creds, nil
}

// Save writes credentials.toml with 0600 permissions. The file is replaced
// atomically so a token renewal mid-run never leaves it half written.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	tmp := m.targetPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := os.Rename(tmp, m.targetPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetKey stores an API key for the given provider, keeping any refresh
// material already stored for it.
func (m *Manager) SetKey(provider, key string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	pc := creds.Providers[provider]
	pc.APIKey = key
	creds.Providers[provider] = pc

	return m.Save(creds)
}

// SetCredential replaces the stored credential for the given provider.
func (m *Manager) SetCredential(provider string, pc ProviderCredential) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Providers[provider] = pc

	return m.Save(creds)
}

// StoreToken records a renewed OAuth2 token for provider. An empty refresh
// token keeps the stored one; the client pair is never touched.
func (m *Manager) StoreToken(provider, access, refresh string, expiry time.Time) error {
	if access == "" {
		return errors.New("refusing to store an empty access token")
	}

	creds, err := m.Load()
	if err != nil {
		return err
	}

	pc := creds.Providers[provider]
	pc.APIKey = access
	if refresh != "" {
		pc.RefreshToken = refresh
	}
	pc.ExpiresAt = nil
	if !expiry.IsZero() {
		at := expiry.UTC().Truncate(time.Second)
		pc.ExpiresAt = &at
	}
	creds.Providers[provider] = pc

	return m.Save(creds)
}

// GetKey returns the stored API key for the given provider.
// Returns an empty string if no key is stored.
func (m *Manager) GetKey(provider string) (string, error) {
	pc, err := m.GetCredential(provider)
	if err != nil {
		return "", err
	}
	return pc.APIKey, nil
}

// GetCredential returns the stored credential for the given provider, or
// the zero value when none is stored.
func (m *Manager) GetCredential(provider string) (ProviderCredential, error) {
	creds, err := m.Load()
	if err != nil {
		return ProviderCredential{}, err
	}
	return creds.Providers[provider], nil
}

// Resolve returns the credential for provider from the store, falling back
// to environment variables for any field the store leaves empty.
func (m *Manager) Resolve(provider string) (ProviderCredential, error) {
	var pc ProviderCredential
	if m != nil {
		var err error
		pc, err = m.GetCredential(provider)
		if err != nil {
			return ProviderCredential{}, err
		}
	}

	if pc.APIKey == "" {
		if env := EnvVarForProvider(provider); env != "" {
			pc.APIKey = os.Getenv(env)
		}
	}

	if provider == ProviderX {
		if pc.RefreshToken == "" {
			pc.RefreshToken = os.Getenv(envXRefreshToken)
		}
		if pc.ClientID == "" {
			pc.ClientID = os.Getenv(envXClientID)
		}
		if pc.ClientSecret == "" {
			pc.ClientSecret = os.Getenv(envXClientSecret)
		}
	}

	return pc, nil
}

// RemoveKey deletes the stored credential for a provider.
func (m *Manager) RemoveKey(provider string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Providers, provider)

	return m.Save(creds)
}

// ListProviders returns the names of providers that have stored credentials.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(creds.Providers))
	for name := range creds.Providers {
		providers = append(providers, name)
	}

	sort.Strings(providers)

	return providers, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// EnvVarForProvider returns the environment variable name for a given provider.
// Returns an empty string for unknown providers.
func EnvVarForProvider(provider string) string {
	return providerEnvVars[provider]
}

// SupportedProviders returns the list of providers that take a stored secret.
func SupportedProviders() []string {
	return []string{ProviderOpenAI, ProviderAnthropic, ProviderGitHub, ProviderX}
}

// IsSupportedProvider returns true if the given provider is supported.
func IsSupportedProvider(provider string) bool {
	return slices.Contains(SupportedProviders(), provider)
}
